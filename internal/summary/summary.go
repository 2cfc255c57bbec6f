// Package summary produces the narrative text of a proof packet. A
// cascade of model tiers is tried in order; when every tier fails the
// deterministic template takes over, so Summarize is total and never
// returns an error to its caller.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vins-anity/trailpack/common/llm"
	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/core/config"
	"github.com/vins-anity/trailpack/internal/model"
)

// FallbackModel tags summaries produced by the template path.
const FallbackModel = "fallback"

// Options narrows what the narrative covers.
type Options struct {
	IncludeCommits bool
	Tone           string // e.g. "neutral", "celebratory"; empty = neutral
}

// Input is the reduced view of a task the cascade summarizes.
type Input struct {
	TaskKey     string
	TaskSummary string
	Events      []model.Event
	Options     Options
}

// Result is the produced summary plus the model id that produced it,
// or FallbackModel.
type Result struct {
	Text  string
	Model string
}

// Summarizer produces a summary for a task view. Implementations must
// be total: a nil error and a non-empty Text on every call.
type Summarizer interface {
	Summarize(ctx context.Context, input Input) *Result
}

type tier struct {
	client  llm.Client
	timeout time.Duration
}

// Cascade tries model tiers in configuration order with per-tier
// timeouts, then falls back to the template.
type Cascade struct {
	tiers     []tier
	maxTokens int
	logger    *slog.Logger
}

// NewCascade builds a cascade from the configured tiers. Tiers without
// credentials are skipped at construction time, so an unconfigured
// deployment goes straight to the template.
func NewCascade(cfg config.SummaryConfig, log *slog.Logger) *Cascade {
	if log == nil {
		log = slog.Default()
	}

	c := &Cascade{
		maxTokens: cfg.MaxTokens,
		logger:    log,
	}

	for _, tc := range cfg.Tiers {
		if !tc.Enabled() {
			continue
		}
		client, err := llm.New(llm.Config{
			Provider: tc.Provider,
			APIKey:   tc.APIKey,
			BaseURL:  tc.BaseURL,
			Model:    tc.Model,
		})
		if err != nil {
			log.Warn("skipping summary tier", "provider", tc.Provider, "model", tc.Model, "error", err)
			continue
		}
		c.tiers = append(c.tiers, tier{client: client, timeout: tc.Timeout})
	}

	return c
}

// IsConfigured reports whether any model tier is available. False
// means Summarize will always take the template path.
func (c *Cascade) IsConfigured() bool {
	return len(c.tiers) > 0
}

type narrative struct {
	Summary string `json:"summary" jsonschema_description:"Narrative summary of the task's delivery history, 2-4 sentences."`
}

var narrativeSchema = llm.GenerateSchema[narrative]()

func (c *Cascade) Summarize(ctx context.Context, input Input) *Result {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "trailpack.summary"})

	prompt := buildPrompt(input)

	for _, t := range c.tiers {
		result, err := c.attempt(ctx, t, prompt)
		if err != nil {
			c.logger.WarnContext(ctx, "summary tier failed, advancing",
				"model", t.client.Model(),
				"error", err)
			continue
		}
		c.logger.InfoContext(ctx, "summary generated", "model", t.client.Model())
		return result
	}

	c.logger.InfoContext(ctx, "all summary tiers exhausted, using template")
	return Fallback(input)
}

func (c *Cascade) attempt(ctx context.Context, t tier, prompt string) (*Result, error) {
	tierCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		tierCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var out narrative
	_, err := t.client.Chat(tierCtx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "task_summary",
		Schema:       narrativeSchema,
		MaxTokens:    c.maxTokens,
		Temperature:  llm.Temp(0.2),
	}, &out)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(out.Summary)
	if text == "" {
		return nil, fmt.Errorf("model returned empty summary")
	}

	return &Result{Text: text, Model: t.client.Model()}, nil
}

const systemPrompt = "You summarize the delivery history of a software task " +
	"from its verified event log. Be factual; mention only events present in " +
	"the log. Write 2-4 sentences."

func buildPrompt(input Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", input.TaskKey)
	if input.TaskSummary != "" {
		fmt.Fprintf(&b, "Description: %s\n", input.TaskSummary)
	}
	if input.Options.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", input.Options.Tone)
	}

	b.WriteString("\nEvent log (oldest first):\n")
	for _, ev := range input.Events {
		fmt.Fprintf(&b, "- %s %s (%s)", ev.CreatedAt.UTC().Format(time.RFC3339), ev.EventType, ev.TriggerSource)
		if detail := eventDetail(ev, input.Options.IncludeCommits); detail != "" {
			fmt.Fprintf(&b, ": %s", detail)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// eventDetail pulls human-readable context out of the normalized
// payload, best effort.
func eventDetail(ev model.Event, includeCommits bool) string {
	if len(ev.Payload) == 0 {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(ev.Payload, &fields); err != nil {
		return ""
	}

	var parts []string
	for _, key := range []string{"title", "text", "status"} {
		if v, ok := fields[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if includeCommits {
		if v, ok := fields["head_ref"].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}

	return strings.Join(parts, "; ")
}
