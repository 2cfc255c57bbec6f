package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vins-anity/trailpack/common/llm"
	"github.com/vins-anity/trailpack/core/config"
	"github.com/vins-anity/trailpack/internal/model"
)

type fakeClient struct {
	model   string
	text    string
	err     error
	calls   int
	blockOn bool
}

func (f *fakeClient) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	f.calls++
	if f.blockOn {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	data, _ := json.Marshal(map[string]string{"summary": f.text})
	if err := json.Unmarshal(data, result); err != nil {
		return nil, err
	}
	return &llm.Response{}, nil
}

func (f *fakeClient) Model() string { return f.model }

func sampleInput() Input {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return Input{
		TaskKey:     "PROJ-142",
		TaskSummary: "Migrate billing exports",
		Events: []model.Event{
			{EventType: model.EventHandshake, TriggerSource: "jira:webhook", CreatedAt: now},
			{EventType: model.EventPROpened, TriggerSource: "github:webhook", CreatedAt: now.Add(time.Hour)},
			{EventType: model.EventPRApproved, TriggerSource: "github:webhook", CreatedAt: now.Add(2 * time.Hour)},
			{EventType: model.EventPRMerged, TriggerSource: "github:webhook", CreatedAt: now.Add(3 * time.Hour)},
			{EventType: model.EventCIPassed, TriggerSource: "github:webhook", CreatedAt: now.Add(4 * time.Hour)},
			{EventType: model.EventClosureFinalized, TriggerSource: "slack:webhook", CreatedAt: now.Add(5 * time.Hour)},
		},
	}
}

var _ = Describe("Cascade", func() {
	It("returns the first tier's summary when it succeeds", func() {
		first := &fakeClient{model: "model-a", text: "All six events verified."}
		second := &fakeClient{model: "model-b", text: "should not be reached"}
		c := &Cascade{
			tiers:     []tier{{client: first, timeout: time.Second}, {client: second, timeout: time.Second}},
			maxTokens: 512,
			logger:    slog.Default(),
		}

		result := c.Summarize(context.Background(), sampleInput())
		Expect(result.Text).To(Equal("All six events verified."))
		Expect(result.Model).To(Equal("model-a"))
		Expect(second.calls).To(BeZero())
	})

	It("advances past a failing tier", func() {
		first := &fakeClient{model: "model-a", err: fmt.Errorf("rate limited")}
		second := &fakeClient{model: "model-b", text: "Recovered on the second tier."}
		c := &Cascade{tiers: []tier{{client: first, timeout: time.Second}, {client: second, timeout: time.Second}}, logger: slog.Default()}

		result := c.Summarize(context.Background(), sampleInput())
		Expect(result.Model).To(Equal("model-b"))
		Expect(first.calls).To(Equal(1))
	})

	It("treats an empty model response as a tier failure", func() {
		first := &fakeClient{model: "model-a", text: "   "}
		second := &fakeClient{model: "model-b", text: "ok"}
		c := &Cascade{tiers: []tier{{client: first, timeout: time.Second}, {client: second, timeout: time.Second}}, logger: slog.Default()}

		result := c.Summarize(context.Background(), sampleInput())
		Expect(result.Model).To(Equal("model-b"))
	})

	It("treats a tier timeout like any other tier error", func() {
		stuck := &fakeClient{model: "model-a", blockOn: true}
		second := &fakeClient{model: "model-b", text: "timed past the first tier"}
		c := &Cascade{tiers: []tier{{client: stuck, timeout: 10 * time.Millisecond}, {client: second, timeout: time.Second}}, logger: slog.Default()}

		result := c.Summarize(context.Background(), sampleInput())
		Expect(result.Model).To(Equal("model-b"))
	})

	It("falls back to the template when every tier fails", func() {
		a := &fakeClient{model: "model-a", err: fmt.Errorf("boom")}
		b := &fakeClient{model: "model-b", blockOn: true}
		c := &Cascade{tiers: []tier{{client: a, timeout: time.Second}, {client: b, timeout: 10 * time.Millisecond}}, logger: slog.Default()}

		result := c.Summarize(context.Background(), sampleInput())
		Expect(result.Text).NotTo(BeEmpty())
		Expect(result.Model).To(Equal(FallbackModel))
	})

	It("goes straight to the template when no tier is configured", func() {
		c := NewCascade(config.SummaryConfig{}, nil)
		Expect(c.IsConfigured()).To(BeFalse())

		result := c.Summarize(context.Background(), sampleInput())
		Expect(result.Text).NotTo(BeEmpty())
		Expect(result.Model).To(Equal(FallbackModel))
	})
})

var _ = Describe("Fallback", func() {
	It("mentions merged PRs, approvals, CI and closure state", func() {
		result := Fallback(sampleInput())
		Expect(result.Model).To(Equal(FallbackModel))
		Expect(result.Text).To(ContainSubstring("PROJ-142"))
		Expect(result.Text).To(ContainSubstring("6 lifecycle events"))
		Expect(result.Text).To(ContainSubstring("1 pull request(s) merged"))
		Expect(result.Text).To(ContainSubstring("1 approval(s)"))
		Expect(result.Text).To(ContainSubstring("CI passed."))
		Expect(result.Text).To(ContainSubstring("Closure finalized."))
	})

	It("is deterministic for the same input", func() {
		Expect(Fallback(sampleInput()).Text).To(Equal(Fallback(sampleInput()).Text))
	})

	It("produces non-empty text for an empty event list", func() {
		result := Fallback(Input{TaskKey: "PROJ-1"})
		Expect(result.Text).NotTo(BeEmpty())
	})

	It("reports a vetoed closure that was not re-proposed", func() {
		input := Input{
			TaskKey: "PROJ-9",
			Events: []model.Event{
				{EventType: model.EventClosureProposed},
				{EventType: model.EventClosureVetoed},
			},
		}
		Expect(Fallback(input).Text).To(ContainSubstring("vetoed"))
	})
})
