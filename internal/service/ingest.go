package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vins-anity/trailpack/common/id"
	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/internal/chain"
	"github.com/vins-anity/trailpack/internal/mapper"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/store"
	"github.com/vins-anity/trailpack/internal/verify"
)

// Provider signature headers the ingestion pipeline reads.
const (
	HeaderSlackSignature = "X-Slack-Signature"
	HeaderSlackTimestamp = "X-Slack-Request-Timestamp"
	HeaderGitHubSig256   = "X-Hub-Signature-256"
	HeaderJiraSignature  = "X-Jira-Signature"
)

type IngestParams struct {
	WorkspaceID int64
	Provider    model.Provider
	Body        []byte // exact wire bytes, verified before any parsing is trusted
	Headers     map[string]string
}

type IngestResult struct {
	Event     *model.Event // nil when the delivery was ignored or deduped
	Task      *model.Task
	Duplicate bool
	// Ignored is set for provider events with no canonical mapping or
	// no resolvable task reference. They are acknowledged, not stored.
	Ignored      bool
	IgnoreReason string
}

type IngestService interface {
	Ingest(ctx context.Context, params IngestParams) (*IngestResult, error)
}

type ingestService struct {
	stores   StoreProvider
	txRunner TxRunner
	mappers  map[model.Provider]mapper.EventMapper
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestService(stores StoreProvider, txRunner TxRunner, logger *slog.Logger) IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ingestService{
		stores:   stores,
		txRunner: txRunner,
		mappers: map[model.Provider]mapper.EventMapper{
			model.ProviderSlack:  mapper.NewSlackMapper(),
			model.ProviderGitHub: mapper.NewGitHubMapper(),
			model.ProviderJira:   mapper.NewJiraMapper(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Ingest authenticates a raw webhook delivery, normalizes it and
// appends it to the task's chain. It is idempotent across provider
// redeliveries: the dedupe insert and the append commit atomically, so
// a retried delivery either sees its dedupe row or gets a clean retry.
func (s *ingestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:   "trailpack.service.ingest",
		WorkspaceID: &params.WorkspaceID,
		Provider:    logger.Ptr(string(params.Provider)),
	})

	if _, ok := s.mappers[params.Provider]; !ok {
		return nil, fmt.Errorf("unknown provider %q", params.Provider)
	}

	secret, err := s.stores.Workspaces().GetSecret(ctx, params.WorkspaceID, params.Provider)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, verify.ErrSecretNotConfigured
		}
		return nil, fmt.Errorf("%w: fetching workspace secret: %v", ErrPersistence, err)
	}

	if err := s.verifySignature(secret, params); err != nil {
		s.logger.WarnContext(ctx, "webhook signature rejected", "error", err)
		return nil, err
	}

	norm, err := s.mappers[params.Provider].Map(ctx, params.Body, params.Headers)
	if err != nil {
		if errors.Is(err, mapper.ErrUnsupportedEvent) {
			return &IngestResult{Ignored: true, IgnoreReason: "unsupported_event"}, nil
		}
		return nil, fmt.Errorf("normalizing %s payload: %w", params.Provider, err)
	}
	if norm.TaskKey == "" {
		return &IngestResult{Ignored: true, IgnoreReason: "no_task_reference"}, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventType:  logger.Ptr(string(norm.EventType)),
		DeliveryID: logger.Ptr(norm.DeliveryID),
	})

	var result IngestResult

	txErr := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		if norm.DeliveryID != "" {
			created, err := sp.Deliveries().Insert(ctx, params.Provider, norm.DeliveryID)
			if err != nil {
				return fmt.Errorf("recording delivery: %w", err)
			}
			if !created {
				result.Duplicate = true
				return nil
			}
		}

		task, err := s.resolveTask(ctx, sp, params.WorkspaceID, norm)
		if err != nil {
			return err
		}
		result.Task = task

		ev, err := appendLocked(ctx, sp, task.ID, norm.EventType, norm.Payload, norm.TriggerSource, s.now().UTC())
		if err != nil {
			return err
		}
		result.Event = ev

		if ev.EventType.IsClosure() {
			if err := applyClosure(ctx, sp, task.ID, ev); err != nil {
				return fmt.Errorf("advancing packet state: %w", err)
			}
		}

		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrTaskNotFound) {
			result.Ignored = true
			result.IgnoreReason = "unknown_task"
			return &result, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, txErr)
	}

	switch {
	case result.Duplicate:
		s.logger.InfoContext(ctx, "duplicate delivery deduped")
	default:
		s.logger.InfoContext(ctx, "event appended",
			"event_id", result.Event.ID,
			"task_id", result.Task.ID,
			"seq", result.Event.Seq)
	}

	return &result, nil
}

func (s *ingestService) verifySignature(secret string, params IngestParams) error {
	switch params.Provider {
	case model.ProviderSlack:
		return verify.Slack(secret, params.Body,
			params.Headers[HeaderSlackSignature],
			params.Headers[HeaderSlackTimestamp],
			s.now())
	case model.ProviderGitHub:
		return verify.GitHub(secret, params.Body, params.Headers[HeaderGitHubSig256])
	case model.ProviderJira:
		return verify.Jira(secret, params.Body, params.Headers[HeaderJiraSignature])
	}
	return fmt.Errorf("unknown provider %q", params.Provider)
}

// resolveTask finds the task a normalized event belongs to. Handshake
// events may create the task; everything else requires it to exist
// already.
func (s *ingestService) resolveTask(ctx context.Context, sp StoreProvider, workspaceID int64, norm *mapper.Normalized) (*model.Task, error) {
	if norm.EventType == model.EventHandshake {
		task, err := sp.Tasks().Upsert(ctx, &model.Task{
			ID:          id.New(),
			WorkspaceID: workspaceID,
			TaskKey:     norm.TaskKey,
			Summary:     taskSummaryFromPayload(norm),
		})
		if err != nil {
			return nil, fmt.Errorf("upserting task %s: %w", norm.TaskKey, err)
		}
		return task, nil
	}

	task, err := sp.Tasks().GetByWorkspaceAndKey(ctx, workspaceID, norm.TaskKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("fetching task %s: %w", norm.TaskKey, err)
	}
	return task, nil
}

// appendLocked performs the read-tail-then-write-head step under the
// per-task advisory lock. The lock is transaction scoped, so the tail
// read and the insert commit or roll back together and concurrent
// appends to the same task cannot fork the chain.
func appendLocked(ctx context.Context, sp StoreProvider, taskID int64, eventType model.EventType, payload json.RawMessage, triggerSource string, at time.Time) (*model.Event, error) {
	if err := sp.Events().LockTask(ctx, taskID); err != nil {
		return nil, fmt.Errorf("acquiring task append lock: %w", err)
	}

	prevHash := chain.Genesis
	var seq int64 = 1
	createdAt := at

	tail, err := sp.Events().GetTail(ctx, taskID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reading chain tail: %w", err)
	}
	if tail != nil {
		prevHash = tail.EventHash
		seq = tail.Seq + 1
		// created_at is non-decreasing within a task even if the wall
		// clock steps backwards between appends.
		if createdAt.Before(tail.CreatedAt) {
			createdAt = tail.CreatedAt
		}
	}

	ev := &model.Event{
		ID:            id.New(),
		TaskID:        taskID,
		Seq:           seq,
		EventType:     eventType,
		Payload:       payload,
		TriggerSource: triggerSource,
		PrevHash:      prevHash,
		CreatedAt:     createdAt,
	}

	hash, err := chain.Hash(ev, prevHash)
	if err != nil {
		return nil, fmt.Errorf("hashing event: %w", err)
	}
	ev.EventHash = hash

	created, err := sp.Events().Create(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}
	return created, nil
}

func taskSummaryFromPayload(norm *mapper.Normalized) *string {
	var fields struct {
		Title string `json:"title"`
	}
	if len(norm.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(norm.Payload, &fields); err != nil || fields.Title == "" {
		return nil
	}
	return &fields.Title
}
