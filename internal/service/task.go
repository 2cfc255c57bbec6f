package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/internal/chain"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/store"
)

// ChainReport is the outcome of a verification pass over a task's
// chain.
type ChainReport struct {
	Valid   bool   `json:"valid"`
	Events  int    `json:"events"`
	EventID *int64 `json:"event_id,omitempty"` // first corrupted event
	Reason  string `json:"reason,omitempty"`
}

type TaskService interface {
	ListEvents(ctx context.Context, taskID int64) ([]model.Event, error)
	// VerifyChain recomputes the task's full chain. Corruption is
	// reported, never repaired.
	VerifyChain(ctx context.Context, taskID int64) (*ChainReport, error)
}

type taskService struct {
	stores StoreProvider
	logger *slog.Logger
}

func NewTaskService(stores StoreProvider, logger *slog.Logger) TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &taskService{stores: stores, logger: logger}
}

func (s *taskService) ListEvents(ctx context.Context, taskID int64) ([]model.Event, error) {
	if _, err := s.stores.Tasks().GetByID(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("fetching task: %w", err)
	}
	return s.stores.Events().ListByTask(ctx, taskID)
}

func (s *taskService) VerifyChain(ctx context.Context, taskID int64) (*ChainReport, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trailpack.service.task",
		TaskID:    &taskID,
	})

	events, err := s.ListEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{Valid: true, Events: len(events)}

	if err := chain.Verify(events); err != nil {
		var corrupted *chain.CorruptionError
		if errors.As(err, &corrupted) {
			report.Valid = false
			report.EventID = &corrupted.EventID
			report.Reason = corrupted.Reason
			s.logger.ErrorContext(ctx, "chain corruption detected",
				"event_id", corrupted.EventID,
				"reason", corrupted.Reason)
			return report, nil
		}
		return nil, err
	}

	return report, nil
}
