package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/core/config"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/store"
)

// TriggerSourceVetoWindow marks events appended by the closure sweeper
// rather than by a provider delivery.
const TriggerSourceVetoWindow = "system:veto_window"

const sweepBatchSize = 100

// ClosureService finalizes packets whose veto window has elapsed. A
// packet proposed for closure stays pending until either a veto reverts
// it or the window runs out, at which point a closure_finalized event
// is appended on the task's chain and the packet becomes immutable.
type ClosureService interface {
	SweepExpired(ctx context.Context) (int, error)
}

type closureService struct {
	stores   StoreProvider
	txRunner TxRunner
	cfg      config.ClosureConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewClosureService(stores StoreProvider, txRunner TxRunner, cfg config.ClosureConfig, logger *slog.Logger) ClosureService {
	if logger == nil {
		logger = slog.Default()
	}
	return &closureService{
		stores:   stores,
		txRunner: txRunner,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SweepExpired scans pending packets and finalizes every one whose
// window has elapsed. Each packet is handled in its own transaction so
// one failure does not hold up the rest of the batch.
func (s *closureService) SweepExpired(ctx context.Context) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "trailpack.service.closure"})

	now := s.now().UTC()
	candidates, err := s.stores.Packets().ListPendingBefore(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: listing pending packets: %v", ErrPersistence, err)
	}

	finalized := 0
	for i := range candidates {
		done, err := s.finalizeIfExpired(ctx, candidates[i].ID, now)
		if err != nil {
			s.logger.WarnContext(ctx, "veto window sweep failed for packet",
				"packet_id", candidates[i].ID, "error", err)
			continue
		}
		if done {
			finalized++
		}
	}

	if finalized > 0 {
		s.logger.InfoContext(ctx, "veto window sweep finalized packets", "count", finalized)
	}
	return finalized, nil
}

func (s *closureService) finalizeIfExpired(ctx context.Context, packetID int64, now time.Time) (bool, error) {
	finalized := false

	err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		packet, err := sp.Packets().GetByID(ctx, packetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("fetching packet: %w", err)
		}

		// Serialize against concurrent appends, then re-check: a veto
		// may have reverted the packet since it was listed.
		if err := sp.Events().LockTask(ctx, packet.TaskID); err != nil {
			return fmt.Errorf("acquiring task append lock: %w", err)
		}
		packet, err = sp.Packets().GetByID(ctx, packetID)
		if err != nil {
			return fmt.Errorf("re-reading packet: %w", err)
		}
		if packet.Status != model.PacketPending || packet.PendingSince == nil {
			return nil
		}

		window, err := s.vetoWindow(ctx, sp, packet.TaskID)
		if err != nil {
			return err
		}
		if now.Before(packet.PendingSince.Add(window)) {
			return nil
		}

		payload, err := json.Marshal(map[string]any{
			"reason":         "veto_window_elapsed",
			"window_seconds": int64(window / time.Second),
		})
		if err != nil {
			return fmt.Errorf("encoding closure payload: %w", err)
		}

		ev, err := appendLocked(ctx, sp, packet.TaskID, model.EventClosureFinalized, payload, TriggerSourceVetoWindow, now)
		if err != nil {
			return err
		}
		if err := applyClosure(ctx, sp, packet.TaskID, ev); err != nil {
			return fmt.Errorf("finalizing packet: %w", err)
		}

		finalized = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finalized, nil
}

// vetoWindow resolves the effective window for a task's workspace,
// falling back to the deployment default.
func (s *closureService) vetoWindow(ctx context.Context, sp StoreProvider, taskID int64) (time.Duration, error) {
	task, err := sp.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("fetching task: %w", err)
	}
	ws, err := sp.Workspaces().GetByID(ctx, task.WorkspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.cfg.DefaultVetoWindow, nil
		}
		return 0, fmt.Errorf("fetching workspace: %w", err)
	}
	if ws.VetoWindowSeconds != nil && *ws.VetoWindowSeconds > 0 {
		return time.Duration(*ws.VetoWindowSeconds) * time.Second, nil
	}
	return s.cfg.DefaultVetoWindow, nil
}
