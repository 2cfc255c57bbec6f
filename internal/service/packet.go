package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vins-anity/trailpack/common/id"
	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/internal/chain"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/queue"
	"github.com/vins-anity/trailpack/internal/store"
	"github.com/vins-anity/trailpack/internal/summary"
)

// PacketView is a packet together with its task and the events it
// references, ready for API responses and rendering.
type PacketView struct {
	Packet *model.ProofPacket
	Task   *model.Task
	Events []model.Event
}

type SummarizeParams struct {
	PacketID int64
	Options  summary.Options
	// Async enqueues the job to the worker instead of generating
	// inline. Falls back to inline when no producer is wired.
	Async bool
}

type SummarizeResult struct {
	Packet   *model.ProofPacket
	Enqueued bool
}

type PacketService interface {
	// Assemble derives the task's open packet from its verified chain,
	// creating one if none is open. A corrupted chain blocks assembly.
	Assemble(ctx context.Context, taskID int64) (*model.ProofPacket, error)
	Get(ctx context.Context, packetID int64) (*PacketView, error)
	Summarize(ctx context.Context, params SummarizeParams) (*SummarizeResult, error)
	// Export renders a finalized packet to Markdown and marks it
	// exported. Repeatable.
	Export(ctx context.Context, packetID int64) (string, *model.ProofPacket, error)
	Share(ctx context.Context, packetID int64) (string, error)
	Unshare(ctx context.Context, packetID int64) error
	GetShared(ctx context.Context, token string) (*PacketView, error)
}

type packetService struct {
	stores     StoreProvider
	txRunner   TxRunner
	summarizer summary.Summarizer
	producer   queue.Producer // nil when async summaries are disabled
	logger     *slog.Logger
	now        func() time.Time
}

func NewPacketService(stores StoreProvider, txRunner TxRunner, summarizer summary.Summarizer, producer queue.Producer, logger *slog.Logger) PacketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &packetService{
		stores:     stores,
		txRunner:   txRunner,
		summarizer: summarizer,
		producer:   producer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *packetService) Assemble(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trailpack.service.packet",
		TaskID:    &taskID,
	})

	var packet *model.ProofPacket

	err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		if _, err := sp.Tasks().GetByID(ctx, taskID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("fetching task: %w", err)
		}

		// The append lock doubles as a snapshot barrier: no append can
		// interleave between the chain read and the packet write.
		if err := sp.Events().LockTask(ctx, taskID); err != nil {
			return fmt.Errorf("locking task: %w", err)
		}

		events, err := sp.Events().ListByTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if err := chain.Verify(events); err != nil {
			return err
		}

		state := deriveChainState(events)

		open, err := sp.Packets().GetOpenByTask(ctx, taskID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fetching open packet: %w", err)
		}

		if open == nil {
			// A closed epoch whose packet already exists is not
			// assembled again; a fresh assemble opens the next epoch
			// as an empty draft.
			if state.status == model.PacketFinalized {
				latest, err := sp.Packets().GetLatestByTask(ctx, taskID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("fetching latest packet: %w", err)
				}
				if latest != nil && latest.FinalizedAt != nil &&
					state.finalizedAt != nil && latest.FinalizedAt.Equal(*state.finalizedAt) {
					state = chainState{status: model.PacketDraft}
				}
			}
			packet, err = sp.Packets().Create(ctx, &model.ProofPacket{
				ID:           id.New(),
				TaskID:       taskID,
				Status:       state.status,
				EventIDs:     eventIDs(state.epoch),
				CreatedAt:    s.now().UTC(),
				PendingSince: state.pendingSince,
				FinalizedAt:  state.finalizedAt,
			})
			if err != nil {
				return fmt.Errorf("creating packet: %w", err)
			}
			return nil
		}

		open.Status = state.status
		open.EventIDs = eventIDs(state.epoch)
		open.PendingSince = state.pendingSince
		open.FinalizedAt = state.finalizedAt

		packet, err = sp.Packets().Update(ctx, open)
		if err != nil {
			return fmt.Errorf("updating packet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "packet assembled", "packet_id", packet.ID, "status", packet.Status)
	return packet, nil
}

func (s *packetService) Get(ctx context.Context, packetID int64) (*PacketView, error) {
	packet, err := s.getPacket(ctx, packetID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, packet)
}

func (s *packetService) Summarize(ctx context.Context, params SummarizeParams) (*SummarizeResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trailpack.service.packet",
		PacketID:  &params.PacketID,
	})

	packet, err := s.getPacket(ctx, params.PacketID)
	if err != nil {
		return nil, err
	}

	// A finalized packet's summary is fixed. Generating the missing one
	// is allowed; replacing an existing one is not.
	if packet.Status.Immutable() && packet.Summary != nil {
		return &SummarizeResult{Packet: packet}, nil
	}

	if params.Async && s.producer != nil {
		traceID := logger.TraceIDFromContext(ctx)
		if err := s.producer.EnqueueSummary(ctx, queue.SummaryMessage{
			PacketID:       packet.ID,
			IncludeCommits: params.Options.IncludeCommits,
			Tone:           params.Options.Tone,
			TraceID:        traceID,
			Attempt:        1,
		}); err != nil {
			return nil, fmt.Errorf("enqueueing summary job: %w", err)
		}
		return &SummarizeResult{Packet: packet, Enqueued: true}, nil
	}

	view, err := s.view(ctx, packet)
	if err != nil {
		return nil, err
	}

	result := s.summarizer.Summarize(ctx, summary.Input{
		TaskKey:     view.Task.TaskKey,
		TaskSummary: derefOr(view.Task.Summary, ""),
		Events:      view.Events,
		Options:     params.Options,
	})

	packet.Summary = &result.Text
	packet.SummaryModel = &result.Model

	updated, err := s.stores.Packets().Update(ctx, packet)
	if err != nil {
		return nil, fmt.Errorf("persisting summary: %w", err)
	}

	s.logger.InfoContext(ctx, "packet summarized", "model", result.Model)
	return &SummarizeResult{Packet: updated}, nil
}

func (s *packetService) Export(ctx context.Context, packetID int64) (string, *model.ProofPacket, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trailpack.service.packet",
		PacketID:  &packetID,
	})

	packet, err := s.getPacket(ctx, packetID)
	if err != nil {
		return "", nil, err
	}
	if !packet.Status.CanTransition(model.PacketExported) {
		return "", nil, ErrPacketNotFinalized
	}

	view, err := s.view(ctx, packet)
	if err != nil {
		return "", nil, err
	}

	doc := renderMarkdown(view)

	now := s.now().UTC()
	packet.Status = model.PacketExported
	packet.ExportedAt = &now

	updated, err := s.stores.Packets().Update(ctx, packet)
	if err != nil {
		return "", nil, fmt.Errorf("marking packet exported: %w", err)
	}

	s.logger.InfoContext(ctx, "packet exported")
	return doc, updated, nil
}

func (s *packetService) Share(ctx context.Context, packetID int64) (string, error) {
	packet, err := s.getPacket(ctx, packetID)
	if err != nil {
		return "", err
	}
	if !packet.Status.Immutable() {
		return "", ErrPacketNotFinalized
	}
	if packet.ShareToken != nil {
		return *packet.ShareToken, nil
	}

	token, err := newShareToken()
	if err != nil {
		return "", err
	}
	if err := s.stores.Packets().SetShareToken(ctx, packetID, &token); err != nil {
		return "", fmt.Errorf("storing share token: %w", err)
	}

	s.logger.InfoContext(ctx, "packet shared", "packet_id", packetID)
	return token, nil
}

func (s *packetService) Unshare(ctx context.Context, packetID int64) error {
	if _, err := s.getPacket(ctx, packetID); err != nil {
		return err
	}
	if err := s.stores.Packets().SetShareToken(ctx, packetID, nil); err != nil {
		return fmt.Errorf("revoking share token: %w", err)
	}
	s.logger.InfoContext(ctx, "share token revoked", "packet_id", packetID)
	return nil
}

func (s *packetService) GetShared(ctx context.Context, token string) (*PacketView, error) {
	packet, err := s.stores.Packets().GetByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPacketNotFound
		}
		return nil, fmt.Errorf("fetching shared packet: %w", err)
	}
	return s.view(ctx, packet)
}

func (s *packetService) getPacket(ctx context.Context, packetID int64) (*model.ProofPacket, error) {
	packet, err := s.stores.Packets().GetByID(ctx, packetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPacketNotFound
		}
		return nil, fmt.Errorf("fetching packet: %w", err)
	}
	return packet, nil
}

// view loads the packet's task and referenced events. Immutable
// packets read their event-id snapshot; open packets read the live
// chain.
func (s *packetService) view(ctx context.Context, packet *model.ProofPacket) (*PacketView, error) {
	task, err := s.stores.Tasks().GetByID(ctx, packet.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("fetching task: %w", err)
	}

	var events []model.Event
	if packet.Status.Immutable() {
		events, err = s.stores.Events().ListByIDs(ctx, packet.EventIDs)
	} else {
		events, err = s.stores.Events().ListByTask(ctx, packet.TaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing packet events: %w", err)
	}

	return &PacketView{Packet: packet, Task: task, Events: events}, nil
}

// chainState is the packet state implied by the current closure epoch.
// An epoch is the chain segment since the last effective finalization;
// each epoch belongs to exactly one packet.
type chainState struct {
	status       model.PacketStatus
	pendingSince *time.Time
	finalizedAt  *time.Time
	epoch        []model.Event
}

// deriveChainState walks the chain's closure events. finalized only
// counts when a proposal is actually pending, so a stray
// closure_finalized cannot skip the pending state. An event arriving
// after a finalization starts the next epoch, whose packet begins a
// fresh draft -> pending -> finalized lifecycle.
func deriveChainState(events []model.Event) chainState {
	status := model.PacketDraft
	var pendingSince, finalizedAt *time.Time
	epochStart := 0

	for i := range events {
		ev := &events[i]

		if finalizedAt != nil {
			status = model.PacketDraft
			pendingSince, finalizedAt = nil, nil
			epochStart = i
		}

		switch ev.EventType {
		case model.EventClosureProposed:
			if status == model.PacketDraft {
				status = model.PacketPending
				t := ev.CreatedAt
				pendingSince = &t
			}
		case model.EventClosureVetoed:
			if status == model.PacketPending {
				status = model.PacketDraft
				pendingSince = nil
			}
		case model.EventClosureFinalized:
			if status == model.PacketPending {
				status = model.PacketFinalized
				t := ev.CreatedAt
				finalizedAt = &t
			}
		}
	}

	return chainState{
		status:       status,
		pendingSince: pendingSince,
		finalizedAt:  finalizedAt,
		epoch:        events[epochStart:],
	}
}

// applyClosure materializes the current epoch's packet after a closure
// event was appended in the same transaction. When every earlier
// packet is immutable, the closure event itself opens the next
// epoch's packet.
func applyClosure(ctx context.Context, sp StoreProvider, taskID int64, ev *model.Event) error {
	events, err := sp.Events().ListByTask(ctx, taskID)
	if err != nil {
		return err
	}
	state := deriveChainState(events)

	packet, err := sp.Packets().GetOpenByTask(ctx, taskID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		_, err = sp.Packets().Create(ctx, &model.ProofPacket{
			ID:           id.New(),
			TaskID:       taskID,
			Status:       state.status,
			EventIDs:     eventIDs(state.epoch),
			CreatedAt:    ev.CreatedAt,
			PendingSince: state.pendingSince,
			FinalizedAt:  state.finalizedAt,
		})
		return err
	}

	packet.Status = state.status
	packet.EventIDs = eventIDs(state.epoch)
	packet.PendingSince = state.pendingSince
	packet.FinalizedAt = state.finalizedAt

	_, err = sp.Packets().Update(ctx, packet)
	return err
}

func eventIDs(events []model.Event) []int64 {
	ids := make([]int64, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	return ids
}

func newShareToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
