package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/internal/queue"
	"github.com/vins-anity/trailpack/internal/service"
	"github.com/vins-anity/trailpack/internal/summary"
)

// Processor executes queued jobs. Summary jobs run the cascade against
// the packet's event view and persist the result; they are idempotent,
// so redelivery after a crash at worst regenerates the same summary.
type Processor struct {
	packets service.PacketService
}

func NewProcessor(packets service.PacketService) *Processor {
	return &Processor{packets: packets}
}

func (p *Processor) Process(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_message")
	defer sc.End()
	ctx = sc.Context()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trailpack.worker.processor",
		PacketID:  &msg.PacketID,
		MessageID: &msg.ID,
	})

	switch msg.JobType {
	case queue.JobSummary:
		err := p.processSummary(ctx, msg)
		sc.RecordError(err)
		return err
	default:
		// Unknown jobs are acknowledged, not retried. Retrying cannot
		// make the job type recognizable.
		slog.WarnContext(ctx, "unknown job type, skipping", "job_type", msg.JobType)
		return nil
	}
}

func (p *Processor) processSummary(ctx context.Context, msg queue.Message) error {
	slog.InfoContext(ctx, "generating packet summary", "attempt", msg.Attempt)

	start := time.Now()
	res, err := p.packets.Summarize(ctx, service.SummarizeParams{
		PacketID: msg.PacketID,
		Options: summary.Options{
			IncludeCommits: msg.IncludeCommits,
			Tone:           msg.Tone,
		},
	})
	if err != nil {
		if errors.Is(err, service.ErrPacketNotFound) {
			slog.WarnContext(ctx, "packet gone, dropping summary job")
			return nil
		}
		return fmt.Errorf("summarizing packet: %w", err)
	}

	slog.InfoContext(ctx, "packet summary generated",
		"model", derefOr(res.Packet.SummaryModel, ""),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func derefOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}
