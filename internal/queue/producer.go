// Package queue carries background jobs between the server and the
// worker over Redis streams. Summary generation is the only job type
// today; the veto-window sweep runs on a worker-local ticker and never
// crosses the queue.
package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	// Stream is the job stream the worker's consumer group reads.
	Stream = "trailpack_jobs"
	// DLQStream receives jobs that exhausted their retry budget.
	DLQStream = "trailpack_jobs_dlq"
)

// SummaryMessage asks the worker to generate and persist a summary for
// a proof packet.
type SummaryMessage struct {
	PacketID       int64
	IncludeCommits bool
	Tone           string
	TraceID        *string
	Attempt        int
}

type Producer interface {
	EnqueueSummary(ctx context.Context, msg SummaryMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) EnqueueSummary(ctx context.Context, msg SummaryMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"job_type":        string(JobSummary),
		"packet_id":       msg.PacketID,
		"include_commits": msg.IncludeCommits,
		"attempt":         attempt,
	}
	if msg.Tone != "" {
		fields["tone"] = msg.Tone
	}
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue summary job: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued summary job", "packet_id", msg.PacketID, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
