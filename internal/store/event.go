package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vins-anity/trailpack/core/db"
	"github.com/vins-anity/trailpack/internal/model"
)

type eventStore struct {
	q db.DBTX
}

const eventColumns = `id, task_id, seq, event_type, payload, trigger_source, event_hash, prev_hash, created_at`

// LockTask takes a transaction-scoped advisory lock on the task. The
// lock releases automatically at commit or rollback, so it spans
// exactly the read-tail-then-write-head step when called first in the
// append transaction.
func (s *eventStore) LockTask(ctx context.Context, taskID int64) error {
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, taskID)
	return err
}

func (s *eventStore) GetTail(ctx context.Context, taskID int64) (*model.Event, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE task_id = $1
		ORDER BY seq DESC
		LIMIT 1`, taskID)

	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (s *eventStore) Create(ctx context.Context, ev *model.Event) (*model.Event, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO events (id, task_id, seq, event_type, payload, trigger_source, event_hash, prev_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+eventColumns,
		ev.ID, ev.TaskID, ev.Seq, ev.EventType, []byte(ev.Payload), ev.TriggerSource, ev.EventHash, ev.PrevHash, ev.CreatedAt)

	return scanEvent(row)
}

func (s *eventStore) ListByTask(ctx context.Context, taskID int64) ([]model.Event, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE task_id = $1
		ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (s *eventStore) ListByIDs(ctx context.Context, ids []int64) ([]model.Event, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = ANY($1)
		ORDER BY seq ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var ev model.Event
	var payload []byte
	if err := row.Scan(&ev.ID, &ev.TaskID, &ev.Seq, &ev.EventType, &payload, &ev.TriggerSource, &ev.EventHash, &ev.PrevHash, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}
