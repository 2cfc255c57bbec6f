package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vins-anity/trailpack/core/db"
	"github.com/vins-anity/trailpack/internal/model"
)

type packetStore struct {
	q db.DBTX
}

const packetColumns = `id, task_id, status, event_ids, summary, summary_model, share_token, created_at, pending_since, finalized_at, exported_at`

func (s *packetStore) GetByID(ctx context.Context, id int64) (*model.ProofPacket, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+packetColumns+`
		FROM proof_packets
		WHERE id = $1`, id)
	return scanPacketRow(row)
}

func (s *packetStore) GetOpenByTask(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+packetColumns+`
		FROM proof_packets
		WHERE task_id = $1 AND status IN ('draft', 'pending')
		ORDER BY created_at DESC
		LIMIT 1`, taskID)
	return scanPacketRow(row)
}

func (s *packetStore) GetLatestByTask(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+packetColumns+`
		FROM proof_packets
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, taskID)
	return scanPacketRow(row)
}

func (s *packetStore) GetByShareToken(ctx context.Context, token string) (*model.ProofPacket, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+packetColumns+`
		FROM proof_packets
		WHERE share_token = $1`, token)
	return scanPacketRow(row)
}

func (s *packetStore) Create(ctx context.Context, packet *model.ProofPacket) (*model.ProofPacket, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO proof_packets (id, task_id, status, event_ids, summary, summary_model, share_token, created_at, pending_since, finalized_at, exported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+packetColumns,
		packet.ID, packet.TaskID, packet.Status, packet.EventIDs, packet.Summary, packet.SummaryModel,
		packet.ShareToken, packet.CreatedAt, packet.PendingSince, packet.FinalizedAt, packet.ExportedAt)
	return scanPacketRow(row)
}

func (s *packetStore) Update(ctx context.Context, packet *model.ProofPacket) (*model.ProofPacket, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE proof_packets
		SET status = $2, event_ids = $3, summary = $4, summary_model = $5,
		    pending_since = $6, finalized_at = $7, exported_at = $8
		WHERE id = $1
		RETURNING `+packetColumns,
		packet.ID, packet.Status, packet.EventIDs, packet.Summary, packet.SummaryModel,
		packet.PendingSince, packet.FinalizedAt, packet.ExportedAt)
	return scanPacketRow(row)
}

func (s *packetStore) SetShareToken(ctx context.Context, id int64, token *string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE proof_packets SET share_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *packetStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int32) ([]model.ProofPacket, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+packetColumns+`
		FROM proof_packets
		WHERE status = 'pending' AND pending_since IS NOT NULL AND pending_since < $1
		ORDER BY pending_since ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packets []model.ProofPacket
	for rows.Next() {
		p, err := scanPacketRow(rows)
		if err != nil {
			return nil, err
		}
		packets = append(packets, *p)
	}
	return packets, rows.Err()
}

func scanPacketRow(row pgx.Row) (*model.ProofPacket, error) {
	var p model.ProofPacket
	err := row.Scan(&p.ID, &p.TaskID, &p.Status, &p.EventIDs, &p.Summary, &p.SummaryModel,
		&p.ShareToken, &p.CreatedAt, &p.PendingSince, &p.FinalizedAt, &p.ExportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
