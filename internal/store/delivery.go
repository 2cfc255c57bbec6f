package store

import (
	"context"

	"github.com/vins-anity/trailpack/common/id"
	"github.com/vins-anity/trailpack/core/db"
	"github.com/vins-anity/trailpack/internal/model"
)

type deliveryStore struct {
	q db.DBTX
}

// Insert records a provider delivery ID. It reports false when the same
// delivery was already recorded, which callers treat as a duplicate.
func (s *deliveryStore) Insert(ctx context.Context, provider model.Provider, deliveryID string) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, provider, delivery_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (provider, delivery_id) DO NOTHING`,
		id.New(), provider, deliveryID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
