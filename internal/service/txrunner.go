package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/vins-anity/trailpack/core/db"
	"github.com/vins-anity/trailpack/internal/store"
)

// StoreProvider exposes only the stores needed by a transactional operation.
type StoreProvider interface {
	Tasks() store.TaskStore
	Events() store.EventStore
	Packets() store.PacketStore
	Deliveries() store.DeliveryStore
	Workspaces() store.WorkspaceStore
}

// TxRunner runs functions within a transaction and provides stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(database *db.DB) TxRunner {
	return &dbTxRunner{db: database}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(store.NewStores(tx))
	})
}
