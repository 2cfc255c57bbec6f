package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vins-anity/trailpack/core/db"
	"github.com/vins-anity/trailpack/internal/model"
)

type workspaceStore struct {
	q db.DBTX
}

func (s *workspaceStore) GetByID(ctx context.Context, id int64) (*model.Workspace, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, name, veto_window_seconds, created_at, updated_at
		FROM workspaces
		WHERE id = $1`, id)

	var w model.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.VetoWindowSeconds, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *workspaceStore) GetSecret(ctx context.Context, workspaceID int64, provider model.Provider) (string, error) {
	row := s.q.QueryRow(ctx, `
		SELECT secret
		FROM workspace_secrets
		WHERE workspace_id = $1 AND provider = $2`, workspaceID, provider)

	var secret string
	if err := row.Scan(&secret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

func (s *workspaceStore) UpsertSecret(ctx context.Context, secret *model.WorkspaceSecret) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO workspace_secrets (workspace_id, provider, secret, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (workspace_id, provider)
		DO UPDATE SET secret = EXCLUDED.secret, updated_at = now()`,
		secret.WorkspaceID, secret.Provider, secret.Secret)
	return err
}
