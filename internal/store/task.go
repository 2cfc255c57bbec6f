package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vins-anity/trailpack/core/db"
	"github.com/vins-anity/trailpack/internal/model"
)

type taskStore struct {
	q db.DBTX
}

const taskColumns = `id, workspace_id, task_key, summary, created_at, updated_at`

func (s *taskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1`, id)
	return scanTask(row)
}

func (s *taskStore) GetByWorkspaceAndKey(ctx context.Context, workspaceID int64, taskKey string) (*model.Task, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE workspace_id = $1 AND task_key = $2`, workspaceID, taskKey)
	return scanTask(row)
}

// Upsert inserts the task or, on a (workspace_id, task_key) conflict,
// refreshes the summary and returns the existing row.
func (s *taskStore) Upsert(ctx context.Context, task *model.Task) (*model.Task, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO tasks (id, workspace_id, task_key, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (workspace_id, task_key)
		DO UPDATE SET summary = COALESCE(EXCLUDED.summary, tasks.summary), updated_at = now()
		RETURNING `+taskColumns,
		task.ID, task.WorkspaceID, task.TaskKey, task.Summary)
	return scanTask(row)
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.TaskKey, &t.Summary, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
