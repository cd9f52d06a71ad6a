package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
)

const taskColumns = `id, kind, temp_order_id, run_at, attempts, status, last_error, locked_until, created_at, updated_at`

type taskRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewTaskRepository creates a new pipeline task repository
func NewTaskRepository(db DBTX, logger *zap.Logger) *taskRepository {
	return &taskRepository{
		db:     db,
		logger: logger,
	}
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var lastError sql.NullString
	var lockedUntil sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.TempOrderID,
		&task.RunAt,
		&task.Attempts,
		&task.Status,
		&lastError,
		&lockedUntil,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		task.LastError = &lastError.String
	}
	if lockedUntil.Valid {
		task.LockedUntil = &lockedUntil.Time
	}
	return &task, nil
}

func (r *taskRepository) Enqueue(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO pipeline_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusQueued
	}
	if task.RunAt.IsZero() {
		task.RunAt = now
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Kind,
		task.TempOrderID,
		task.RunAt,
		task.Attempts,
		task.Status,
		task.LastError,
		task.LockedUntil,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to enqueue task",
			zap.String("task_kind", string(task.Kind)),
			zap.String("temp_order_id", task.TempOrderID.String()),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func (r *taskRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.Task, error) {
	// expired leases are reclaimed so a crashed worker never strands a task
	query := `
		UPDATE pipeline_tasks
		SET status = 'running', attempts = attempts + 1, locked_until = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM pipeline_tasks
			WHERE (status = 'queued' AND run_at <= $1)
			   OR (status = 'running' AND locked_until < $1)
			ORDER BY run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := r.db.QueryContext(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		r.logger.Error("Failed to claim tasks", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE pipeline_tasks SET status = 'done', locked_until = NULL, updated_at = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		r.logger.Error("Failed to complete task", zap.String("task_id", id.String()), zap.Error(err))
		return err
	}
	return expectAffected(result, "task", id)
}

func (r *taskRepository) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	query := `
		UPDATE pipeline_tasks
		SET status = 'queued', run_at = $2, last_error = $3, locked_until = NULL, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, runAt, nullString(lastError), time.Now())
	if err != nil {
		r.logger.Error("Failed to reschedule task", zap.String("task_id", id.String()), zap.Error(err))
		return err
	}
	return expectAffected(result, "task", id)
}

func (r *taskRepository) Fail(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `UPDATE pipeline_tasks SET status = 'dead', last_error = $2, locked_until = NULL, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, nullString(lastError), time.Now())
	if err != nil {
		r.logger.Error("Failed to mark task dead", zap.String("task_id", id.String()), zap.Error(err))
		return err
	}
	return expectAffected(result, "task", id)
}
