package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
)

// LoadActiveStage returns the active TaskStage row for (taskID, stageType),
// or nil if none exists — used by the orchestrator's idempotency check
// ("short-circuit to next stage" on crash-resume).
func (db *DB) LoadActiveStage(ctx context.Context, taskID, stageType string) (*persistence.TaskStage, error) {
	var res persistence.TaskStage
	err := db.pool.QueryRow(ctx, `SELECT id, task_id, stage_type, status, started_at, completed_at,
		error, is_active, attempt_id, created FROM task_stages
		WHERE task_id = $1 AND stage_type = $2 AND is_active = true`, taskID, stageType).
		Scan(&res.ID, &res.TaskID, &res.StageType, &res.Status, &res.StartedAt, &res.CompletedAt,
			&res.Error, &res.IsActive, &res.AttemptID, &res.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load stage: %w", err)
	}
	return &res, nil
}

// StartStage archives any previous active row for this stage type (retry
// case) and inserts a fresh running row, returning it.
func (db *DB) StartStage(ctx context.Context, taskID, stageType, attemptID string) (*persistence.TaskStage, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't start tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE task_stages SET is_active = false WHERE task_id = $1 AND stage_type = $2 AND is_active = true`,
		taskID, stageType); err != nil {
		return nil, fmt.Errorf("can't archive stage: %w", err)
	}

	now := time.Now()
	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO task_stages(task_id, stage_type, status, started_at, is_active, attempt_id, created)
		VALUES($1,$2,'running',$3,true,$4,$3) RETURNING id`, taskID, stageType, now, attemptID).Scan(&id); err != nil {
		return nil, fmt.Errorf("can't insert stage: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("can't commit: %w", err)
	}
	return &persistence.TaskStage{ID: id, TaskID: taskID, StageType: stageType, Status: "running",
		StartedAt: sql.NullTime{Time: now, Valid: true}, IsActive: true, AttemptID: attemptID, Created: now}, nil
}

// CompleteStage marks a stage row completed.
func (db *DB) CompleteStage(ctx context.Context, id int64) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE task_stages SET status='completed', completed_at=$2 WHERE id=$1`,
		id, time.Now())
	if err != nil {
		return fmt.Errorf("can't complete stage: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("stage not found: %d", id)
	}
	return nil
}

// FailStage marks a stage row failed with an error message.
func (db *DB) FailStage(ctx context.Context, id int64, errMsg string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE task_stages SET status='failed', completed_at=$2, error=$3 WHERE id=$1`,
		id, time.Now(), errMsg)
	if err != nil {
		return fmt.Errorf("can't fail stage: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("stage not found: %d", id)
	}
	return nil
}

// SkipStage marks a stage row skipped (e.g. `resolve` for an upload-sourced task).
func (db *DB) SkipStage(ctx context.Context, taskID, stageType, attemptID string) error {
	now := time.Now()
	rows, err := db.pool.Query(ctx, `INSERT INTO task_stages(task_id, stage_type, status, started_at, completed_at, is_active, attempt_id, created)
		VALUES($1,$2,'skipped',$3,$3,true,$4,$3)`, taskID, stageType, now, attemptID)
	if err != nil {
		return fmt.Errorf("can't insert skipped stage: %w", err)
	}
	defer rows.Close()
	return nil
}

// ListActiveStages returns the active-stage prefix for a task, ordered by
// canonical stage order (insertion order is sufficient since stages are
// always started in order).
func (db *DB) ListActiveStages(ctx context.Context, taskID string) ([]*persistence.TaskStage, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, task_id, stage_type, status, started_at, completed_at,
		error, is_active, attempt_id, created FROM task_stages
		WHERE task_id = $1 AND is_active = true ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("can't list stages: %w", err)
	}
	defer rows.Close()
	res := []*persistence.TaskStage{}
	for rows.Next() {
		var s persistence.TaskStage
		if err := rows.Scan(&s.ID, &s.TaskID, &s.StageType, &s.Status, &s.StartedAt, &s.CompletedAt,
			&s.Error, &s.IsActive, &s.AttemptID, &s.Created); err != nil {
			return nil, fmt.Errorf("can't scan stage: %w", err)
		}
		res = append(res, &s)
	}
	return res, nil
}
