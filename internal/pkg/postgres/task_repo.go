package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
)

// InsertTask inserts a new task row.
func (db *DB) InsertTask(ctx context.Context, t *persistence.Task) error {
	opts, err := json.Marshal(t.Options)
	if err != nil {
		return fmt.Errorf("can't marshal options: %w", err)
	}
	rows, err := db.pool.Query(ctx, `INSERT INTO tasks(id, user_id, title, source, file_key, source_url,
		content_hash, options, status, progress, created, updated, version, cancelled)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,1,false)`,
		t.ID, t.UserID, t.Title, t.Source, t.FileKey, t.SourceURL, t.ContentHash, opts,
		t.Status, t.Progress, t.Created)
	if err != nil {
		return fmt.Errorf("can't insert task: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadTask loads a task by ID; returns nil, nil if not found. Soft-deleted
// tasks are returned as well, with Deleted set.
func (db *DB) LoadTask(ctx context.Context, id string) (*persistence.Task, error) {
	var res persistence.Task
	var opts []byte
	err := db.pool.QueryRow(ctx, `SELECT id, user_id, title, source, file_key, source_url, content_hash,
		options, status, progress, duration_sec, error, created, updated, deleted, version, cancelled
		FROM tasks WHERE id = $1`, id).Scan(&res.ID, &res.UserID, &res.Title, &res.Source,
		&res.FileKey, &res.SourceURL, &res.ContentHash, &opts, &res.Status, &res.Progress,
		&res.DurationSec, &res.Error, &res.Created, &res.Updated, &res.Deleted, &res.Version, &res.Cancelled)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load task: %w", err)
	}
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &res.Options); err != nil {
			return nil, fmt.Errorf("can't unmarshal options: %w", err)
		}
	}
	return &res, nil
}

// FindTaskByContentHash implements the dedup/"instant upload" lookup: the
// most recent non-deleted, non-failed task owned by userID with this hash.
func (db *DB) FindTaskByContentHash(ctx context.Context, userID, hash string) (*persistence.Task, error) {
	var id string
	err := db.pool.QueryRow(ctx, `SELECT id FROM tasks
		WHERE user_id = $1 AND content_hash = $2 AND deleted = false AND status <> 'failed'
		ORDER BY created DESC LIMIT 1`, userID, hash).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't look up hash: %w", err)
	}
	return db.LoadTask(ctx, id)
}

// UpdateTaskProgress advances status/progress atomically, honoring
// monotone-progress (I-1): the SET clause keeps the higher of the stored
// and given progress, and leaves progress unchanged when the new status
// is `failed`.
func (db *DB) UpdateTaskProgress(ctx context.Context, id, status string, progress int32) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE tasks SET status = $2, progress = CASE WHEN $3 = 'failed' THEN progress ELSE GREATEST(progress, $4) END,
		updated = $5, version = version + 1
		WHERE id = $1`, id, status, status, progress, time.Now())
	if err != nil {
		return fmt.Errorf("can't update task progress: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// FailTask marks a task terminally failed with an error message.
func (db *DB) FailTask(ctx context.Context, id, errMsg string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE tasks SET status = 'failed', error = $2, updated = $3, version = version + 1
		WHERE id = $1`, id, errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("can't fail task: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// CancelTask sets the task-scoped cancellation flag checked by the
// orchestrator at stage checkpoints (§4.9.2); it does not itself change
// status — the orchestrator observes the flag and fails the task.
func (db *DB) CancelTask(ctx context.Context, id string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE tasks SET cancelled = true, updated = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("can't cancel task: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// IsCancelled reports the task-scoped cancellation flag.
func (db *DB) IsCancelled(ctx context.Context, id string) (bool, error) {
	var c bool
	if err := db.pool.QueryRow(ctx, `SELECT cancelled FROM tasks WHERE id = $1`, id).Scan(&c); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("can't check cancelled: %w", err)
	}
	return c, nil
}

// SetTaskDuration records the measured media duration once known (post-transcode).
func (db *DB) SetTaskDuration(ctx context.Context, id string, seconds float64) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE tasks SET duration_sec = $2, updated = $3 WHERE id = $1`,
		id, seconds, time.Now())
	if err != nil {
		return fmt.Errorf("can't set duration: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// SoftDeleteTask marks a task deleted without removing history.
func (db *DB) SoftDeleteTask(ctx context.Context, id string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE tasks SET deleted = true, updated = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("can't delete task: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// ListTasksFilter narrows ListTasks.
type ListTasksFilter struct {
	UserID   string
	Status   string
	Page     int
	PageSize int
}

// ListTasks returns a page of tasks for a user, optionally filtered by status.
func (db *DB) ListTasks(ctx context.Context, f ListTasksFilter) ([]*persistence.Task, int, error) {
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 100
	}
	if f.Page < 1 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.PageSize

	var total int
	if f.Status != "" {
		if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE user_id=$1 AND status=$2 AND deleted=false`,
			f.UserID, f.Status).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("can't count tasks: %w", err)
		}
	} else {
		if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE user_id=$1 AND deleted=false`,
			f.UserID).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("can't count tasks: %w", err)
		}
	}

	var rows pgx.Rows
	var err error
	if f.Status != "" {
		rows, err = db.pool.Query(ctx, `SELECT id, user_id, title, source, file_key, source_url, content_hash,
			options, status, progress, duration_sec, error, created, updated, deleted, version
			FROM tasks WHERE user_id=$1 AND status=$2 AND deleted=false ORDER BY created DESC LIMIT $3 OFFSET $4`,
			f.UserID, f.Status, f.PageSize, offset)
	} else {
		rows, err = db.pool.Query(ctx, `SELECT id, user_id, title, source, file_key, source_url, content_hash,
			options, status, progress, duration_sec, error, created, updated, deleted, version
			FROM tasks WHERE user_id=$1 AND deleted=false ORDER BY created DESC LIMIT $2 OFFSET $3`,
			f.UserID, f.PageSize, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("can't list tasks: %w", err)
	}
	defer rows.Close()

	res := []*persistence.Task{}
	for rows.Next() {
		var t persistence.Task
		var opts []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Source, &t.FileKey, &t.SourceURL,
			&t.ContentHash, &opts, &t.Status, &t.Progress, &t.DurationSec, &t.Error,
			&t.Created, &t.Updated, &t.Deleted, &t.Version); err != nil {
			return nil, 0, fmt.Errorf("can't scan task: %w", err)
		}
		if len(opts) > 0 {
			_ = json.Unmarshal(opts, &t.Options)
		}
		res = append(res, &t)
	}
	return res, total, nil
}
