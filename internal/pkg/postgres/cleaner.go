package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner purges all rows belonging to soft-deleted tasks whose deletion
// is older than the configured retention, across the pipeline tables.
// Adapted from the teacher's per-ID DELETE loop.
type Cleaner struct {
	pool   *pgxpool.Pool
	tables []string
}

// NewCleaner wires a cleaner over the known per-task tables.
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	res := &Cleaner{pool: pool, tables: []string{"transcript_segments", "summaries",
		"task_stages", "quota_commit_ledger", "tasks"}}
	return res, nil
}

// Clean hard-deletes every row related to a task ID, used when a soft
// delete's retention window has passed.
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	col := "task_id"
	for _, t := range db.tables {
		if t == "tasks" {
			col = "id"
		}
		cmd, err := db.pool.Exec(ctx, `DELETE FROM `+t+` WHERE `+col+` = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, t, err)
		}
		goapp.Log.Info().Str("ID", id).Str("table", t).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	}
	return nil
}

// GetExpiredDeleted returns task IDs soft-deleted before the retention cutoff.
func (db *Cleaner) GetExpiredDeleted(ctx context.Context, retention time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-retention)
	rows, err := db.pool.Query(ctx, `SELECT id FROM tasks WHERE deleted = true AND updated < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("can't select expired tasks: %w", err)
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("can't scan id: %w", err)
		}
		res = append(res, id)
	}
	return res, nil
}
