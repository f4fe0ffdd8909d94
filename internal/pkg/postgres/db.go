package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx pool and exposes the task/stage/transcript/summary/quota/usage
// repositories as one dependency, the way the teacher's postgres.DB wraps
// requests/status/work_data.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB wraps an already-configured pool.
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	return &DB{pool: pool}, nil
}

// Live returns no error if the DB is reachable and migrated, mirroring the
// teacher's postgres.DB.Live gue_jobs probe.
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

// Pool exposes the underlying pool for repositories in other packages
// (quota, cost) that need raw atomic UPDATE access.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }
