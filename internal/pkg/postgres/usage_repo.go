package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
)

// InsertUsageRecord appends a usage event; idempotent on (request_id,
// attempt_index) per §7 "Quota commit is idempotent over (task_id,
// stage_attempt) keys" / §5 "Cost Tracker: append-only; idempotent writes
// keyed by (request_id, attempt_index)".
func (db *DB) InsertUsageRecord(ctx context.Context, u *persistence.UsageRecord) error {
	u.Timestamp = time.Now()
	rows, err := db.pool.Query(ctx, `INSERT INTO usage_records(timestamp, service_type, provider, user_id,
		task_id, cost_estimate, tokens, duration_sec, request_id, attempt_index)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (request_id, attempt_index) DO NOTHING`,
		u.Timestamp, u.ServiceType, u.Provider, u.UserID, u.TaskID, u.CostEstimate, u.Tokens,
		u.DurationSec, u.RequestID, u.AttemptIndex)
	if err != nil {
		return fmt.Errorf("can't insert usage record: %w", err)
	}
	defer rows.Close()
	return nil
}

// SumCostByProvider aggregates cost for a (service_type, provider) since a
// given time — used when the fast-index is unavailable or for reconciliation.
func (db *DB) SumCostByProvider(ctx context.Context, serviceType, provider string, since time.Time) (float64, error) {
	var total float64
	err := db.pool.QueryRow(ctx, `SELECT COALESCE(SUM(cost_estimate),0) FROM usage_records
		WHERE service_type=$1 AND provider=$2 AND timestamp >= $3`, serviceType, provider, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("can't sum cost: %w", err)
	}
	return total, nil
}

// SumCostByUser aggregates cost attributable to one user since a given time.
func (db *DB) SumCostByUser(ctx context.Context, userID string, since time.Time) (float64, error) {
	var total float64
	err := db.pool.QueryRow(ctx, `SELECT COALESCE(SUM(cost_estimate),0) FROM usage_records
		WHERE user_id=$1 AND timestamp >= $2`, userID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("can't sum cost: %w", err)
	}
	return total, nil
}
