package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
)

// GlobalOwner is the sentinel owner used for provider-wide quota entries,
// consulted when no per-user entry exists (§9 "most specific wins").
const GlobalOwner = "global"

// QueryQuota returns all entries (day/month/total may coexist) for a key,
// first rolling over expired windows (separate statements run before the
// SELECT) so callers never observe a stale window (§4.5 "Window rollover.
// On any access...").
func (db *DB) QueryQuota(ctx context.Context, owner, provider, variant string) ([]*persistence.QuotaEntry, error) {
	if err := db.rolloverExpired(ctx, owner, provider, variant); err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx, `SELECT id, owner, provider, variant, window_type, window_start,
		window_end, quota_sec, used_sec, status, version FROM quota_entries
		WHERE owner=$1 AND provider=$2 AND variant=$3`, owner, provider, variant)
	if err != nil {
		return nil, fmt.Errorf("can't query quota: %w", err)
	}
	defer rows.Close()
	res := []*persistence.QuotaEntry{}
	for rows.Next() {
		var q persistence.QuotaEntry
		if err := rows.Scan(&q.ID, &q.Owner, &q.Provider, &q.Variant, &q.WindowType, &q.WindowStart,
			&q.WindowEnd, &q.QuotaSec, &q.UsedSec, &q.Status, &q.Version); err != nil {
			return nil, fmt.Errorf("can't scan quota: %w", err)
		}
		res = append(res, &q)
	}
	return res, nil
}

// rolloverExpired advances day/month windows whose window_end has passed;
// `total` windows are excluded per spec ("total windows never roll over").
func (db *DB) rolloverExpired(ctx context.Context, owner, provider, variant string) error {
	now := time.Now().UTC()
	rows, err := db.pool.Query(ctx, `SELECT id, window_type FROM quota_entries
		WHERE owner=$1 AND provider=$2 AND variant=$3 AND window_type <> 'total' AND window_end <= $4`,
		owner, provider, variant, now)
	if err != nil {
		return fmt.Errorf("can't find expired windows: %w", err)
	}
	type exp struct {
		id         int64
		windowType string
	}
	var toRoll []exp
	for rows.Next() {
		var e exp
		if err := rows.Scan(&e.id, &e.windowType); err != nil {
			rows.Close()
			return fmt.Errorf("can't scan expired: %w", err)
		}
		toRoll = append(toRoll, e)
	}
	rows.Close()
	for _, e := range toRoll {
		start, end := nextWindow(e.windowType, now)
		if _, err := db.pool.Exec(ctx, `UPDATE quota_entries SET window_start=$2, window_end=$3,
			used_sec=0, status='active', version = version + 1 WHERE id=$1`, e.id, start, end); err != nil {
			return fmt.Errorf("can't roll window: %w", err)
		}
	}
	return nil
}

// nextWindow computes the next [start,end) for day (next 00:00 UTC) and
// month (first of next month UTC) window types.
func nextWindow(windowType string, now time.Time) (time.Time, time.Time) {
	switch windowType {
	case "day":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case "month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return now, now.AddDate(100, 0, 0)
	}
}

// CheckAvailable returns true iff every existing entry for the key is
// non-exhausted and its window contains now.
func (db *DB) CheckAvailable(ctx context.Context, owner, provider, variant string) (bool, error) {
	entries, err := db.QueryQuota(ctx, owner, provider, variant)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, e := range entries {
		if e.UsedSec >= e.QuotaSec {
			return false, nil
		}
		if now.Before(e.WindowStart) || !now.Before(e.WindowEnd) {
			return false, nil
		}
	}
	return true, nil
}

// CommitQuota atomically increments used_sec on every existing entry for
// the key via a conditional UPDATE, never a read-modify-write (§9). Any
// entry crossing its cap transitions to exhausted in the same statement.
func (db *DB) CommitQuota(ctx context.Context, owner, provider, variant string, seconds float64) error {
	if err := db.rolloverExpired(ctx, owner, provider, variant); err != nil {
		return err
	}
	_, err := db.pool.Exec(ctx, `UPDATE quota_entries SET
		used_sec = used_sec + $4,
		status = CASE WHEN used_sec + $4 >= quota_sec THEN 'exhausted' ELSE status END,
		version = version + 1
		WHERE owner=$1 AND provider=$2 AND variant=$3`, owner, provider, variant, seconds)
	if err != nil {
		return fmt.Errorf("can't commit quota: %w", err)
	}
	return nil
}

// CommitQuotaIdempotent dedups Quota.Commit on (task_id, stage_type,
// attempt_id) per §9 "Idempotency keys" — the ledger row is inserted first
// with a unique constraint; if it already exists the commit is skipped
// and nil is returned.
func (db *DB) CommitQuotaIdempotent(ctx context.Context, owner, provider, variant, taskID, stageType, attemptID string, seconds float64) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cmd, err := tx.Exec(ctx, `INSERT INTO quota_commit_ledger(task_id, stage_type, attempt_id, committed_at)
		VALUES($1,$2,$3,$4) ON CONFLICT (task_id, stage_type, attempt_id) DO NOTHING`,
		taskID, stageType, attemptID, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert ledger row: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil // already committed for this attempt
	}
	if _, err := tx.Exec(ctx, `UPDATE quota_entries SET
		used_sec = used_sec + $4,
		status = CASE WHEN used_sec + $4 >= quota_sec THEN 'exhausted' ELSE status END,
		version = version + 1
		WHERE owner=$1 AND provider=$2 AND variant=$3`, owner, provider, variant, seconds); err != nil {
		return fmt.Errorf("can't commit quota: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit tx: %w", err)
	}
	return nil
}

// RefreshQuotaParams describes a Quota.Refresh call.
type RefreshQuotaParams struct {
	Owner       string
	Provider    string
	Variant     string
	WindowType  string
	QuotaSec    float64
	WindowStart *time.Time
	WindowEnd   *time.Time
	Reset       bool
}

// RefreshQuota creates or updates an entry; reset=true clears used_sec and
// returns status to active.
func (db *DB) RefreshQuota(ctx context.Context, p RefreshQuotaParams) (*persistence.QuotaEntry, error) {
	now := time.Now().UTC()
	start, end := now, now.AddDate(100, 0, 0)
	if p.WindowStart != nil && p.WindowEnd != nil {
		start, end = *p.WindowStart, *p.WindowEnd
	} else {
		start, end = nextWindow(p.WindowType, now)
		if p.WindowType == "total" {
			start = now
			end = now.AddDate(100, 0, 0)
		}
	}

	var id int64
	err := db.pool.QueryRow(ctx, `SELECT id FROM quota_entries WHERE owner=$1 AND provider=$2 AND variant=$3 AND window_type=$4`,
		p.Owner, p.Provider, p.Variant, p.WindowType).Scan(&id)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("can't look up quota entry: %w", err)
	}
	if err == pgx.ErrNoRows {
		if err := db.pool.QueryRow(ctx, `INSERT INTO quota_entries(owner, provider, variant, window_type,
			window_start, window_end, quota_sec, used_sec, status, version)
			VALUES($1,$2,$3,$4,$5,$6,$7,0,'active',1) RETURNING id`,
			p.Owner, p.Provider, p.Variant, p.WindowType, start, end, p.QuotaSec).Scan(&id); err != nil {
			return nil, fmt.Errorf("can't insert quota entry: %w", err)
		}
	} else {
		if p.Reset {
			if _, err := db.pool.Exec(ctx, `UPDATE quota_entries SET quota_sec=$2, window_start=$3,
				window_end=$4, used_sec=0, status='active', version = version + 1 WHERE id=$1`,
				id, p.QuotaSec, start, end); err != nil {
				return nil, fmt.Errorf("can't update quota entry: %w", err)
			}
		} else {
			if _, err := db.pool.Exec(ctx, `UPDATE quota_entries SET quota_sec=$2, window_start=$3,
				window_end=$4, version = version + 1 WHERE id=$1`,
				id, p.QuotaSec, start, end); err != nil {
				return nil, fmt.Errorf("can't update quota entry: %w", err)
			}
		}
	}
	var res persistence.QuotaEntry
	if err := db.pool.QueryRow(ctx, `SELECT id, owner, provider, variant, window_type, window_start,
		window_end, quota_sec, used_sec, status, version FROM quota_entries WHERE id=$1`, id).
		Scan(&res.ID, &res.Owner, &res.Provider, &res.Variant, &res.WindowType, &res.WindowStart,
			&res.WindowEnd, &res.QuotaSec, &res.UsedSec, &res.Status, &res.Version); err != nil {
		return nil, fmt.Errorf("can't reload quota entry: %w", err)
	}
	return &res, nil
}
