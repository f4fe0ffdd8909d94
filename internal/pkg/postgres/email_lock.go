package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
)

// LockEmailTable takes a session-scoped Postgres advisory lock keyed by
// (taskID, msgType), the same primitive gue itself uses to serialize job
// dequeues, so a terminal notification is never sent twice even if two
// inform workers race on a redelivered message.
func (db *DB) LockEmailTable(ctx context.Context, taskID, msgType string) error {
	key := lockKey(taskID, msgType)
	var got bool
	if err := db.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		return fmt.Errorf("can't take email lock: %w", err)
	}
	if !got {
		return fmt.Errorf("email already being sent for %s/%s", taskID, msgType)
	}
	return nil
}

// UnLockEmailTable releases the lock taken by LockEmailTable. result is
// informational only (0 = not sent, 2 = sent), kept so callers can report
// it in logs without the lock outliving the request.
func (db *DB) UnLockEmailTable(ctx context.Context, taskID, msgType string, result *int) error {
	key := lockKey(taskID, msgType)
	if _, err := db.pool.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
		return fmt.Errorf("can't release email lock: %w", err)
	}
	return nil
}

func lockKey(taskID, msgType string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(taskID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(msgType))
	return int64(h.Sum64())
}
