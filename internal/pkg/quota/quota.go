// Package quota is the in-process façade over the durable quota store
// (C5): per-(owner, provider, variant, window) seconds counters with
// atomic reserve/commit, refresh, and layered owner resolution.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/postgres"
)

// GlobalOwner is the sentinel owner consulted when no per-user entry exists.
const GlobalOwner = postgres.GlobalOwner

// store is satisfied by *postgres.DB.
type store interface {
	QueryQuota(ctx context.Context, owner, provider, variant string) ([]*persistence.QuotaEntry, error)
	CheckAvailable(ctx context.Context, owner, provider, variant string) (bool, error)
	CommitQuota(ctx context.Context, owner, provider, variant string, seconds float64) error
	CommitQuotaIdempotent(ctx context.Context, owner, provider, variant, taskID, stageType, attemptID string, seconds float64) error
	RefreshQuota(ctx context.Context, p postgres.RefreshQuotaParams) (*persistence.QuotaEntry, error)
}

// Manager is the Quota Pool Manager.
type Manager struct {
	store store
}

// New wires a manager over the durable store.
func New(store store) *Manager {
	return &Manager{store: store}
}

// Query returns every window (day/month/total may coexist) for
// (owner, provider, variant), applying the "most specific wins" layered
// lookup: if owner has no entries, the global sentinel owner's entries
// are returned instead.
func (m *Manager) Query(ctx context.Context, owner, provider, variant string) ([]*persistence.QuotaEntry, error) {
	entries, err := m.store.QueryQuota(ctx, owner, provider, variant)
	if err != nil {
		return nil, fmt.Errorf("can't query quota: %w", err)
	}
	if len(entries) > 0 || owner == GlobalOwner {
		return entries, nil
	}
	return m.store.QueryQuota(ctx, GlobalOwner, provider, variant)
}

// CheckAvailable reports whether every window for the resolved key is
// non-exhausted. A caller with no per-user entries at all is treated as
// available only if the global entry says so; a provider with no quota
// configuration whatsoever is unlimited (available).
func (m *Manager) CheckAvailable(ctx context.Context, owner, provider, variant string) (bool, error) {
	ok, err := m.store.CheckAvailable(ctx, owner, provider, variant)
	if err != nil {
		return false, fmt.Errorf("can't check quota: %w", err)
	}
	entries, err := m.store.QueryQuota(ctx, owner, provider, variant)
	if err != nil {
		return false, fmt.Errorf("can't query quota: %w", err)
	}
	if len(entries) == 0 && owner != GlobalOwner {
		return m.store.CheckAvailable(ctx, GlobalOwner, provider, variant)
	}
	return ok, nil
}

// ErrExhausted is returned by Reserve when the key has no remaining
// capacity.
var ErrExhausted = fmt.Errorf("quota exhausted")

// Reserve is a pre-flight check only; this system commits on success
// rather than holding a separate reservation, so Reserve simply verifies
// availability and returns a reservation token equal to the key itself.
func (m *Manager) Reserve(ctx context.Context, owner, provider, variant string) (string, error) {
	ok, err := m.CheckAvailable(ctx, owner, provider, variant)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrExhausted
	}
	return fmt.Sprintf("%s/%s/%s", owner, provider, variant), nil
}

// Commit atomically adds seconds to used_seconds for (owner, provider,
// variant), or the global entry if no per-user entry exists.
func (m *Manager) Commit(ctx context.Context, owner, provider, variant string, seconds float64) error {
	entries, err := m.store.QueryQuota(ctx, owner, provider, variant)
	if err != nil {
		return fmt.Errorf("can't query quota: %w", err)
	}
	target := owner
	if len(entries) == 0 && owner != GlobalOwner {
		target = GlobalOwner
	}
	if err := m.store.CommitQuota(ctx, target, provider, variant, seconds); err != nil {
		return fmt.Errorf("can't commit quota: %w", err)
	}
	return nil
}

// CommitIdempotent is the stage-pipeline entry point: commits exactly
// once per (taskID, stageType, attemptID), safe to call again on
// at-least-once redelivery.
func (m *Manager) CommitIdempotent(ctx context.Context, owner, provider, variant, taskID, stageType, attemptID string, seconds float64) error {
	entries, err := m.store.QueryQuota(ctx, owner, provider, variant)
	if err != nil {
		return fmt.Errorf("can't query quota: %w", err)
	}
	target := owner
	if len(entries) == 0 && owner != GlobalOwner {
		target = GlobalOwner
	}
	return m.store.CommitQuotaIdempotent(ctx, target, provider, variant, taskID, stageType, attemptID, seconds)
}

// RefreshParams mirrors postgres.RefreshQuotaParams for callers that
// don't want to import the postgres package directly.
type RefreshParams struct {
	Owner       string
	Provider    string
	Variant     string
	WindowType  string
	QuotaSec    float64
	WindowStart *time.Time
	WindowEnd   *time.Time
	Reset       bool
}

// Refresh creates or updates an entry.
func (m *Manager) Refresh(ctx context.Context, p RefreshParams) (*persistence.QuotaEntry, error) {
	res, err := m.store.RefreshQuota(ctx, postgres.RefreshQuotaParams{
		Owner: p.Owner, Provider: p.Provider, Variant: p.Variant, WindowType: p.WindowType,
		QuotaSec: p.QuotaSec, WindowStart: p.WindowStart, WindowEnd: p.WindowEnd, Reset: p.Reset,
	})
	if err != nil {
		return nil, fmt.Errorf("can't refresh quota: %w", err)
	}
	return res, nil
}

// ResolveVariant returns requested, or "file_fast" when the caller
// doesn't specify a variant. It never returns "file" on its own, and no
// caller retries with "file" when no file_fast provider is available.
func ResolveVariant(requested string) string {
	if requested != "" {
		return requested
	}
	return "file_fast"
}
