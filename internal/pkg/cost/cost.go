// Package cost implements the dual-write cost accounting tier (C4): a
// short-TTL Redis fast index for hot aggregation, plus the durable
// postgres usage_records log for long-term per-user attribution.
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/go-redis/redis/v8"
)

// durableLog is satisfied by postgres.DB.
type durableLog interface {
	InsertUsageRecord(ctx context.Context, u *persistence.UsageRecord) error
	SumCostByProvider(ctx context.Context, serviceType, provider string, since time.Time) (float64, error)
	SumCostByUser(ctx context.Context, userID string, since time.Time) (float64, error)
}

// fastIndexTTL bounds how long the Redis rollups stay warm; past this,
// callers fall back to the durable log for historical aggregation.
const fastIndexTTL = 48 * time.Hour

// Tracker records every provider call's estimated cost and answers
// current-cost questions for the selector.
type Tracker struct {
	rdb *redis.Client
	log durableLog
}

// New wires a tracker over a Redis client and the durable usage log.
func New(rdb *redis.Client, log durableLog) *Tracker {
	return &Tracker{rdb: rdb, log: log}
}

// Record persists one provider call's usage. The fast index is updated
// first (a transient miss there only degrades live scoring); the
// durable log write is the source of truth and its failure is logged at
// critical level, per the no-silent-data-loss requirement.
func (t *Tracker) Record(ctx context.Context, u *persistence.UsageRecord) error {
	if err := t.writeFastIndex(ctx, u); err != nil {
		goapp.Log.Error().Err(err).Str("provider", u.Provider).Msg("cost fast-index write failed")
	}
	if err := t.log.InsertUsageRecord(ctx, u); err != nil {
		goapp.Log.Error().Err(err).Str("provider", u.Provider).Msg("CRITICAL: cost durable-log write failed")
		return fmt.Errorf("can't record usage: %w", err)
	}
	return nil
}

func (t *Tracker) writeFastIndex(ctx context.Context, u *persistence.UsageRecord) error {
	day := u.Timestamp.UTC().Format("20060102")
	recordsKey := fmt.Sprintf("cost:records:%s:%s", u.ServiceType, u.Provider)
	dailyKey := fmt.Sprintf("cost:daily:%s", day)
	dailyField := fmt.Sprintf("%s:%s", u.ServiceType, u.Provider)

	pipe := t.rdb.TxPipeline()
	pipe.ZAdd(ctx, recordsKey, &redis.Z{Score: float64(u.Timestamp.Unix()), Member: fmt.Sprintf("%s:%.6f", u.RequestID, u.CostEstimate)})
	pipe.Expire(ctx, recordsKey, fastIndexTTL)
	pipe.HIncrByFloat(ctx, dailyKey, dailyField, u.CostEstimate)
	pipe.Expire(ctx, dailyKey, fastIndexTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// EstimateCurrentCost answers the selector's "how expensive has this
// provider been recently" question, preferring the warm fast index and
// falling back to the durable log when Redis has nothing (cold start or
// past the TTL window).
func (t *Tracker) EstimateCurrentCost(ctx context.Context, serviceType, provider string) (float64, error) {
	day := time.Now().UTC().Format("20060102")
	dailyKey := fmt.Sprintf("cost:daily:%s", day)
	dailyField := fmt.Sprintf("%s:%s", serviceType, provider)

	v, err := t.rdb.HGet(ctx, dailyKey, dailyField).Result()
	if err == nil {
		var cost float64
		if _, scanErr := fmt.Sscanf(v, "%f", &cost); scanErr == nil {
			return cost, nil
		}
	}
	if err != nil && err != redis.Nil {
		goapp.Log.Warn().Err(err).Msg("cost fast-index read failed, falling back to durable log")
	}
	return t.log.SumCostByProvider(ctx, serviceType, provider, time.Now().Add(-24*time.Hour))
}

// UserCostSince answers per-user attribution queries, always served
// from the durable log (the fast index is keyed by provider, not user).
func (t *Tracker) UserCostSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	return t.log.SumCostByUser(ctx, userID, since)
}
