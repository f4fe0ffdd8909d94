// Package selector implements the weighted-scoring Smart Selector (C7):
// given a service type and request hints, it picks one configured,
// healthy, non-exhausted provider and instantiates a client for it.
package selector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/airenas/voxsum/internal/pkg/breaker"
	"github.com/airenas/voxsum/internal/pkg/cost"
	"github.com/airenas/voxsum/internal/pkg/health"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/quota"
	"github.com/airenas/voxsum/internal/pkg/registry"
)

// Strategy names one of the four weighting schemes.
type Strategy string

const (
	StrategyHealthFirst      Strategy = "health_first"
	StrategyCostFirst        Strategy = "cost_first"
	StrategyPerformanceFirst Strategy = "performance_first"
	StrategyBalanced         Strategy = "balanced"
)

type weights struct{ freeQuota, health, cost, quota float64 }

var strategyWeights = map[Strategy]weights{
	StrategyBalanced:         {freeQuota: 0.40, health: 0.25, cost: 0.20, quota: 0.15},
	StrategyHealthFirst:      {freeQuota: 0.15, health: 0.55, cost: 0.15, quota: 0.15},
	StrategyCostFirst:        {freeQuota: 0.15, health: 0.15, cost: 0.55, quota: 0.15},
	StrategyPerformanceFirst: {freeQuota: 0.10, health: 0.45, cost: 0.35, quota: 0.10},
}

// Request describes one selection call.
type Request struct {
	ServiceType        provider.ServiceType
	PreferredProvider   string
	ModelID            string
	Strategy           Strategy
	Owner              string
	DurationHintSec    float64 // ASR request hint
	TokenHint          int     // LLM request hint
	Variant            string  // ASR variant, already resolved via quota.ResolveVariant
}

// ErrNoProviderAvailable is returned when no candidate survives filtering.
var ErrNoProviderAvailable = fmt.Errorf("no provider available")

// ErrPreferredUnavailable is returned when a caller pinned a provider
// that turns out Open-circuited or quota-exhausted; selection never
// silently substitutes in this case.
var ErrPreferredUnavailable = fmt.Errorf("preferred provider unavailable")

// Selected is the outcome of a successful Select call.
type Selected struct {
	ProviderName string
	Client       any
}

// Selector ties together the registry and every scoring input.
type Selector struct {
	reg     *registry.Registry
	health  *health.Monitor
	breaker *breaker.Manager
	cost    *cost.Tracker
	quota   *quota.Manager
}

// New wires a selector over its four scoring collaborators.
func New(reg *registry.Registry, h *health.Monitor, b *breaker.Manager, c *cost.Tracker, q *quota.Manager) *Selector {
	return &Selector{reg: reg, health: h, breaker: b, cost: c, quota: q}
}

// Select runs the full algorithm: filter, score, combine, tie-break.
func (s *Selector) Select(ctx context.Context, req Request) (*Selected, error) {
	if req.Strategy == "" {
		req.Strategy = StrategyBalanced
	}
	if req.PreferredProvider != "" {
		return s.selectPreferred(ctx, req)
	}

	candidates, err := s.filter(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoProviderAvailable
	}

	scored := s.score(ctx, req, candidates)
	w := strategyWeights[req.Strategy]
	best := scored[0]
	bestTotal := -1.0
	for _, c := range scored {
		total := c.freeQuota*w.freeQuota + c.health*w.health + c.cost*w.cost + c.quota*w.quota
		if total > bestTotal || (total == bestTotal && c.reg.ProviderName < best.reg.ProviderName) {
			bestTotal = total
			best = c
		}
	}
	return s.instantiate(best.reg, req)
}

func (s *Selector) selectPreferred(ctx context.Context, req Request) (*Selected, error) {
	reg, ok := s.reg.Get(req.ServiceType, req.PreferredProvider)
	if !ok {
		return nil, ErrPreferredUnavailable
	}
	if !s.breaker.Allow(req.ServiceType, req.PreferredProvider) {
		return nil, ErrPreferredUnavailable
	}
	if req.ServiceType == provider.ServiceASR {
		ok, err := s.quota.CheckAvailable(ctx, req.Owner, req.PreferredProvider, req.Variant)
		if err != nil {
			return nil, fmt.Errorf("can't check quota: %w", err)
		}
		if !ok {
			return nil, ErrPreferredUnavailable
		}
	}
	return s.instantiate(reg, req)
}

type candidateScore struct {
	reg                           *registry.Registration
	freeQuota, health, cost, quota float64
}

func (s *Selector) filter(ctx context.Context, req Request) ([]*registry.Registration, error) {
	all := s.reg.Discover(req.ServiceType)
	res := make([]*registry.Registration, 0, len(all))
	for _, reg := range all {
		if !s.breaker.Allow(req.ServiceType, reg.ProviderName) {
			continue
		}
		if req.ServiceType == provider.ServiceASR {
			ok, err := s.quota.CheckAvailable(ctx, req.Owner, reg.ProviderName, req.Variant)
			if err != nil {
				return nil, fmt.Errorf("can't check quota for %s: %w", reg.ProviderName, err)
			}
			if !ok {
				continue
			}
		}
		res = append(res, reg)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProviderName < res[j].ProviderName })
	return res, nil
}

func (s *Selector) score(ctx context.Context, req Request, candidates []*registry.Registration) []candidateScore {
	costs := make([]float64, len(candidates))
	maxCost := 0.0
	for i, reg := range candidates {
		c, err := s.cost.EstimateCurrentCost(ctx, string(req.ServiceType), reg.ProviderName)
		if err != nil {
			c = reg.Metadata.CostPerUnit
		}
		costs[i] = c
		if c > maxCost {
			maxCost = c
		}
	}

	res := make([]candidateScore, len(candidates))
	for i, reg := range candidates {
		cs := candidateScore{reg: reg}
		cs.health = s.health.Get(req.ServiceType, reg.ProviderName)
		if maxCost > 0 {
			cs.cost = math.Max(0, 1-costs[i]/maxCost)
		} else {
			cs.cost = 1
		}
		cs.quota = s.quotaScore(ctx, req, reg)
		cs.freeQuota = s.freeQuotaScore(ctx, req, reg)
		res[i] = cs
	}
	return res
}

func (s *Selector) quotaScore(ctx context.Context, req Request, reg *registry.Registration) float64 {
	if req.ServiceType != provider.ServiceASR {
		return 1
	}
	entries, err := s.quota.Query(ctx, req.Owner, reg.ProviderName, req.Variant)
	if err != nil || len(entries) == 0 {
		return 0.5 // no per-user entries: neutral, neither penalized nor preferred
	}
	min := 1.0
	for _, e := range entries {
		if e.QuotaSec <= 0 {
			continue
		}
		remaining := 1 - e.UsedSec/e.QuotaSec
		if remaining < min {
			min = remaining
		}
	}
	return math.Max(0, min)
}

func (s *Selector) freeQuotaScore(ctx context.Context, req Request, reg *registry.Registration) float64 {
	entries, err := s.quota.Query(ctx, quota.GlobalOwner, reg.ProviderName, req.Variant)
	if err != nil || len(entries) == 0 {
		return 0
	}
	min := 1.0
	for _, e := range entries {
		if e.QuotaSec <= 0 {
			continue
		}
		remaining := 1 - e.UsedSec/e.QuotaSec
		if remaining < min {
			min = remaining
		}
	}
	return math.Max(0, min)
}

func (s *Selector) instantiate(reg *registry.Registration, req Request) (*Selected, error) {
	client, err := s.reg.Instantiate(reg.ServiceType, reg.ProviderName, registry.Overrides{ModelID: req.ModelID})
	if err != nil {
		return nil, fmt.Errorf("can't instantiate %s/%s: %w", reg.ServiceType, reg.ProviderName, err)
	}
	return &Selected{ProviderName: reg.ProviderName, Client: client}, nil
}
