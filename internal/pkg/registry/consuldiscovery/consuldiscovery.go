// Package consuldiscovery keeps a registry.Registry in sync with
// services advertised in Consul, for deployments where ASR/LLM/Storage
// vendors run as internally-hosted services rather than public APIs.
// Adapted from the single-purpose transcriber picker this system's
// teacher used into a general multi-service-type watcher.
package consuldiscovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/registry"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"
)

const (
	metaServiceType = "serviceType"
	metaVariant     = "variant"
	metaPriority    = "priority"
)

// Watcher polls Consul on an interval and registers a provider entry for
// every tagged service instance it finds (instances already registered
// are skipped, not updated), under provider names that
// encode the consul service name plus instance ordinal so the Selector
// can address individual backends.
type Watcher struct {
	consul *api.Client
	reg    *registry.Registry
	srvs   []string // consul service names to watch
}

// New builds a watcher over the given Consul service names.
func New(cfg *api.Config, reg *registry.Registry, srvs ...string) (*Watcher, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("can't init consul client: %w", err)
	}
	if len(srvs) == 0 {
		return nil, fmt.Errorf("no consul service names given")
	}
	return &Watcher{consul: c, reg: reg, srvs: srvs}, nil
}

// Start runs the poll loop until ctx is cancelled, returning a channel
// closed once the loop exits.
func (w *Watcher) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx, interval)
	}()
	return done
}

func (w *Watcher) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if err := w.checkAll(ctx); err != nil {
		goapp.Log.Error().Err(err).Msg("consul discovery check")
	}
	for {
		select {
		case <-ticker.C:
			if err := w.checkAll(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("consul discovery check")
			}
		case <-ctx.Done():
			goapp.Log.Info().Msg("stopped consul discovery loop")
			return
		}
	}
}

func (w *Watcher) checkAll(ctx context.Context) error {
	var errs error
	for _, srv := range w.srvs {
		if err := w.check(ctx, srv); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (w *Watcher) check(ctx context.Context, srvName string) error {
	ctxInt, cf := context.WithTimeout(ctx, 5*time.Second)
	defer cf()
	entries, _, err := w.consul.Health().Service(srvName, "", true, (&api.QueryOptions{}).WithContext(ctxInt))
	if err != nil {
		return fmt.Errorf("can't query consul for %s: %w", srvName, err)
	}
	var errs error
	for i, e := range entries {
		if err := w.registerEntry(srvName, i, e); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (w *Watcher) registerEntry(srvName string, idx int, e *api.ServiceEntry) error {
	st, ok := e.Service.Meta[metaServiceType]
	if !ok {
		return fmt.Errorf("service %s instance %d has no %s meta tag", srvName, idx, metaServiceType)
	}
	priority, err := parsePriority(e.Service.Meta[metaPriority])
	if err != nil {
		return fmt.Errorf("service %s instance %d: %w", srvName, idx, err)
	}
	providerName := fmt.Sprintf("%s-%d", srvName, idx)
	baseURL := fmt.Sprintf("http://%s:%d", e.Service.Address, e.Service.Port)

	reg := registry.Registration{
		ServiceType:  provider.ServiceType(st),
		ProviderName: providerName,
		Metadata: Metadata(priority, e.Service.Meta[metaVariant]),
		Factory: func(overrides registry.Overrides) (any, error) {
			return nil, fmt.Errorf("consuldiscovery: factory for %s must be bound by the owning vendor package at %s", providerName, baseURL)
		},
	}
	if err := w.reg.Register(reg); err != nil {
		goapp.Log.Debug().Err(err).Str("provider", providerName).Msg("already registered, skipping")
	}
	return nil
}

// Metadata builds the registry metadata carried for a consul-discovered
// instance; priority is stored as CostPerUnit = 1/priority, so a
// higher-priority instance counts as cheaper in score-based selection
// (the teacher's picker used it for a weighted-random choice instead).
func Metadata(priority float64, variant string) registry.Metadata {
	md := registry.Metadata{CostPerUnit: 1.0 / priority}
	if variant != "" {
		md.Variants = []string{variant}
	}
	return md
}

func parsePriority(v string) (float64, error) {
	if v == "" {
		return 1, nil
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse priority %q: %w", v, err)
	}
	if res < 0.5 || res > 50 {
		return 0, fmt.Errorf("priority %f not in [0.5, 50]", res)
	}
	return res, nil
}
