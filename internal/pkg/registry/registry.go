// Package registry is the process-wide catalog of (service_type,
// provider_name) -> factory + static metadata. Populated at startup by
// every provider adapter's init, then read-only for the life of the
// process (C2).
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/airenas/voxsum/internal/pkg/provider"
)

// Metadata is the immutable-after-registration descriptor of a provider.
type Metadata struct {
	DisplayName        string
	CostPerUnit        float64
	SupportsStreaming  bool
	Variants           []string
	SupportsMultiModel bool
	DefaultModelID     string
	// CredentialEnvVars names the environment variables that must all be
	// non-empty for Discover to consider this provider configured.
	CredentialEnvVars []string
}

// Overrides customizes an Instantiate call.
type Overrides struct {
	ModelID string
}

// Factory builds a fresh client instance from the process environment.
// The returned value is an ASR/LLM/Storage implementation depending on
// the registration's ServiceType.
type Factory func(overrides Overrides) (any, error)

// Registration is one catalog entry.
type Registration struct {
	ServiceType  provider.ServiceType
	ProviderName string
	Metadata     Metadata
	Factory      Factory
}

// ConfigError is returned by Instantiate when required overrides are
// missing, e.g. a model_id for a multi-model LLM provider with no default.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

type key struct {
	serviceType provider.ServiceType
	name        string
}

// Registry is the catalog. Safe for concurrent use; writes are expected
// only during startup registration.
type Registry struct {
	mu   sync.RWMutex
	regs map[key]*Registration
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{regs: map[key]*Registration{}}
}

// Default is the process-wide catalog vendor adapter packages register
// themselves into from init(), the same database/sql-driver convention
// pgx and friends use. cmd/* binaries read it once at startup.
var Default = New()

// Register adds reg to the catalog. Duplicate (service_type,
// provider_name) pairs are rejected.
func (r *Registry) Register(reg Registration) error {
	if reg.ProviderName == "" {
		return fmt.Errorf("registry: empty provider name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{reg.ServiceType, reg.ProviderName}
	if _, exists := r.regs[k]; exists {
		return fmt.Errorf("registry: duplicate registration for %s/%s", reg.ServiceType, reg.ProviderName)
	}
	cp := reg
	r.regs[k] = &cp
	return nil
}

// Get returns the raw registration, regardless of whether its
// credentials are currently configured.
func (r *Registry) Get(serviceType provider.ServiceType, name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[key{serviceType, name}]
	return reg, ok
}

// Discover returns every registration of serviceType whose credential
// environment variables are all present, ordered by provider name for
// deterministic downstream tie-breaking.
func (r *Registry) Discover(serviceType provider.ServiceType) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*Registration, 0, len(r.regs))
	for k, reg := range r.regs {
		if k.serviceType != serviceType {
			continue
		}
		if credentialsPresent(reg.Metadata.CredentialEnvVars) {
			res = append(res, reg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProviderName < res[j].ProviderName })
	return res
}

// All returns every registration of serviceType, configured or not —
// used by diagnostics and the health monitor's probe scheduler.
func (r *Registry) All(serviceType provider.ServiceType) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*Registration, 0, len(r.regs))
	for k, reg := range r.regs {
		if k.serviceType == serviceType {
			res = append(res, reg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProviderName < res[j].ProviderName })
	return res
}

// Instantiate builds a fresh client for (serviceType, name). For
// multi-model providers, overrides.ModelID is required unless the
// registration carries a DefaultModelID.
func (r *Registry) Instantiate(serviceType provider.ServiceType, name string, overrides Overrides) (any, error) {
	reg, ok := r.Get(serviceType, name)
	if !ok {
		return nil, fmt.Errorf("registry: no such provider %s/%s", serviceType, name)
	}
	if reg.Metadata.SupportsMultiModel && overrides.ModelID == "" {
		if reg.Metadata.DefaultModelID == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("model_id required for %s/%s", serviceType, name)}
		}
		overrides.ModelID = reg.Metadata.DefaultModelID
	}
	return reg.Factory(overrides)
}

func credentialsPresent(envVars []string) bool {
	for _, v := range envVars {
		if os.Getenv(v) == "" {
			return false
		}
	}
	return true
}
