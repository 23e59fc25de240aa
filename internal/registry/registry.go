// Package registry is the catalog of backend adapters: which providers exist,
// what they cost, which task types they serve, and whether they are currently
// usable. Health transitions are the only writes to a provider's state; reads
// are stale-tolerant and never block.
package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/praxishq/llm-gateway/config"
	"github.com/praxishq/llm-gateway/internal/provider"
)

type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDisabled State = "disabled"
)

const (
	// consecutive failures before a provider is reported degraded
	degradeThreshold = 3
	// consecutive failures before the breaker opens and the provider is disabled
	disableThreshold = 5
	// cool-down before a disabled provider is offered one probe request
	cooldown = 30 * time.Second
)

// Profile describes a registered backend adapter.
type Profile struct {
	ProviderID    string
	MaxTokens     int
	LatencyHintMs int64
}

// Candidate is one (provider, model) pair in a task type's ordered fallback
// chain, ready to estimate against and invoke.
type Candidate struct {
	ProviderID    string
	Model         string
	Priority      int
	Pricing       ModelPricing
	LatencyHintMs int64
	MaxTokens     int
}

type entry struct {
	prov        provider.Provider
	profile     Profile
	breaker     *gobreaker.CircuitBreaker
	consecFails atomic.Int32
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	routes  map[provider.TaskType][]config.RouteEntry
	log     zerolog.Logger
}

func New(routes map[provider.TaskType][]config.RouteEntry, log zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		routes:  routes,
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a backend adapter to the catalog.
func (r *Registry) Register(p provider.Provider, profile Profile) {
	profile.ProviderID = p.Name()
	log := r.log
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1, // one probe per half-open cycle
		Interval:    5 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= disableThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider breaker state change")
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Name()] = &entry{
		prov:    p,
		profile: profile,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State reports the current availability of a provider. Unknown providers are
// reported disabled.
func (r *Registry) State(providerID string) State {
	r.mu.RLock()
	e := r.entries[providerID]
	r.mu.RUnlock()
	if e == nil {
		return StateDisabled
	}

	switch e.breaker.State() {
	case gobreaker.StateOpen:
		return StateDisabled
	case gobreaker.StateHalfOpen:
		return StateDegraded
	}
	if e.consecFails.Load() >= degradeThreshold {
		return StateDegraded
	}
	return StateHealthy
}

// Resolve returns the ordered candidate chain for a task type. Disabled and
// unregistered providers are dropped. A healthy explicit override is promoted
// to the front; overrides naming an unusable provider are ignored so the
// request can still proceed down the configured chain.
func (r *Registry) Resolve(task provider.TaskType, override string) []Candidate {
	route := r.routes[task]

	var candidates []Candidate
	for i, re := range route {
		if r.State(re.Provider) == StateDisabled {
			continue
		}
		r.mu.RLock()
		e := r.entries[re.Provider]
		r.mu.RUnlock()
		if e == nil {
			continue
		}

		c := Candidate{
			ProviderID:    re.Provider,
			Model:         re.Model,
			Priority:      i,
			Pricing:       GetModelPricing(re.Model),
			LatencyHintMs: e.profile.LatencyHintMs,
			MaxTokens:     e.profile.MaxTokens,
		}
		if override != "" && re.Provider == override && r.State(re.Provider) == StateHealthy {
			c.Priority = -1
		}
		candidates = append(candidates, c)
	}

	// Ties on priority break by latency hint, then by input cost.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.LatencyHintMs != b.LatencyHintMs {
			return a.LatencyHintMs < b.LatencyHintMs
		}
		return a.Pricing.InputPer1K < b.Pricing.InputPer1K
	})

	return candidates
}

// PrimaryModel returns the model that cache fingerprints for a task are keyed
// on: the override provider's configured model when an override is named,
// otherwise the first entry in the task's routing table. The choice is static
// so health flapping does not fragment the cache.
func (r *Registry) PrimaryModel(task provider.TaskType, override string) string {
	route := r.routes[task]
	if override != "" {
		for _, re := range route {
			if re.Provider == override {
				return re.Model
			}
		}
	}
	if len(route) > 0 {
		return route[0].Model
	}
	return ""
}

// Execute invokes the candidate's adapter through its circuit breaker, so
// failures drive the health state machine: degrade after repeated failures,
// disable once the breaker opens, re-enable after a cool-down probe succeeds.
func (r *Registry) Execute(ctx context.Context, c Candidate, req *provider.Request) (*provider.Response, error) {
	r.mu.RLock()
	e := r.entries[c.ProviderID]
	r.mu.RUnlock()
	if e == nil {
		return nil, gobreaker.ErrOpenState
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.prov.Generate(ctx, req)
	})
	if err != nil {
		e.consecFails.Add(1)
		return nil, err
	}
	e.consecFails.Store(0)
	return result.(*provider.Response), nil
}
