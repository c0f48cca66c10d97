package breaker

import (
	"context"
	"sync"
)

// Registry holds one breaker per upstream, created lazily from a shared
// config. All breakers report transitions through the registry's observer.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*Breaker
	onChange func(StateChange)
}

// NewRegistry creates an empty registry. onChange, if non-nil, receives
// every state transition of every breaker.
//
// Example:
//
//	registry := breaker.NewRegistry(breaker.Config{
//	    FailureThreshold: 5,
//	    ResetTimeout:     30 * time.Second,
//	}, func(c breaker.StateChange) {
//	    slog.Warn("breaker state change",
//	        "upstream", c.Upstream, "from", c.From, "to", c.To)
//	})
func NewRegistry(config Config, onChange func(StateChange)) *Registry {
	return &Registry{
		config:   config.withDefaults(),
		breakers: make(map[string]*Breaker),
		onChange: onChange,
	}
}

// Guard runs fn under the breaker of the named upstream.
func (r *Registry) Guard(ctx context.Context, upstream string, fn func() error) error {
	return r.Breaker(upstream).Guard(ctx, fn)
}

// Breaker returns (creating lazily) the breaker of one upstream.
func (r *Registry) Breaker(upstream string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[upstream]
	if !ok {
		b = New(upstream, r.config, r.onChange)
		r.breakers[upstream] = b
	}
	return b
}

// Snapshots returns the state of every known breaker, keyed by upstream.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}

// UpdateConfig swaps the tunables of every existing breaker and of breakers
// created later.
func (r *Registry) UpdateConfig(config Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config.withDefaults()
	for _, b := range r.breakers {
		b.UpdateConfig(config)
	}
}
