package providerfactory

import (
	"fmt"
	"log/slog"
	"sync"

	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/providers"
)

// Manager holds the configured upstream adapters by name and owns their
// lifecycle. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	adapters map[string]providers.Adapter
	logger   *slog.Logger
}

// NewManager creates an empty adapter manager.
func NewManager() *Manager {
	return &Manager{
		adapters: make(map[string]providers.Adapter),
		logger:   slog.Default().With("component", "providerfactory.manager"),
	}
}

// NewManagerFromConfig builds a manager with one adapter per configured
// upstream. On any adapter construction failure the already-created adapters
// are closed and the error is returned.
func NewManagerFromConfig(upstreams map[string]config.UpstreamConfig) (*Manager, error) {
	m := NewManager()

	for name, upstream := range upstreams {
		err := m.Add(providers.UpstreamConfig{
			Name:    name,
			Type:    upstream.Type,
			BaseURL: upstream.BaseURL,
			APIKey:  upstream.APIKey,
			Timeout: upstream.Timeout(),
		})
		if err != nil {
			_ = m.Close()
			return nil, err
		}
	}

	return m, nil
}

// Add creates an adapter from config and registers it. An existing adapter
// with the same name is closed and replaced.
func (m *Manager) Add(cfg providers.UpstreamConfig) error {
	adapter, err := New(cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.adapters[cfg.Name]; ok {
		m.logger.Warn("replacing existing upstream adapter", "name", cfg.Name)
		_ = existing.Close()
	}
	m.adapters[cfg.Name] = adapter

	m.logger.Info("upstream adapter registered",
		"name", cfg.Name,
		"type", adapter.Type(),
		"total", len(m.adapters),
	)
	return nil
}

// Adapter returns the adapter registered under name.
func (m *Manager) Adapter(name string) (providers.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adapter, ok := m.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown upstream %q", name)
	}
	return adapter, nil
}

// Names returns the registered upstream names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	return names
}

// Health returns the request-level health snapshot of every adapter.
func (m *Manager) Health() map[string]providers.UpstreamHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := make(map[string]providers.UpstreamHealth, len(m.adapters))
	for name, adapter := range m.adapters {
		health[name] = adapter.Health()
	}
	return health
}

// Close closes every adapter. The manager is empty afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing upstream %q: %w", name, err))
		}
	}
	m.adapters = make(map[string]providers.Adapter)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing upstream adapters: %v", errs)
	}
	return nil
}
