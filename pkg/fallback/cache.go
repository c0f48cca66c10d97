package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"palisade-hq/bulwark/pkg/providers"
)

// Config holds the fallback cache tunables.
type Config struct {
	// TTL is how long an entry stays servable (default 5m)
	TTL time.Duration

	// MaxEntries bounds the cache size; the least recently accessed
	// entry is evicted at capacity (default 1000)
	MaxEntries int

	// DBPath enables SQLite persistence when non-empty
	DBPath string

	// PruneSchedule is a cron expression for pruning expired persisted
	// rows (default every 10 minutes; ignored without DBPath)
	PruneSchedule string
}

// withDefaults fills in the zero-valued tunables.
func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "*/10 * * * *"
	}
	return c
}

// entry is one cached result.
type entry struct {
	result         *providers.ChatResult
	expiresAt      time.Time
	lastAccessedAt time.Time
}

// Cache is a TTL- and size-bounded result cache with LRU eviction and
// optional write-through persistence.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config

	store   *Store
	pruner  *Pruner
	logger  *slog.Logger
	stopCh  chan struct{}
	stopped sync.Once
}

// NewCache creates a cache and, when persistence is configured, warm-loads
// the surviving entries and starts the prune schedule.
func NewCache(config Config) (*Cache, error) {
	config = config.withDefaults()

	c := &Cache{
		entries: make(map[string]*entry),
		config:  config,
		logger:  slog.Default().With("component", "fallback"),
		stopCh:  make(chan struct{}),
	}

	if config.DBPath != "" {
		store, err := NewStore(config.DBPath)
		if err != nil {
			return nil, err
		}
		c.store = store

		if err := c.warmLoad(); err != nil {
			store.Close()
			return nil, err
		}

		pruner, err := NewPruner(store, config.PruneSchedule)
		if err != nil {
			store.Close()
			return nil, err
		}
		c.pruner = pruner
		pruner.Start()
	}

	go c.sweepLoop()

	return c, nil
}

// Save stores a finished result under its fingerprint, evicting the least
// recently accessed entry at capacity. Results flagged as fallback are not
// re-saved: a served stale entry must not refresh its own TTL.
func (c *Cache) Save(fingerprint string, result *providers.ChatResult) {
	if result == nil || result.FallbackUsed {
		return
	}

	now := time.Now()
	expiresAt := now.Add(c.config.TTL)

	c.mu.Lock()
	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.config.MaxEntries {
		c.evictLocked()
	}
	saved := *result
	c.entries[fingerprint] = &entry{
		result:         &saved,
		expiresAt:      expiresAt,
		lastAccessedAt: now,
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(context.Background(), fingerprint, &saved, expiresAt); err != nil {
			c.logger.Warn("fallback persistence save failed",
				"fingerprint", fingerprint, "error", err)
		}
	}
}

// Lookup returns the non-expired entry for a fingerprint. It satisfies the
// retry executor's fallback source interface.
func (c *Cache) Lookup(fingerprint string) (*providers.ChatResult, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok || now.After(e.expiresAt) {
		return nil, false
	}
	e.lastAccessedAt = now

	result := *e.result
	return &result, true
}

// Size returns the current number of entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweep loop, the prune schedule, and the persistence
// store. Idempotent.
func (c *Cache) Close() error {
	var err error
	c.stopped.Do(func() {
		close(c.stopCh)
		if c.pruner != nil {
			c.pruner.Stop()
		}
		if c.store != nil {
			err = c.store.Close()
		}
	})
	return err
}

// warmLoad restores non-expired persisted entries into memory.
func (c *Cache) warmLoad() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	for _, row := range rows {
		if len(c.entries) >= c.config.MaxEntries {
			break
		}
		c.entries[row.Fingerprint] = &entry{
			result:         row.Result,
			expiresAt:      row.ExpiresAt,
			lastAccessedAt: now,
		}
	}
	loaded := len(c.entries)
	c.mu.Unlock()

	if loaded > 0 {
		c.logger.Info("fallback cache warm-loaded", "entries", loaded)
	}
	return nil
}

// evictLocked removes the least recently accessed entry.
func (c *Cache) evictLocked() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range c.entries {
		if oldestKey == "" || e.lastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// sweepLoop periodically drops expired entries from memory.
func (c *Cache) sweepLoop() {
	interval := c.config.TTL / 2
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
