package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes expired persisted entries on a cron schedule.
type Pruner struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner for the store. The schedule uses standard
// five-field cron syntax, e.g. "*/10 * * * *" for every ten minutes.
func NewPruner(store *Store, schedule string) (*Pruner, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	return &Pruner{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "fallback.pruner"),
	}, nil
}

// Start begins scheduled pruning. Idempotent.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	// Schedule validity was checked in NewPruner.
	_, _ = p.cron.AddFunc(p.schedule, p.runPrune)
	p.cron.Start()
	p.running = true

	p.logger.Info("fallback pruner started", "schedule", p.schedule)
}

// Stop halts scheduled pruning, waiting for an in-flight run to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
}

func (p *Pruner) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := p.store.Prune(ctx, time.Now())
	if err != nil {
		p.logger.Error("fallback prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("fallback prune completed", "deleted", deleted)
	}
}
