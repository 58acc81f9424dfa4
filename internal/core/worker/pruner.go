package worker

import (
	"context"
	"log/slog"
	"time"
)

// SessionStore is implemented by stores that can drop finished sessions.
type SessionStore interface {
	Prune(retention time.Duration) int
}

// Pruner deletes finished sessions based on retention policy.
type Pruner struct {
	retention time.Duration
	store     SessionStore
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, store SessionStore, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		store:     store,
		log:       log.With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1s and 1h
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() {
	if n := p.store.Prune(p.retention); n > 0 {
		p.log.Debug("Pruned finished sessions", "count", n, "retention", p.retention)
	}
}
