package crawl

import (
	"context"
	"errors"
	"log"
	"time"

	"newsragnarok/internal/retention"
)

// Loop drives repeated crawl cycles and periodic retention sweeps until
// its context is cancelled.
type Loop struct {
	runner  *Runner
	sweeper *retention.Sweeper
}

// NewLoop creates a Loop around an existing Runner and Sweeper.
func NewLoop(runner *Runner, sweeper *retention.Sweeper) *Loop {
	return &Loop{runner: runner, sweeper: sweeper}
}

// Run blocks, crawling every crawl interval and sweeping every cleanup
// interval. The first crawl starts immediately. Returns when ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	cfg := l.runner.cfg.Crawl
	crawlTicker := time.NewTicker(cfg.Interval.Std())
	defer crawlTicker.Stop()
	cleanupTicker := time.NewTicker(cfg.CleanupInterval.Std())
	defer cleanupTicker.Stop()

	log.Printf("Orchestrator started: crawl every %s, cleanup every %s, retention %dh",
		cfg.Interval.Std(), cfg.CleanupInterval.Std(), cfg.RetentionHours)

	l.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Orchestrator stopping: %v", ctx.Err())
			return ctx.Err()
		case <-crawlTicker.C:
			l.cycle(ctx)
		case <-cleanupTicker.C:
			l.sweep(ctx)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	if _, err := l.runner.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Crawl cycle error: %v", err)
	}
}

func (l *Loop) sweep(ctx context.Context) {
	hours := l.runner.cfg.Crawl.RetentionHours
	if _, err := l.sweeper.Sweep(ctx, hours); err != nil && !errors.Is(err, retention.ErrSweepRunning) {
		log.Printf("Retention sweep error: %v", err)
	}

	// Age the persistent seen store alongside the index. Entries are
	// kept well past the retention window so a briefly-stale feed item
	// cannot be re-admitted the moment its point is deleted.
	if l.runner.seen != nil {
		cutoff := time.Now().Add(-2 * time.Duration(hours) * time.Hour)
		if pruned, err := l.runner.seen.Prune(cutoff); err != nil {
			log.Printf("Pruning seen store: %v", err)
		} else if pruned > 0 {
			log.Printf("Pruned %d aged seen-store entries", pruned)
		}
	}
}
