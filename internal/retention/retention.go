// Package retention sweeps articles past their retention window out of
// the vector index.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"newsragnarok/internal/models"
	"newsragnarok/internal/timeutil"
)

// ErrSweepRunning is returned when a sweep is requested while another is
// in flight. Sweeps are single-flight: the caller should let the running
// one finish.
var ErrSweepRunning = errors.New("retention sweep already running")

// Sweep states as reported by Status and RetentionResult.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Deleter removes indexed points older than a cutoff and reports how
// many were removed.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper runs age-based deletion against the index. It is safe for
// concurrent use; only one sweep runs at a time.
type Sweeper struct {
	// newDeleter builds a fresh index client per sweep, mirroring
	// how the write path treats the index.
	newDeleter func() Deleter

	mu      sync.Mutex
	running bool
	last    models.RetentionResult
	lastAt  time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(newDeleter func() Deleter) *Sweeper {
	return &Sweeper{newDeleter: newDeleter, last: models.RetentionResult{Status: StatusIdle}}
}

// Sweep deletes every point whose publish time is older than
// retentionHours before now. Re-entrant calls fail fast with
// ErrSweepRunning.
func (s *Sweeper) Sweep(ctx context.Context, retentionHours int) (models.RetentionResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return models.RetentionResult{Status: StatusRunning}, ErrSweepRunning
	}
	s.running = true
	s.mu.Unlock()

	start := timeutil.Now()
	cutoff := start.Add(-time.Duration(retentionHours) * time.Hour)
	log.Printf("Retention sweep started, deleting articles published before %s", cutoff.Format(time.RFC3339))

	deleted, err := s.newDeleter().DeleteOlderThan(ctx, cutoff)

	result := models.RetentionResult{
		DeletedCount: deleted,
		Duration:     time.Since(start),
		Status:       StatusCompleted,
	}
	if err != nil {
		result.Status = StatusFailed
		err = fmt.Errorf("retention sweep: %w", err)
		log.Printf("Retention sweep failed after %s: %v", result.Duration.Round(time.Millisecond), err)
	} else {
		log.Printf("Retention sweep completed, deleted %d articles in %s", deleted, result.Duration.Round(time.Millisecond))
	}

	s.mu.Lock()
	s.running = false
	s.last = result
	s.lastAt = timeutil.Now()
	s.mu.Unlock()

	return result, err
}

// Last returns the most recent sweep result and when it finished. Before
// any sweep the status is idle and the time zero.
func (s *Sweeper) Last() (models.RetentionResult, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastAt
}

// Running reports whether a sweep is in flight.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
