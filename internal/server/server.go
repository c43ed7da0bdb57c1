// Package server exposes the pipeline's liveness and statistics over a
// small JSON HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"newsragnarok/internal/models"
	"newsragnarok/internal/timeutil"
)

// StatsSource reports the last completed crawl cycle.
type StatsSource interface {
	LastStats() *models.CycleStats
}

// SweepSource reports the last retention sweep.
type SweepSource interface {
	Last() (models.RetentionResult, time.Time)
	Running() bool
}

// IndexHealth checks and counts the vector index.
type IndexHealth interface {
	HealthCheck(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Server is the read-only status endpoint of the run loop.
type Server struct {
	stats      StatsSource
	sweeps     SweepSource
	index      IndexHealth
	archiveSet bool
	archiveErr error
	started    time.Time
	httpSrv    *http.Server
}

// New creates a Server listening on the given port.
func New(port int, stats StatsSource, sweeps SweepSource, index IndexHealth) *Server {
	s := &Server{
		stats:   stats,
		sweeps:  sweeps,
		index:   index,
		started: timeutil.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// SetArchiveStatus records whether the configured archive came up. Call
// before Start; a non-nil err marks the collaborator unhealthy in
// /status while the pipeline keeps running without it.
func (s *Server) SetArchiveStatus(enabled bool, err error) {
	s.archiveSet = enabled
	s.archiveErr = err
}

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Printf("Status server listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status server: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the route table, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptimeSeconds": int(time.Since(s.started).Seconds()),
		"time":          timeutil.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"startedAt": s.started.Format(time.RFC3339),
	}

	if s.stats != nil {
		if stats := s.stats.LastStats(); stats != nil {
			resp["lastCycle"] = map[string]any{
				"startedAt":       stats.StartedAt.Format(time.RFC3339),
				"durationSeconds": stats.Duration.Seconds(),
				"discovered":      stats.Discovered,
				"processed":       stats.Processed,
				"skipped":         stats.Skipped,
				"failed":          stats.Failed,
			}
		}
	}

	if s.sweeps != nil {
		last, at := s.sweeps.Last()
		sweep := map[string]any{
			"status":       last.Status,
			"deletedCount": last.DeletedCount,
			"running":      s.sweeps.Running(),
		}
		if !at.IsZero() {
			sweep["finishedAt"] = at.Format(time.RFC3339)
		}
		resp["lastSweep"] = sweep
	}

	if s.index != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		index := map[string]any{"healthy": true}
		if err := s.index.HealthCheck(ctx); err != nil {
			index["healthy"] = false
			index["error"] = err.Error()
		} else if count, err := s.index.Count(ctx); err == nil {
			index["points"] = count
		}
		resp["index"] = index
	}

	if s.archiveSet {
		arch := map[string]any{"healthy": s.archiveErr == nil}
		if s.archiveErr != nil {
			arch["error"] = s.archiveErr.Error()
		}
		resp["archive"] = arch
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encoding response: %v", err)
	}
}
