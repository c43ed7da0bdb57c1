// Package crawl runs the pipeline: discovery, extraction, duplicate
// filtering and persistence, one cycle at a time.
package crawl

import (
	"context"
	"fmt"
	"iter"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"newsragnarok/internal/config"
	"newsragnarok/internal/dedup"
	"newsragnarok/internal/models"
	"newsragnarok/internal/persist"
	"newsragnarok/internal/seenstore"
	"newsragnarok/internal/timeutil"
)

// memoryCooldown is how long a cycle pauses after shedding memory
// before moving to the next source.
const memoryCooldown = 5 * time.Second

// Discoverer yields candidates for one source.
type Discoverer interface {
	Discover(ctx context.Context, src config.Source) iter.Seq[models.Candidate]
}

// Extractor resolves a candidate into a full article.
type Extractor interface {
	Extract(ctx context.Context, cand models.Candidate, src config.Source) (*models.Article, error)
}

// Persister writes an article to the sinks.
type Persister interface {
	Persist(ctx context.Context, article *models.Article) (persist.Result, error)
}

// MemoryChecker reports and relieves memory pressure between sources.
type MemoryChecker interface {
	Check() bool
}

// Runner executes crawl cycles.
type Runner struct {
	cfg       config.Config
	discover  Discoverer
	extract   Extractor
	persister Persister
	filter    *dedup.Filter
	seen      *seenstore.Store
	mem       MemoryChecker

	statsMu sync.Mutex
	last    *models.CycleStats
}

// New creates a Runner. seen and mem may be nil.
func New(cfg config.Config, d Discoverer, e Extractor, p Persister, filter *dedup.Filter, seen *seenstore.Store, mem MemoryChecker) *Runner {
	return &Runner{
		cfg:       cfg,
		discover:  d,
		extract:   e,
		persister: p,
		filter:    filter,
		seen:      seen,
		mem:       mem,
	}
}

// Cycle runs one pass over every configured source. Sources are visited
// sequentially; items within a source are extracted and persisted by a
// bounded worker pool.
func (r *Runner) Cycle(ctx context.Context) (models.CycleStats, error) {
	start := timeutil.Now()
	stats := models.CycleStats{
		StartedAt: start,
		Sources:   make(map[string]models.SourceStats),
	}
	log.Printf("Crawl cycle started, %d sources", len(r.cfg.Sources))

	for _, src := range r.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		srcStats := r.crawlSource(ctx, src)
		stats.Sources[src.Name] = srcStats
		stats.Discovered += srcStats.Discovered
		stats.Processed += srcStats.Processed
		stats.Failed += srcStats.Failed
		stats.Skipped += srcStats.Skipped

		if r.mem != nil && r.mem.Check() {
			select {
			case <-time.After(memoryCooldown):
			case <-ctx.Done():
				return stats, ctx.Err()
			}
		}
	}

	stats.Duration = time.Since(start)
	log.Printf("Crawl cycle finished in %s: %d discovered, %d processed, %d skipped, %d failed",
		stats.Duration.Round(time.Second), stats.Discovered, stats.Processed, stats.Skipped, stats.Failed)

	r.statsMu.Lock()
	r.last = &stats
	r.statsMu.Unlock()

	r.touchHeartbeat()
	return stats, nil
}

// crawlSource drains one source's candidates through the worker pool.
func (r *Runner) crawlSource(ctx context.Context, src config.Source) models.SourceStats {
	var (
		mu    sync.Mutex
		stats models.SourceStats
		wg    sync.WaitGroup
	)

	concurrency := r.cfg.Crawl.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	for cand := range r.discover.Discover(ctx, src) {
		if ctx.Err() != nil {
			break
		}

		mu.Lock()
		stats.Discovered++
		mu.Unlock()

		// Duplicate check happens before dispatch so a near-duplicate
		// pair in the same batch cannot race each other into the pool.
		if dup, kind := r.filter.IsDuplicate(cand.URL, cand.Title); dup {
			log.Printf("Skipping duplicate (%s): %s", kind, cand.URL)
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(cand models.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			if r.processItem(ctx, cand, src) {
				mu.Lock()
				stats.Processed++
				mu.Unlock()
			} else {
				mu.Lock()
				stats.Failed++
				mu.Unlock()
			}
		}(cand)
	}
	wg.Wait()

	log.Printf("Source %s: %d discovered, %d processed, %d skipped, %d failed",
		src.Name, stats.Discovered, stats.Processed, stats.Skipped, stats.Failed)
	return stats
}

// processItem extracts and persists one candidate. The article is marked
// seen only after the index write succeeded.
func (r *Runner) processItem(ctx context.Context, cand models.Candidate, src config.Source) bool {
	article, err := r.extract.Extract(ctx, cand, src)
	if err != nil {
		log.Printf("Extraction failed for %s: %v", cand.URL, err)
		return false
	}

	if _, err := r.persister.Persist(ctx, article); err != nil {
		log.Printf("Persistence failed for %s: %v", cand.URL, err)
		return false
	}

	r.filter.Admit(cand.URL, cand.Title)
	if r.seen != nil {
		if err := r.seen.Record(seenstore.Admission{
			URL:        cand.URL,
			Title:      cand.Title,
			Source:     src.Name,
			AdmittedAt: timeutil.Now(),
		}); err != nil {
			log.Printf("Recording admission for %s: %v", cand.URL, err)
		}
	}
	return true
}

// LastStats returns the most recent completed cycle, or nil before the
// first one.
func (r *Runner) LastStats() *models.CycleStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if r.last == nil {
		return nil
	}
	copied := *r.last
	return &copied
}

// touchHeartbeat stamps the heartbeat file so external watchdogs can see
// the loop is alive. Failure is logged, never fatal.
func (r *Runner) touchHeartbeat() {
	dir := r.cfg.Output.DataDir
	if dir == "" {
		dir = config.DataDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("Heartbeat dir: %v", err)
		return
	}
	path := filepath.Join(dir, "heartbeat")
	content := fmt.Sprintf("%s\n", timeutil.Now().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		log.Printf("Heartbeat write: %v", err)
	}
}
