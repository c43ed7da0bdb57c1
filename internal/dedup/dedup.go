// Package dedup suppresses re-ingestion of recently seen articles.
//
// The filter matches on the canonical URL first and the normalized title
// second. Both caches are bounded LRUs: forgetting an old entry and
// re-ingesting it is acceptable, because index writes are idempotent.
package dedup

import (
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds each cache when no capacity is configured.
const DefaultCapacity = 10000

// MatchKind reports which key matched a duplicate check.
type MatchKind string

const (
	MatchNone  MatchKind = ""
	MatchURL   MatchKind = "url"
	MatchTitle MatchKind = "title"
)

// Filter is a bounded, concurrency-safe duplicate filter.
type Filter struct {
	mu     sync.Mutex
	urls   *lru.Cache[string, time.Time]
	titles *lru.Cache[string, time.Time]
}

// New creates a Filter holding up to capacity URLs and capacity titles.
func New(capacity int) (*Filter, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	urls, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, err
	}
	titles, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, err
	}
	return &Filter{urls: urls, titles: titles}, nil
}

// IsDuplicate reports whether the URL or title has been admitted before.
// It never mutates the caches beyond LRU recency bookkeeping; admission
// is a separate step so that persistence failures keep the item eligible
// for retry in a later cycle.
func (f *Filter) IsDuplicate(url, title string) (bool, MatchKind) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.urls.Get(url); ok {
		return true, MatchURL
	}
	if key := NormalizeTitle(title); key != "" {
		if _, ok := f.titles.Get(key); ok {
			return true, MatchTitle
		}
	}
	return false, MatchNone
}

// Admit records the URL and title as ingested. Call only after the item
// has been successfully persisted to the vector index.
func (f *Filter) Admit(url, title string) {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.urls.Add(url, now)
	if key := NormalizeTitle(title); key != "" {
		f.titles.Add(key, now)
	}
}

// Len returns the number of cached URLs.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urls.Len()
}

// NormalizeTitle lowers the title, keeps only letters, digits and
// spaces, and collapses whitespace runs, so near-identical headlines
// from the same wire story compare equal.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
