// Package discover turns configured sources into candidate items.
//
// Feed sources yield lazily in feed order; listing sources are parsed
// into a slice first and then yielded. Either way callers consume one
// finite, non-restartable sequence per source and cycle.
package discover

import (
	"context"
	"iter"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newsragnarok/internal/config"
	"newsragnarok/internal/models"
	"newsragnarok/internal/timeutil"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Discoverer fetches feeds and listing pages and yields candidates.
type Discoverer struct {
	client *http.Client
}

// New creates a Discoverer. A nil client gets a 30s-timeout default.
func New(client *http.Client) *Discoverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Discoverer{client: client}
}

// Discover yields candidates for one source, newest first in source
// order, filtered to the source's recency window. A top-level fetch or
// parse failure empties the sequence; it never aborts other sources.
func (d *Discoverer) Discover(ctx context.Context, src config.Source) iter.Seq[models.Candidate] {
	switch src.Kind {
	case config.KindListing:
		return d.discoverListing(ctx, src)
	default:
		return d.discoverFeed(ctx, src)
	}
}

// withinWindow reports whether publishedAt falls inside the recency
// window ending now, compared in the canonical timezone. Zero times are
// admitted: an undated item gets the benefit of the doubt.
func withinWindow(publishedAt time.Time, window time.Duration) bool {
	if publishedAt.IsZero() {
		return true
	}
	cutoff := timeutil.Now().Add(-window)
	return !timeutil.Canonical(publishedAt).Before(cutoff)
}

// canonicalURL resolves ref against base (when relative), drops the
// fragment and lower-cases the host. The result is the item's identity
// for deduplication.
func canonicalURL(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

func logSourceFailure(src config.Source, err error) {
	log.Printf("Source %s failed for this cycle: %v", src.Name, err)
}
