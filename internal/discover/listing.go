package discover

import (
	"context"
	"fmt"
	"iter"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsragnarok/internal/config"
	"newsragnarok/internal/models"
)

// discoverListing fetches an HTML listing page, extracts one candidate
// per row and resolves publish dates from the article pages themselves.
// A failed per-item date fetch skips only that item.
func (d *Discoverer) discoverListing(ctx context.Context, src config.Source) iter.Seq[models.Candidate] {
	items, err := d.parseListing(ctx, src)
	if err != nil {
		logSourceFailure(src, err)
		items = nil
	}
	return func(yield func(models.Candidate) bool) {
		for _, cand := range items {
			if !yield(cand) {
				return
			}
		}
	}
}

func (d *Discoverer) parseListing(ctx context.Context, src config.Source) ([]models.Candidate, error) {
	doc, base, err := d.fetchDocument(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	linkSel := src.LinkSelector
	if linkSel == "" {
		linkSel = "a"
	}

	var items []models.Candidate
	seen := make(map[string]struct{})

	doc.Find(src.ItemSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(items) >= src.MaxItems {
			return false
		}

		link := row.Find(linkSel).First()
		href, _ := link.Attr("href")
		itemURL, ok := canonicalURL(base, href)
		if !ok {
			return true
		}
		if _, dup := seen[itemURL]; dup {
			return true
		}

		title := link.Text()
		if src.TitleSelector != "" {
			title = row.Find(src.TitleSelector).First().Text()
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return true
		}

		cand := models.Candidate{
			URL:        itemURL,
			Title:      title,
			SourceName: src.Name,
		}
		if src.CategorySelector != "" {
			cand.Category = strings.TrimSpace(row.Find(src.CategorySelector).First().Text())
		}

		// Listing rows rarely carry a normalized timestamp; resolve it
		// from the article page. A fetch failure skips this item only.
		publishedAt, err := d.fetchPublishDate(ctx, itemURL)
		if err != nil {
			log.Printf("Skipping %s item, date fetch failed: %s: %v", src.Name, itemURL, err)
			return true
		}
		cand.PublishedAt = publishedAt

		if !withinWindow(cand.PublishedAt, src.RecencyWindow.Std()) {
			return true
		}

		seen[itemURL] = struct{}{}
		items = append(items, cand)
		return true
	})

	return items, nil
}

// fetchDocument GETs a page and parses it, returning the parsed
// document and the final URL for relative-link resolution.
func (d *Discoverer) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetching %s: HTTP %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return doc, resp.Request.URL, nil
}

// dateLayouts covers the timestamp formats seen on article pages that
// don't emit RFC 3339.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// fetchPublishDate loads the article page and extracts its publish
// instant from standard metadata, falling back to <time datetime>.
// A page without any parseable date yields the current instant so
// retention can still age the item out.
func (d *Discoverer) fetchPublishDate(ctx context.Context, articleURL string) (time.Time, error) {
	doc, _, err := d.fetchDocument(ctx, articleURL)
	if err != nil {
		return time.Time{}, err
	}

	candidates := []string{}
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="pubdate"]`,
		`meta[name="date"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			candidates = append(candidates, v)
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}

	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
	}
	return time.Now(), nil
}
