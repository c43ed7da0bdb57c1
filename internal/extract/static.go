package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy names, recorded on extracted articles.
const (
	StrategyRendered    = "rendered"
	StrategyStatic      = "static"
	StrategyReadability = "readability"
	StrategyParagraphs  = "paragraphs"
	StrategySummary     = "summary"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// genericSelectors is the ordered list tried after the source's own
// selectors. Attribute-contains variants catch the content/post/entry
// class conventions most news sites follow.
var genericSelectors = []string{
	"article",
	`[class*="article"]`,
	`[class*="content"]`,
	`[class*="post"]`,
	`[class*="entry"]`,
	".story-body",
	"main",
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: StrategyTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

func fetchHTML(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: HTTP %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}
	return body, nil
}

// staticStrategy fetches the page once and extracts text with CSS
// selectors, preferring the source's configured selectors and falling
// back to full-page text when nothing qualifies.
type staticStrategy struct{}

func (s *staticStrategy) Name() string { return StrategyStatic }

func (s *staticStrategy) Extract(ctx context.Context, item *Item) (string, error) {
	html, err := item.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	stripChrome(doc)

	selectors := append(append([]string{}, item.Source.ContentSelectors...), genericSelectors...)

	// Pick the single selector match holding the most text.
	best := ""
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			text := nodeText(node)
			if len(text) > len(best) {
				best = text
			}
		})
		// Substantial match on a higher-priority selector wins outright.
		if len(best) >= 500 {
			return best, nil
		}
	}
	if len(best) >= item.Source.MinContentLength {
		return best, nil
	}

	// Nothing qualified: full-page text.
	return nodeText(doc.Selection), nil
}

// stripChrome removes elements that never hold article text.
func stripChrome(doc *goquery.Document) {
	doc.Find("script, style, nav, header, footer, aside, noscript, iframe, form").Remove()
}

// nodeText flattens a selection to whitespace-normalized text.
func nodeText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// paragraphStrategy re-parses the same HTML and concatenates only <p>
// text. Noisier than selector extraction but robust against unusual
// page structures.
type paragraphStrategy struct{}

func (p *paragraphStrategy) Name() string { return StrategyParagraphs }

func (p *paragraphStrategy) Extract(ctx context.Context, item *Item) (string, error) {
	html, err := item.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var parts []string
	doc.Find("p").Each(func(_ int, node *goquery.Selection) {
		if text := nodeText(node); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return "", fmt.Errorf("no paragraph text in %s", item.Candidate.URL)
	}
	return strings.Join(parts, "\n\n"), nil
}

// summaryStrategy is the last resort: the feed's own summary text,
// prefixed with the page title when one is reachable.
type summaryStrategy struct{}

func (s *summaryStrategy) Name() string { return StrategySummary }

func (s *summaryStrategy) Extract(ctx context.Context, item *Item) (string, error) {
	summary := strings.TrimSpace(item.Candidate.Summary)
	if summary == "" {
		return "", fmt.Errorf("no feed summary for %s", item.Candidate.URL)
	}

	// Best effort page title; the cached fetch may have failed.
	if html, err := item.HTML(ctx); err == nil {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
			if title := nodeText(doc.Find("title").First()); title != "" {
				return title + "\n\n" + summary, nil
			}
		}
	}
	return summary, nil
}
