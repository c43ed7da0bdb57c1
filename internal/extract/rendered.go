package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// Renderer drives a shared headless Chrome instance. Rendering is
// memory-heavy, so one browser is reused across items and access is
// serialized; the orchestrator's worker cap bounds how many items wait
// here.
type Renderer struct {
	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewRenderer starts a headless browser allocator. The browser process
// itself launches lazily on first render.
func NewRenderer(ctx context.Context) *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(browserUserAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return &Renderer{allocCtx: allocCtx, cancel: cancel}
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.cancel()
}

// Render loads the page in a fresh tab and returns the rendered DOM.
// The tab is always released, even on failure or timeout.
func (r *Renderer) Render(ctx context.Context, pageURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(r.allocCtx)
	defer cancel()

	// Honor the caller's deadline inside the tab context.
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		tabCtx, dcancel = context.WithDeadline(tabCtx, deadline)
		defer dcancel()
	}

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", pageURL, err)
	}
	return html, nil
}

// pageRenderer is the browser seam the rendered strategy extracts
// through. *Renderer is the production implementation.
type pageRenderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// renderedStrategy extracts from the browser-rendered DOM, applying the
// source selector and a link-density pruning pass before flattening.
type renderedStrategy struct {
	renderer pageRenderer
}

func (s *renderedStrategy) Name() string { return StrategyRendered }

func (s *renderedStrategy) Extract(ctx context.Context, item *Item) (string, error) {
	html, err := s.renderer.Render(ctx, item.Candidate.URL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return "", fmt.Errorf("parsing rendered html: %w", err)
	}
	stripChrome(doc)
	pruneByLinkDensity(doc)

	selectors := append(append([]string{}, item.Source.ContentSelectors...), genericSelectors...)
	for _, sel := range selectors {
		best := ""
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			if text := nodeText(node); len(text) > len(best) {
				best = text
			}
		})
		if len(best) >= item.Source.MinContentLength {
			return best, nil
		}
	}
	return nodeText(doc.Selection), nil
}

// pruneByLinkDensity removes block containers whose text is mostly link
// anchors -- navigation, related-article rails and tag clouds.
func pruneByLinkDensity(doc *goquery.Document) {
	doc.Find("div, ul, section").Each(func(_ int, node *goquery.Selection) {
		total := len(strings.TrimSpace(node.Text()))
		if total < 20 {
			return
		}
		linkText := 0
		node.Find("a").Each(func(_ int, a *goquery.Selection) {
			linkText += len(strings.TrimSpace(a.Text()))
		})
		if float64(linkText)/float64(total) > 0.6 {
			node.Remove()
		}
	})
}
