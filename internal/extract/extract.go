// Package extract resolves full article text for a candidate item.
//
// Strategies are tried in a fixed order (rendered browser, static HTML
// selectors, readability, paragraph concatenation, feed summary); the
// first one whose cleaned output reaches the source's minimum length
// wins and later strategies are never invoked. One static HTTP fetch is
// shared by the static, readability and paragraph strategies.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"newsragnarok/internal/config"
	"newsragnarok/internal/llm"
	"newsragnarok/internal/models"
)

// ErrExhausted is returned when every strategy failed to produce
// acceptable content. The per-strategy reasons are wrapped.
var ErrExhausted = errors.New("all extraction strategies exhausted")

// StrategyTimeout bounds each strategy's network work. A timeout fails
// that strategy only and triggers the next fallback.
const StrategyTimeout = 30 * time.Second

// Strategy is a single method of obtaining article text. The returned
// text is raw; the chain cleans and length-gates it.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, item *Item) (string, error)
}

// Item carries one candidate through the strategy chain, caching the
// static HTML fetch between strategies.
type Item struct {
	Candidate models.Candidate
	Source    config.Source

	client   *http.Client
	html     []byte
	fetched  bool
	fetchErr error
}

// HTML fetches the article page once and serves cached bytes to every
// later strategy.
func (it *Item) HTML(ctx context.Context) ([]byte, error) {
	if it.fetched {
		return it.html, it.fetchErr
	}
	it.fetched = true
	it.html, it.fetchErr = fetchHTML(ctx, it.client, it.Candidate.URL)
	return it.html, it.fetchErr
}

// Extractor runs the strategy chain and the optional LLM cleaner.
type Extractor struct {
	strategies []Strategy
	client     *http.Client
	cleaner    *llm.Cleaner
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRenderer prepends the rendered-browser strategy.
func WithRenderer(r *Renderer) Option {
	return func(e *Extractor) {
		e.strategies = append([]Strategy{&renderedStrategy{renderer: r}}, e.strategies...)
	}
}

// WithCleaner enables the optional LLM content cleaner. Cleaner failure
// falls back to the regex-cleaned text and never rejects the item.
func WithCleaner(c *llm.Cleaner) Option {
	return func(e *Extractor) { e.cleaner = c }
}

// New creates an Extractor with the default fallback chain.
func New(client *http.Client, opts ...Option) *Extractor {
	if client == nil {
		client = newHTTPClient()
	}
	e := &Extractor{
		client: client,
		strategies: []Strategy{
			&staticStrategy{},
			&readabilityStrategy{},
			&paragraphStrategy{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	// Feed-summary fallback always runs last.
	e.strategies = append(e.strategies, &summaryStrategy{})
	return e
}

// Extract resolves content for cand, or returns ErrExhausted when no
// strategy produced usable text.
func (e *Extractor) Extract(ctx context.Context, cand models.Candidate, src config.Source) (*models.Article, error) {
	item := &Item{Candidate: cand, Source: src, client: e.client}
	minLen := src.MinContentLength

	var reasons []string
	for _, s := range e.strategies {
		// render_first opts a source in; everyone else starts at the
		// static strategy.
		if s.Name() == StrategyRendered && !src.RenderFirst {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, StrategyTimeout)
		raw, err := s.Extract(sctx, item)
		cancel()
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}

		cleaned := Clean(raw)
		if len(cleaned) == 0 {
			reasons = append(reasons, fmt.Sprintf("%s: empty after cleaning", s.Name()))
			continue
		}
		if len(cleaned) < minLen && s.Name() != StrategySummary {
			reasons = append(reasons, fmt.Sprintf("%s: %d chars below minimum %d", s.Name(), len(cleaned), minLen))
			continue
		}

		article := &models.Article{
			Candidate:        cand,
			Content:          cleaned,
			ContentLength:    len(cleaned),
			ExtractionMethod: s.Name(),
			BelowMinimum:     len(cleaned) < minLen,
		}
		e.applyCleaner(ctx, article)
		return article, nil
	}

	return nil, fmt.Errorf("%w for %s: %s", ErrExhausted, cand.URL, strings.Join(reasons, "; "))
}

// applyCleaner runs the optional LLM cleanup step. Its failure must
// never abort the item: the regex-cleaned content stands.
func (e *Extractor) applyCleaner(ctx context.Context, article *models.Article) {
	if e.cleaner == nil {
		return
	}
	result, err := e.cleaner.Clean(ctx, article.Title, article.Content)
	if err != nil {
		log.Printf("LLM cleaner failed for %s, keeping regex-cleaned text: %v", article.URL, err)
		return
	}
	if result.Content != "" {
		article.Content = result.Content
		article.ContentLength = len(result.Content)
	}
	if result.Author != "" && article.Author == "" {
		article.Author = result.Author
	}
	if result.Category != "" && article.Category == "" {
		article.Category = result.Category
	}
	article.TranslatedTitle = result.TranslatedTitle
	article.TranslatedContent = result.TranslatedContent
}
