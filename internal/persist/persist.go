// Package persist coordinates the two sinks an accepted article is
// written to: the content archive and the vector index.
package persist

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"newsragnarok/internal/models"
	"newsragnarok/internal/retry"
	"newsragnarok/internal/timeutil"
	"newsragnarok/internal/vector"
)

// embedTextLimit caps how much article text is embedded. Bodies beyond
// this contribute nothing to retrieval quality but slow the embedder.
const embedTextLimit = 8000

// ArchiveSink stores the durable JSON record of an article.
type ArchiveSink interface {
	Put(ctx context.Context, record models.ArchiveRecord) (string, error)
}

// IndexSink writes one embedded article into the vector index.
type IndexSink interface {
	Upsert(ctx context.Context, id string, vec []float64, payload vector.Payload) error
}

// Embedder turns article text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Result reports what happened to one article. Indexed alone decides
// whether the caller may mark the article as seen: an archive failure is
// logged and tolerated, an index failure means the article must be
// retried on a later cycle.
type Result struct {
	ArticleID  string
	ArchiveKey string
	Archived   bool
	Indexed    bool
}

// Coordinator writes each accepted article to both sinks.
type Coordinator struct {
	archive  ArchiveSink
	embedder Embedder
	// newIndex builds a fresh index client. Each retry attempt gets its
	// own client so a wedged connection cannot poison the next try.
	newIndex func() IndexSink
	policy   retry.Policy
}

// New creates a Coordinator. archive may be nil when archiving is
// disabled.
func New(archive ArchiveSink, embedder Embedder, newIndex func() IndexSink) *Coordinator {
	return &Coordinator{
		archive:  archive,
		embedder: embedder,
		newIndex: newIndex,
		policy:   retry.DefaultPolicy(),
	}
}

// Persist writes the article to the archive (best effort) and the index
// (retried). It returns an error only when indexing ultimately failed.
func (c *Coordinator) Persist(ctx context.Context, article *models.Article) (Result, error) {
	id := vector.PointID(article.Content, article.URL, article.SourceName)
	result := Result{ArticleID: id}

	if c.archive != nil {
		key, err := c.archive.Put(ctx, buildRecord(article, id))
		if err != nil {
			log.Printf("Archive write failed for %s, continuing to index: %v", article.URL, err)
		} else {
			result.Archived = true
			result.ArchiveKey = key
		}
	}

	vec, err := c.embed(ctx, article)
	if err != nil {
		return result, fmt.Errorf("embedding %s: %w", article.URL, err)
	}

	// Undated articles age from their crawl instant, not from the zero
	// time, or the next retention sweep would delete them immediately.
	publishedAt := article.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = timeutil.Now()
	}
	payload := vector.NewPayload(article.Title, article.URL, article.SourceName,
		article.Category, article.Author, article.Content, publishedAt)

	err = c.policy.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			log.Printf("Index attempt %d for %s", attempt, article.URL)
		}
		return c.newIndex().Upsert(ctx, id, vec, payload)
	})
	if err != nil {
		return result, fmt.Errorf("indexing %s: %w", article.URL, err)
	}

	result.Indexed = true
	return result, nil
}

func (c *Coordinator) embed(ctx context.Context, article *models.Article) ([]float64, error) {
	text := article.Title + "\n\n" + article.Content
	if len(text) > embedTextLimit {
		// Back off to a rune boundary so the cut never leaves a broken
		// UTF-8 sequence at the end.
		cut := embedTextLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	vecs, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return vecs[0], nil
}

func buildRecord(article *models.Article, id string) models.ArchiveRecord {
	publishedAt := article.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = timeutil.Now() // same aging rule as the index payload
	}
	return models.ArchiveRecord{
		Title:             article.Title,
		URL:               article.URL,
		Content:           article.Content,
		PublishedAt:       timeutil.Canonical(publishedAt),
		Source:            article.SourceName,
		Author:            article.Author,
		Category:          article.Category,
		TranslatedTitle:   article.TranslatedTitle,
		TranslatedContent: article.TranslatedContent,
		ExtractionMethod:  article.ExtractionMethod,
		CrawledAt:         timeutil.Now(),
		ArticleID:         id,
	}
}
