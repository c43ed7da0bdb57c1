package persist

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"newsragnarok/internal/models"
	"newsragnarok/internal/retry"
	"newsragnarok/internal/vector"
)

type fakeArchive struct {
	puts []models.ArchiveRecord
	err  error
}

func (f *fakeArchive) Put(_ context.Context, record models.ArchiveRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.puts = append(f.puts, record)
	return "2026/08/30/test.json", nil
}

type fakeEmbedder struct {
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts...)
	vecs := make([][]float64, len(texts))
	for i := range vecs {
		vecs[i] = []float64{0.1, 0.2}
	}
	return vecs, nil
}

type fakeIndex struct {
	upserts  []string
	payloads []vector.Payload
	failures int
}

func (f *fakeIndex) Upsert(_ context.Context, id string, _ []float64, payload vector.Payload) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("index unavailable")
	}
	f.upserts = append(f.upserts, id)
	f.payloads = append(f.payloads, payload)
	return nil
}

func testArticle() *models.Article {
	return &models.Article{
		Candidate: models.Candidate{
			URL:         "https://example.com/a",
			Title:       "Test Article",
			SourceName:  "example",
			PublishedAt: time.Now(),
		},
		Content:          "Article body long enough to matter.",
		ExtractionMethod: "static",
	}
}

func immediateRetries(c *Coordinator) {
	c.policy = retry.Policy{MaxAttempts: 3}
}

func TestPersistBothSinks(t *testing.T) {
	arch := &fakeArchive{}
	idx := &fakeIndex{}
	c := New(arch, &fakeEmbedder{}, func() IndexSink { return idx })

	result, err := c.Persist(context.Background(), testArticle())
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if !result.Archived || !result.Indexed {
		t.Errorf("result = %+v, want both sinks written", result)
	}
	if len(arch.puts) != 1 {
		t.Fatalf("archive writes = %d, want 1", len(arch.puts))
	}
	if arch.puts[0].ArticleID != result.ArticleID {
		t.Error("archive record id does not match result id")
	}
	if len(idx.upserts) != 1 || idx.upserts[0] != result.ArticleID {
		t.Errorf("index upserts = %v", idx.upserts)
	}
}

func TestArchiveFailureDoesNotBlockIndexing(t *testing.T) {
	arch := &fakeArchive{err: errors.New("bucket gone")}
	idx := &fakeIndex{}
	c := New(arch, &fakeEmbedder{}, func() IndexSink { return idx })

	result, err := c.Persist(context.Background(), testArticle())
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if result.Archived {
		t.Error("result claims archived despite failure")
	}
	if !result.Indexed {
		t.Error("index should have been written anyway")
	}
}

func TestIndexRetriesWithFreshClient(t *testing.T) {
	idx := &fakeIndex{failures: 2}
	var clients int
	c := New(nil, &fakeEmbedder{}, func() IndexSink {
		clients++
		return idx
	})
	immediateRetries(c)

	result, err := c.Persist(context.Background(), testArticle())
	if err != nil {
		t.Fatalf("Persist failed after retries: %v", err)
	}
	if !result.Indexed {
		t.Error("expected success on third attempt")
	}
	if clients != 3 {
		t.Errorf("index clients built = %d, want one per attempt", clients)
	}
}

func TestIndexExhaustionFailsPersist(t *testing.T) {
	idx := &fakeIndex{failures: 10}
	c := New(nil, &fakeEmbedder{}, func() IndexSink { return idx })
	immediateRetries(c)

	result, err := c.Persist(context.Background(), testArticle())
	if err == nil {
		t.Fatal("expected error when every index attempt fails")
	}
	if !errors.Is(err, retry.ErrExhausted) {
		t.Errorf("error does not wrap exhaustion: %v", err)
	}
	if result.Indexed {
		t.Error("result claims indexed after total failure")
	}
}

func TestEmbedFailureSkipsIndex(t *testing.T) {
	idx := &fakeIndex{}
	c := New(nil, &fakeEmbedder{err: errors.New("model offline")}, func() IndexSink { return idx })

	_, err := c.Persist(context.Background(), testArticle())
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if len(idx.upserts) != 0 {
		t.Error("index written despite embed failure")
	}
}

func TestEmbedTruncationKeepsValidUTF8(t *testing.T) {
	// Shifting an ASCII prefix through all three alignments guarantees
	// the byte limit lands mid-rune for at least one case.
	for _, prefix := range []string{"", "x", "xx"} {
		emb := &fakeEmbedder{}
		c := New(nil, emb, func() IndexSink { return &fakeIndex{} })

		article := testArticle()
		article.Content = prefix + strings.Repeat("日本語の記事本文。", 1000)

		if _, err := c.Persist(context.Background(), article); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
		if len(emb.texts) != 1 {
			t.Fatalf("embedded texts = %d, want 1", len(emb.texts))
		}
		text := emb.texts[0]
		if len(text) > embedTextLimit {
			t.Errorf("embedded text %d bytes exceeds limit %d", len(text), embedTextLimit)
		}
		if !utf8.ValidString(text) {
			t.Errorf("truncation with prefix %q produced invalid UTF-8", prefix)
		}
	}
}

func TestUndatedArticleAgesFromCrawlTime(t *testing.T) {
	idx := &fakeIndex{}
	c := New(nil, &fakeEmbedder{}, func() IndexSink { return idx })

	article := testArticle()
	article.PublishedAt = time.Time{}

	if _, err := c.Persist(context.Background(), article); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if len(idx.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(idx.payloads))
	}
	unix := idx.payloads[0].PublishedAtUnix
	if delta := time.Now().Unix() - unix; delta < 0 || delta > 60 {
		t.Errorf("undated article publish time %d not near now", unix)
	}
}

func TestPersistIdempotentID(t *testing.T) {
	idx := &fakeIndex{}
	c := New(nil, &fakeEmbedder{}, func() IndexSink { return idx })

	a, err := c.Persist(context.Background(), testArticle())
	if err != nil {
		t.Fatalf("first Persist failed: %v", err)
	}
	b, err := c.Persist(context.Background(), testArticle())
	if err != nil {
		t.Fatalf("second Persist failed: %v", err)
	}
	if a.ArticleID != b.ArticleID {
		t.Errorf("same article produced different ids: %s vs %s", a.ArticleID, b.ArticleID)
	}
}
