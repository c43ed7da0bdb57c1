package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"newsragnarok/internal/config"
	"newsragnarok/internal/models"
)

func articlePage(body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Example Story</title></head>
<body>
<nav>Home News Sports</nav>
<article>%s</article>
<footer>All rights reserved</footer>
</body>
</html>`, body)
}

func longBody() string {
	sentence := "This is a sentence of article text that carries actual reporting content. "
	return strings.Repeat(sentence, 10)
}

func testSource() config.Source {
	return config.Source{
		Name:             "example",
		Kind:             config.KindFeed,
		MinContentLength: 200,
	}
}

func TestExtractStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("<p>"+longBody()+"</p>"))
	}))
	defer srv.Close()

	e := New(srv.Client())
	article, err := e.Extract(context.Background(), models.Candidate{
		URL:   srv.URL + "/story",
		Title: "Example Story",
	}, testSource())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if article.ExtractionMethod != StrategyStatic {
		t.Errorf("method = %q, want static", article.ExtractionMethod)
	}
	if article.BelowMinimum {
		t.Error("long article flagged below minimum")
	}
	if !strings.Contains(article.Content, "actual reporting content") {
		t.Errorf("content missing article text: %q", article.Content[:min(len(article.Content), 120)])
	}
	if strings.Contains(article.Content, "Home News Sports") {
		t.Error("navigation chrome leaked into content")
	}
}

func TestExtractSourceSelectorPreferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<div class="article-teaser"><p>%s</p></div>
<div id="story-text"><p>%s</p></div>
</body></html>`, longBody(), "CONFIGURED "+longBody())
	}))
	defer srv.Close()

	src := testSource()
	src.ContentSelectors = []string{"#story-text"}

	e := New(srv.Client())
	article, err := e.Extract(context.Background(), models.Candidate{URL: srv.URL}, src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(article.Content, "CONFIGURED") {
		t.Error("configured selector was not preferred")
	}
}

func TestExtractSummaryFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("<p>Too short.</p>"))
	}))
	defer srv.Close()

	e := New(srv.Client())
	article, err := e.Extract(context.Background(), models.Candidate{
		URL:     srv.URL + "/story",
		Title:   "Example Story",
		Summary: "The feed carried this short description of the story.",
	}, testSource())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if article.ExtractionMethod != StrategySummary {
		t.Errorf("method = %q, want summary", article.ExtractionMethod)
	}
	if !article.BelowMinimum {
		t.Error("short summary content not flagged below minimum")
	}
	if !strings.Contains(article.Content, "short description") {
		t.Errorf("content = %q", article.Content)
	}
}

func TestExtractSummarySurvivesFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(srv.Client())
	article, err := e.Extract(context.Background(), models.Candidate{
		URL:     srv.URL + "/story",
		Title:   "Example Story",
		Summary: "Feed summary text survives even when the page is gone.",
	}, testSource())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if article.ExtractionMethod != StrategySummary {
		t.Errorf("method = %q, want summary", article.ExtractionMethod)
	}
}

func TestExtractExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(srv.Client())
	_, err := e.Extract(context.Background(), models.Candidate{
		URL:   srv.URL + "/story",
		Title: "Example Story",
	}, testSource())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

// stubRenderer stands in for the headless browser.
type stubRenderer struct {
	html  string
	err   error
	calls *int
}

func (s stubRenderer) Render(context.Context, string) (string, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.html, s.err
}

func withStubRenderer(r stubRenderer) Option {
	return func(e *Extractor) {
		e.strategies = append([]Strategy{&renderedStrategy{renderer: r}}, e.strategies...)
	}
}

func TestRenderTimeoutFallsThroughToStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("<p>"+longBody()+"</p>"))
	}))
	defer srv.Close()

	src := testSource()
	src.RenderFirst = true

	e := New(srv.Client(), withStubRenderer(stubRenderer{err: context.DeadlineExceeded}))
	article, err := e.Extract(context.Background(), models.Candidate{
		URL:   srv.URL + "/story",
		Title: "Example Story",
	}, src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if article.ExtractionMethod != StrategyStatic {
		t.Errorf("method = %q, want static after render timeout", article.ExtractionMethod)
	}
	if article.BelowMinimum {
		t.Error("static content flagged below minimum")
	}
}

func TestRenderedStrategyWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("<p>Too short.</p>"))
	}))
	defer srv.Close()

	src := testSource()
	src.RenderFirst = true

	rendered := articlePage("<p>RENDERED " + longBody() + "</p>")
	e := New(srv.Client(), withStubRenderer(stubRenderer{html: rendered}))
	article, err := e.Extract(context.Background(), models.Candidate{
		URL:   srv.URL + "/story",
		Title: "Example Story",
	}, src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if article.ExtractionMethod != StrategyRendered {
		t.Errorf("method = %q, want rendered", article.ExtractionMethod)
	}
	if !strings.Contains(article.Content, "RENDERED") {
		t.Error("rendered DOM text missing from content")
	}
}

func TestRenderSkippedWithoutRenderFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("<p>"+longBody()+"</p>"))
	}))
	defer srv.Close()

	var calls int
	e := New(srv.Client(), withStubRenderer(stubRenderer{calls: &calls}))
	article, err := e.Extract(context.Background(), models.Candidate{
		URL:   srv.URL + "/story",
		Title: "Example Story",
	}, testSource())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if article.ExtractionMethod != StrategyStatic {
		t.Errorf("method = %q, want static", article.ExtractionMethod)
	}
	if calls != 0 {
		t.Errorf("renderer invoked %d times for a source without render_first", calls)
	}
}

func TestExtractFetchesPageOnce(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, articlePage("<p>Too short.</p>"))
	}))
	defer srv.Close()

	e := New(srv.Client())
	// Every strategy down to the summary fallback runs; the page must
	// still be fetched exactly once.
	_, err := e.Extract(context.Background(), models.Candidate{
		URL:     srv.URL + "/story",
		Summary: "Short feed summary used as last resort.",
	}, testSource())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("page fetched %d times, want 1", n)
	}
}
