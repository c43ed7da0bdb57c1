package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// readabilityStrategy runs the readability content heuristic over the
// cached HTML. It sits between selector extraction and the paragraph
// fallback: better at boilerplate removal than raw selectors, but it
// can discard short market notes that paragraphs still recover.
type readabilityStrategy struct{}

func (r *readabilityStrategy) Name() string { return StrategyReadability }

func (r *readabilityStrategy) Extract(ctx context.Context, item *Item) (string, error) {
	html, err := item.HTML(ctx)
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(item.Candidate.URL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("readability produced no text for %s", item.Candidate.URL)
	}
	return text, nil
}
