package discover

import (
	"context"
	"iter"
	"log"
	"strings"

	"github.com/mmcdole/gofeed"

	"newsragnarok/internal/config"
	"newsragnarok/internal/models"
)

// discoverFeed parses an RSS/Atom feed and yields entries lazily in
// feed order. Malformed entries (no link or title) are skipped one by
// one; a feed-level parse failure empties the sequence.
func (d *Discoverer) discoverFeed(ctx context.Context, src config.Source) iter.Seq[models.Candidate] {
	return func(yield func(models.Candidate) bool) {
		parser := gofeed.NewParser()
		parser.Client = d.client
		parser.UserAgent = userAgent

		feed, err := parser.ParseURLWithContext(src.URL, ctx)
		if err != nil {
			logSourceFailure(src, err)
			return
		}

		count := 0
		for _, item := range feed.Items {
			if count >= src.MaxItems {
				return
			}
			cand, ok := feedCandidate(item, src)
			if !ok {
				continue
			}
			if !withinWindow(cand.PublishedAt, src.RecencyWindow.Std()) {
				continue
			}
			count++
			if !yield(cand) {
				return
			}
		}
	}
}

func feedCandidate(item *gofeed.Item, src config.Source) (models.Candidate, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	itemURL, ok := canonicalURL(nil, link)
	if !ok {
		log.Printf("Skipping %s entry with no usable link", src.Name)
		return models.Candidate{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		log.Printf("Skipping %s entry with no title: %s", src.Name, itemURL)
		return models.Candidate{}, false
	}

	cand := models.Candidate{
		URL:        itemURL,
		Title:      title,
		SourceName: src.Name,
		Summary:    feedSummary(item),
	}

	if item.PublishedParsed != nil {
		cand.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		cand.PublishedAt = *item.UpdatedParsed
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		cand.Author = strings.TrimSpace(item.Authors[0].Name)
	}
	if len(item.Categories) > 0 {
		cand.Category = strings.TrimSpace(item.Categories[0])
	}
	return cand, true
}

func feedSummary(item *gofeed.Item) string {
	if item.Description != "" {
		return stripHTML(item.Description)
	}
	if item.Content != "" {
		return stripHTML(item.Content)
	}
	return ""
}

// stripHTML removes tags and decodes common entities from feed
// summaries, which frequently embed markup.
func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	return strings.Join(strings.Fields(s), " ")
}
