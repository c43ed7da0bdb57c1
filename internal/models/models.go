// Package models holds the data types passed between pipeline stages.
package models

import "time"

// Candidate is a discovered but not yet extracted article reference.
// It lives for one crawl cycle.
type Candidate struct {
	URL         string
	Title       string
	PublishedAt time.Time
	SourceName  string
	Author      string
	Category    string
	// Summary carries the feed's own description text, used as the
	// last-resort extraction fallback.
	Summary string
}

// Article is a candidate with resolved full content.
type Article struct {
	Candidate

	Content       string
	ContentLength int
	// ExtractionMethod names the strategy that produced Content
	// ("rendered", "static", "readability", "paragraphs", "summary").
	ExtractionMethod string
	// BelowMinimum marks content accepted only as a last resort,
	// under the configured minimum length.
	BelowMinimum bool

	TranslatedTitle   string
	TranslatedContent string
}

// ArchiveRecord is the durable, write-once document stored in the
// content archive under a publish-date key.
type ArchiveRecord struct {
	Title             string    `json:"title"`
	URL               string    `json:"url"`
	Content           string    `json:"content"`
	PublishedAt       time.Time `json:"publishDate"`
	Source            string    `json:"source"`
	Author            string    `json:"author,omitempty"`
	Category          string    `json:"category,omitempty"`
	TranslatedTitle   string    `json:"translatedTitle,omitempty"`
	TranslatedContent string    `json:"translatedContent,omitempty"`
	ExtractionMethod  string    `json:"extractionMethod"`
	CrawledAt         time.Time `json:"crawledAt"`
	ArticleID         string    `json:"articleId"`
}

// SourceStats counts one source's outcomes within a cycle.
type SourceStats struct {
	Discovered int
	Processed  int
	Failed     int
	Skipped    int
}

// CycleStats aggregates one full pass over all sources.
type CycleStats struct {
	StartedAt  time.Time
	Duration   time.Duration
	Discovered int
	Processed  int
	Failed     int
	Skipped    int
	Sources    map[string]SourceStats
}

// RetentionResult reports one retention sweep.
type RetentionResult struct {
	DeletedCount int
	Duration     time.Duration
	Status       string
}
