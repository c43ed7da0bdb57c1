// Package vector implements the Qdrant-backed article index. The client
// speaks the Qdrant REST API directly over net/http.
package vector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"newsragnarok/internal/config"
	"newsragnarok/internal/timeutil"
)

// contentIDPrefixLen bounds how much of the body feeds the point id, so
// trailing-whitespace or footer differences do not change identity.
const contentIDPrefixLen = 1000

// Client talks to one Qdrant collection.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	vectorSize int
	http       *http.Client
}

// NewClient creates a Qdrant client from configuration. Each call builds
// a fresh client; retrying callers are expected to rebuild rather than
// reuse one whose transport may be wedged.
func NewClient(cfg config.Vector) *Client {
	return &Client{
		baseURL:    cfg.URL,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// PointID derives a stable point id from the article identity. The same
// content, URL and source always map to the same id, making re-indexing
// an upsert rather than a duplicate.
func PointID(content, url, source string) string {
	if len(content) > contentIDPrefixLen {
		content = content[:contentIDPrefixLen]
	}
	sum := sha256.Sum256([]byte(content + "|" + url + "|" + source))
	id, _ := uuid.FromBytes(sum[:16])
	return id.String()
}

// Payload is the metadata stored alongside each vector.
type Payload struct {
	Title           string `json:"title"`
	URL             string `json:"url"`
	Source          string `json:"source"`
	Category        string `json:"category,omitempty"`
	Author          string `json:"author,omitempty"`
	Content         string `json:"content"`
	PublishedAt     string `json:"publishedAt"`
	PublishedAtUnix int64  `json:"publishedAtUnix"`
	CrawledAt       string `json:"crawledAt"`
}

// NewPayload builds the indexed metadata for an article. Timestamps are
// rendered in the canonical timezone; the unix field exists for range
// filters, which Qdrant only supports on numbers.
func NewPayload(title, url, source, category, author, content string, publishedAt time.Time) Payload {
	published := timeutil.Canonical(publishedAt)
	return Payload{
		Title:           title,
		URL:             url,
		Source:          source,
		Category:        category,
		Author:          author,
		Content:         content,
		PublishedAt:     published.Format(time.RFC3339),
		PublishedAtUnix: published.Unix(),
		CrawledAt:       timeutil.Now().Format(time.RFC3339),
	}
}

// EnsureCollection creates the collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	status, _, err := c.do(ctx, "GET", "/collections/"+c.collection, nil)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	status, respBody, err := c.do(ctx, "PUT", "/collections/"+c.collection, body)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("creating collection: qdrant returned %d: %s", status, respBody)
	}
	return nil
}

// Upsert writes one point. An existing point with the same id is replaced.
func (c *Client) Upsert(ctx context.Context, id string, vector []float64, payload Payload) error {
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":      id,
				"vector":  vector,
				"payload": payload,
			},
		},
	}
	status, respBody, err := c.do(ctx, "PUT", "/collections/"+c.collection+"/points?wait=true", body)
	if err != nil {
		return fmt.Errorf("upserting point: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("upserting point: qdrant returned %d: %s", status, respBody)
	}
	return nil
}

// DeleteOlderThan removes every point whose publish time is before the
// cutoff. Returns how many points the filter matched, measured as the
// count delta around the delete.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	before, err := c.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting before delete: %w", err)
	}

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "publishedAtUnix",
					"range": map[string]any{"lt": cutoff.Unix()},
				},
			},
		},
	}
	status, respBody, err := c.do(ctx, "POST", "/collections/"+c.collection+"/points/delete?wait=true", body)
	if err != nil {
		return 0, fmt.Errorf("deleting points: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("deleting points: qdrant returned %d: %s", status, respBody)
	}

	after, err := c.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting after delete: %w", err)
	}
	deleted := before - after
	if deleted < 0 {
		deleted = 0
	}
	return deleted, nil
}

// Count returns the number of points in the collection.
func (c *Client) Count(ctx context.Context) (int, error) {
	status, respBody, err := c.do(ctx, "POST", "/collections/"+c.collection+"/points/count", map[string]any{"exact": true})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("counting points: qdrant returned %d: %s", status, respBody)
	}

	var result struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("decoding count: %w", err)
	}
	return result.Result.Count, nil
}

// ClearAll drops and recreates the collection.
func (c *Client) ClearAll(ctx context.Context) error {
	status, respBody, err := c.do(ctx, "DELETE", "/collections/"+c.collection, nil)
	if err != nil {
		return fmt.Errorf("dropping collection: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("dropping collection: qdrant returned %d: %s", status, respBody)
	}
	return c.EnsureCollection(ctx)
}

// HealthCheck verifies the Qdrant instance is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	status, _, err := c.do(ctx, "GET", "/collections", nil)
	if err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant returned %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
