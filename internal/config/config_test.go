package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources) == 0 {
		t.Fatal("expected sources to be populated")
	}
	if cfg.Crawl.Interval.Std() != time.Hour {
		t.Errorf("expected 1h crawl interval, got %v", cfg.Crawl.Interval)
	}
	if cfg.Crawl.RetentionHours != 24 {
		t.Errorf("expected retention 24h, got %d", cfg.Crawl.RetentionHours)
	}
	if cfg.Vector.Collection != "news_articles" {
		t.Errorf("expected collection 'news_articles', got %q", cfg.Vector.Collection)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}

	want := []string{"babypips", "fxstreet", "forexlive", "poundsterlinglive", "kabutan"}
	if len(cfg.Sources) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(cfg.Sources))
	}
	for i, name := range want {
		if cfg.Sources[i].Name != name {
			t.Errorf("source %d = %q, want %q", i, cfg.Sources[i].Name, name)
		}
	}
}

func TestSourceDefaults(t *testing.T) {
	data := []byte(`
sources:
  - name: minimal
    url: https://example.com/feed.xml
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	src := cfg.Sources[0]
	if src.Kind != KindFeed {
		t.Errorf("expected default kind 'feed', got %q", src.Kind)
	}
	if src.RecencyWindow.Std() != 24*time.Hour {
		t.Errorf("expected default recency window 24h, got %v", src.RecencyWindow)
	}
	if src.MaxItems != 20 {
		t.Errorf("expected default max items 20, got %d", src.MaxItems)
	}
	if src.MinContentLength != 200 {
		t.Errorf("expected default min content length 200, got %d", src.MinContentLength)
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	data := []byte(`
sources:
  - name: same
    url: https://a.example.com/feed.xml
  - name: same
    url: https://b.example.com/feed.xml
`)
	_, err := parse(data)
	if err == nil {
		t.Fatal("expected error for duplicate source names")
	}
	if !strings.Contains(err.Error(), "duplicate source name") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRejectsListingWithoutItemSelector(t *testing.T) {
	data := []byte(`
sources:
  - name: broken
    kind: listing
    url: https://example.com/news/
`)
	_, err := parse(data)
	if err == nil {
		t.Fatal("expected error for listing source without item_selector")
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	data := []byte(`
sources:
  - name: odd
    kind: scrape
    url: https://example.com/
`)
	_, err := parse(data)
	if err == nil {
		t.Fatal("expected error for unknown source kind")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources) == 0 {
		t.Error("expected sources to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected configured data dir, got %q", cfg.GetDataDir())
	}
}
