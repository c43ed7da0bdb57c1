package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"newsragnarok/internal/config"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		embeddings := make([][]float64, len(req.Input))
		for i := range embeddings {
			embeddings[i] = []float64{0.1, 0.2, 0.3}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", srv.URL)
	vecs, err := e.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if len(vecs[0]) != 3 {
		t.Errorf("expected dimension 3, got %d", len(vecs[0]))
	}
}

func TestOllamaEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("missing", srv.URL)
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error on HTTP 404")
	}
}

func TestCleanerClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		reply := "```json\n{\"content\": \"Clean body.\", \"author\": \"Jane Doe\", \"category\": \"Politics\", \"translated_title\": \"\", \"translated_content\": \"\"}\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": reply},
		})
	}))
	defer srv.Close()

	c := NewCleaner(config.Cleaner{
		Enabled:   true,
		Provider:  "ollama",
		Model:     "qwen2.5:7b",
		OllamaURL: srv.URL,
	})
	if c == nil {
		t.Fatal("expected enabled cleaner")
	}

	result, err := c.Clean(context.Background(), "Title", "Raw body with menus.")
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if result.Content != "Clean body." {
		t.Errorf("content = %q", result.Content)
	}
	if result.Author != "Jane Doe" {
		t.Errorf("author = %q", result.Author)
	}
	if result.Category != "Politics" {
		t.Errorf("category = %q", result.Category)
	}
}

func TestNewCleanerDisabled(t *testing.T) {
	if c := NewCleaner(config.Cleaner{Enabled: false}); c != nil {
		t.Fatal("disabled cleaner should be nil")
	}
}

func TestNewCleanerUnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewCleaner(config.Cleaner{
		Enabled:   true,
		Provider:  "ollama",
		Model:     "qwen2.5:7b",
		OllamaURL: srv.URL,
	})
	if c != nil {
		t.Fatal("cleaner with unreachable Ollama should degrade to nil")
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
	}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"content": "a"}`, "a"},
		{"fenced", "```json\n{\"content\": \"b\"}\n```", "b"},
		{"fenced bare", "```\n{\"content\": \"c\"}\n```", "c"},
		{"surrounding prose", "Here you go:\n{\"content\": \"d\"}\nDone.", "d"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p payload
			if err := ParseJSONResponse(tc.raw, &p); err != nil {
				t.Fatalf("ParseJSONResponse failed: %v", err)
			}
			if p.Content != tc.want {
				t.Errorf("content = %q, want %q", p.Content, tc.want)
			}
		})
	}

	var p payload
	if err := ParseJSONResponse("no json here", &p); err == nil {
		t.Fatal("expected error for response without JSON")
	}
}
