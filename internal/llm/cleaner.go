package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"newsragnarok/internal/config"
)

const cleanerMaxTokens = 4096

// CleanResult is the structured output of a cleaner pass over one article.
type CleanResult struct {
	Content           string `json:"content"`
	Author            string `json:"author"`
	Category          string `json:"category"`
	TranslatedTitle   string `json:"translated_title"`
	TranslatedContent string `json:"translated_content"`
}

// Cleaner removes residual boilerplate from extracted article text using
// an LLM and optionally translates title and body to English.
type Cleaner struct {
	provider  Provider
	translate bool
}

// NewCleaner builds a Cleaner from configuration. It returns nil when
// the cleaner is disabled or its provider is unusable (missing key,
// unreachable Ollama); callers treat nil as "no cleanup step".
func NewCleaner(cfg config.Cleaner) *Cleaner {
	if !cfg.Enabled {
		return nil
	}
	provider := CreateProvider(cfg.Provider, cfg.Model, cfg.OllamaURL, cfg.APIKeyEnv)
	if !provider.IsConfigured() {
		log.Printf("LLM cleaner provider %s not configured or unreachable, running without the cleanup step", cfg.Provider)
		return nil
	}
	return &Cleaner{
		provider:  provider,
		translate: cfg.Translate,
	}
}

// Clean asks the provider to strip navigation remnants, ads and cookie
// banners from the article body and to recover author and category when
// the page carried them.
func (c *Cleaner) Clean(ctx context.Context, title, content string) (CleanResult, error) {
	prompt := c.buildPrompt(title, content)

	raw, err := c.provider.Generate(ctx, prompt, cleanerMaxTokens)
	if err != nil {
		return CleanResult{}, fmt.Errorf("cleaner generation: %w", err)
	}

	var result CleanResult
	if err := ParseJSONResponse(raw, &result); err != nil {
		return CleanResult{}, fmt.Errorf("cleaner response: %w", err)
	}
	return result, nil
}

func (c *Cleaner) buildPrompt(title, content string) string {
	var b strings.Builder
	b.WriteString("You are cleaning the extracted text of a news article.\n")
	b.WriteString("Remove any leftover navigation menus, advertisements, cookie notices,\n")
	b.WriteString("subscription prompts and unrelated article teasers. Keep the article\n")
	b.WriteString("body itself verbatim. If the text names an author or a section/category,\n")
	b.WriteString("report them; otherwise leave those fields empty.\n")
	if c.translate {
		b.WriteString("Also translate the title and the cleaned body into English.\n")
	} else {
		b.WriteString("Leave translated_title and translated_content empty.\n")
	}
	b.WriteString("\nRespond with JSON only, using exactly these keys:\n")
	b.WriteString(`{"content": "...", "author": "...", "category": "...", "translated_title": "...", "translated_content": "..."}`)
	b.WriteString("\n\nTitle: ")
	b.WriteString(title)
	b.WriteString("\n\nText:\n")
	b.WriteString(content)
	return b.String()
}

// ParseJSONResponse decodes a JSON object from an LLM response, tolerating
// markdown code fences and surrounding prose around the object.
func ParseJSONResponse(raw string, v any) error {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in response")
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}
