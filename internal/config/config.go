package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Duration unmarshals from YAML strings like "1h" or "90m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"1h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Kind selects the discovery mechanism for a source.
const (
	KindFeed    = "feed"
	KindListing = "listing"
)

type Config struct {
	Sources   []Source  `yaml:"sources"`
	Crawl     Crawl     `yaml:"crawl"`
	Archive   Archive   `yaml:"archive"`
	Vector    Vector    `yaml:"vector"`
	Embedding Embedding `yaml:"embedding"`
	Cleaner   Cleaner   `yaml:"cleaner"`
	Server    Server    `yaml:"server"`
	Output    Output    `yaml:"output"`
}

// Source describes one external feed or listing page.
type Source struct {
	Name          string   `yaml:"name"`
	Kind          string   `yaml:"kind"`
	URL           string   `yaml:"url"`
	RecencyWindow Duration `yaml:"recency_window"`
	MaxItems      int      `yaml:"max_items"`

	// Extraction hints. ContentSelectors are tried before the generic
	// selector list; MinContentLength gates every strategy's output.
	ContentSelectors []string `yaml:"content_selectors"`
	MinContentLength int      `yaml:"min_content_length"`
	RenderFirst      bool     `yaml:"render_first"`

	// Listing-page selectors (kind: listing only).
	ItemSelector     string `yaml:"item_selector"`
	LinkSelector     string `yaml:"link_selector"`
	TitleSelector    string `yaml:"title_selector"`
	CategorySelector string `yaml:"category_selector"`
	DateSelector     string `yaml:"date_selector"`
}

type Crawl struct {
	Interval        Duration `yaml:"interval"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionHours  int      `yaml:"retention_hours"`
	Concurrency     int      `yaml:"concurrency"`
	DedupCapacity   int      `yaml:"dedup_capacity"`
	MemoryLimitMB   uint64   `yaml:"memory_limit_mb"`
}

type Archive struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Bucket       string `yaml:"bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
}

type Vector struct {
	URL        string `yaml:"url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
	VectorSize int    `yaml:"vector_size"`
}

type Embedding struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	OllamaURL string `yaml:"ollama_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Cleaner configures the optional LLM content cleaner. When disabled the
// regex cleaner output is used as-is.
type Cleaner struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	OllamaURL string `yaml:"ollama_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Translate bool   `yaml:"translate"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigDir returns the XDG config directory for newsragnarok.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsragnarok")
}

// DataDir returns the XDG data directory for newsragnarok.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsragnarok")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsragnarok/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsragnarok init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration before any file is applied.
func Default() Config {
	return Config{
		Crawl: Crawl{
			Interval:        Duration(time.Hour),
			CleanupInterval: Duration(24 * time.Hour),
			RetentionHours:  24,
			Concurrency:     2,
			DedupCapacity:   10000,
			MemoryLimitMB:   800,
		},
		Vector: Vector{
			URL:        "http://localhost:6333",
			APIKeyEnv:  "QDRANT_API_KEY",
			Collection: "news_articles",
			VectorSize: 3072,
		},
		Embedding: Embedding{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			OllamaURL: "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Cleaner: Cleaner{
			Provider:  "ollama",
			Model:     "qwen2.5:7b",
			OllamaURL: "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Archive: Archive{
			AccessKeyEnv: "ARCHIVE_ACCESS_KEY",
			SecretKeyEnv: "ARCHIVE_SECRET_KEY",
			Bucket:       "news-archive",
		},
		Server: Server{Port: 8000},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	defaults := Default()
	cfg := &defaults

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Sources {
		applySourceDefaults(&cfg.Sources[i])
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applySourceDefaults(s *Source) {
	if s.Kind == "" {
		s.Kind = KindFeed
	}
	if s.RecencyWindow == 0 {
		s.RecencyWindow = Duration(24 * time.Hour)
	}
	if s.MaxItems == 0 {
		s.MaxItems = 20
	}
	if s.MinContentLength == 0 {
		s.MinContentLength = 200
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with url %q has no name", s.URL)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.URL == "" {
			return fmt.Errorf("source %q has no url", s.Name)
		}
		if s.Kind != KindFeed && s.Kind != KindListing {
			return fmt.Errorf("source %q has unknown kind %q", s.Name, s.Kind)
		}
		if s.Kind == KindListing && s.ItemSelector == "" {
			return fmt.Errorf("listing source %q needs an item_selector", s.Name)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
