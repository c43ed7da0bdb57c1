package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsragnarok/internal/archive"
	"newsragnarok/internal/config"
	"newsragnarok/internal/crawl"
	"newsragnarok/internal/dedup"
	"newsragnarok/internal/discover"
	"newsragnarok/internal/extract"
	"newsragnarok/internal/llm"
	"newsragnarok/internal/persist"
	"newsragnarok/internal/retention"
	"newsragnarok/internal/seenstore"
	"newsragnarok/internal/server"
	"newsragnarok/internal/vector"

	memmon "newsragnarok/internal/memory"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsragnarok",
	Short:   "Rolling-window news ingestion for vector search",
	Long:    "Newsragnarok discovers articles from feeds and listing pages, extracts their content, and keeps a freshness-bounded vector index plus a durable archive.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(clearIndexCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsragnarok", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsragnarok/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, the vector index, and credentials.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and collaborator status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client := vector.NewClient(cfg.Vector)
		fmt.Printf("Vector index: %s / %s\n", cfg.Vector.URL, cfg.Vector.Collection)
		if err := client.HealthCheck(ctx); err != nil {
			fmt.Printf("  Unreachable: %v\n", err)
		} else if count, err := client.Count(ctx); err != nil {
			fmt.Printf("  Count failed: %v\n", err)
		} else {
			fmt.Printf("  Points: %d\n", count)
		}

		seen, err := openSeenStore()
		if err != nil {
			fmt.Printf("\nSeen store: unavailable (%v)\n", err)
			return nil
		}
		defer seen.Close()

		count, err := seen.Count()
		if err != nil {
			return fmt.Errorf("counting admissions: %w", err)
		}
		fmt.Printf("\nSeen store: %s\n", seen.Path())
		fmt.Printf("  Admissions: %d\n", count)

		recent, err := seen.Recent(10)
		if err != nil {
			return fmt.Errorf("listing admissions: %w", err)
		}
		if len(recent) > 0 {
			fmt.Println("  Most recent:")
			for _, a := range recent {
				fmt.Printf("    %s  %s\n", a.AdmittedAt.Format("2006-01-02 15:04"), a.URL)
			}
		}
		return nil
	},
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one crawl cycle over all sources, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		p, cleanup, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := p.runner.Cycle(ctx)
		if err != nil {
			return fmt.Errorf("crawl cycle: %w", err)
		}

		fmt.Println("\nCrawl complete:")
		fmt.Printf("  Discovered: %d\n", stats.Discovered)
		fmt.Printf("  Processed:  %d\n", stats.Processed)
		fmt.Printf("  Skipped:    %d\n", stats.Skipped)
		fmt.Printf("  Failed:     %d\n", stats.Failed)

		if len(stats.Sources) > 0 {
			fmt.Println("\nBy source:")
			names := make([]string, 0, len(stats.Sources))
			for name := range stats.Sources {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				s := stats.Sources[name]
				fmt.Printf("  %s: %d processed, %d skipped, %d failed\n", name, s.Processed, s.Skipped, s.Failed)
			}
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator: periodic crawls, retention sweeps, and the status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		p, cleanup, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := server.New(cfg.Server.Port, p.runner, p.sweeper, vector.NewClient(cfg.Vector))
		srv.SetArchiveStatus(cfg.Archive.Enabled, p.archiveErr)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()

		loop := crawl.NewLoop(p.runner, p.sweeper)
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

var (
	cleanupHours int
	assumeYes    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete aged articles from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		hours := cleanupHours
		if hours <= 0 {
			hours = cfg.Crawl.RetentionHours
		}

		sweeper := retention.NewSweeper(func() retention.Deleter {
			return vector.NewClient(cfg.Vector)
		})
		result, err := sweeper.Sweep(ctx, hours)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d articles older than %dh in %s.\n",
			result.DeletedCount, hours, result.Duration.Round(time.Millisecond))
		return nil
	},
}

var clearIndexCmd = &cobra.Command{
	Use:   "clear-index",
	Short: "Delete every point in the vector collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if !assumeYes && !confirm(fmt.Sprintf("Delete ALL points in collection %q?", cfg.Vector.Collection)) {
			fmt.Println("Aborted.")
			return nil
		}
		client := vector.NewClient(cfg.Vector)
		if err := client.ClearAll(ctx); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupHours, "hours", 0, "Retention window override in hours")
	clearIndexCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
}

// pipeline bundles the long-lived collaborators a crawl needs.
type pipeline struct {
	runner  *crawl.Runner
	sweeper *retention.Sweeper

	// archiveErr is set when a configured archive failed to come up and
	// the pipeline is running without it.
	archiveErr error
}

// buildPipeline wires the full processing chain from configuration. The
// returned cleanup closes everything the pipeline opened.
func buildPipeline(ctx context.Context) (*pipeline, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	opts := []extract.Option{}
	if anyRenderFirst(cfg.Sources) {
		renderer := extract.NewRenderer(ctx)
		closers = append(closers, renderer.Close)
		opts = append(opts, extract.WithRenderer(renderer))
	}
	if cleaner := llm.NewCleaner(cfg.Cleaner); cleaner != nil {
		opts = append(opts, extract.WithCleaner(cleaner))
	}

	// A broken archive must not take the index down with it: log, record
	// the failure for /status, and run with the archive sink disabled.
	var archiveErr error
	archiver, err := archive.New(cfg.Archive)
	if err != nil {
		log.Printf("Archive unavailable, continuing without it: %v", err)
		archiveErr = err
		archiver = nil
	} else if archiver.Enabled() {
		if err := archiver.EnsureBucket(ctx); err != nil {
			log.Printf("Archive bucket unavailable, continuing without it: %v", err)
			archiveErr = err
			archiver = nil
		}
	}

	indexClient := vector.NewClient(cfg.Vector)
	if err := indexClient.EnsureCollection(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("preparing vector collection: %w", err)
	}

	embedder := llm.CreateEmbedder(cfg.Embedding.Provider, cfg.Embedding.Model,
		cfg.Embedding.OllamaURL, cfg.Embedding.APIKeyEnv)

	var archiveSink persist.ArchiveSink
	if archiver != nil && archiver.Enabled() {
		archiveSink = archiver
	}
	coordinator := persist.New(archiveSink, embedder, func() persist.IndexSink {
		return vector.NewClient(cfg.Vector)
	})

	filter, err := dedup.New(cfg.Crawl.DedupCapacity)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating duplicate filter: %w", err)
	}

	seen, err := openSeenStore()
	if err != nil {
		log.Printf("Seen store unavailable, continuing without it: %v", err)
		seen = nil
	} else {
		closers = append(closers, func() { seen.Close() })
		warmFilter(filter, seen)
	}

	runner := crawl.New(*cfg,
		discover.New(httpClient),
		extract.New(httpClient, opts...),
		coordinator,
		filter,
		seen,
		memmon.New(cfg.Crawl.MemoryLimitMB),
	)

	sweeper := retention.NewSweeper(func() retention.Deleter {
		return vector.NewClient(cfg.Vector)
	})

	return &pipeline{runner: runner, sweeper: sweeper, archiveErr: archiveErr}, cleanup, nil
}

// warmFilter reloads recent admissions into the in-memory filter so a
// restart does not re-ingest everything still in the index.
func warmFilter(filter *dedup.Filter, seen *seenstore.Store) {
	admissions, err := seen.Recent(cfg.Crawl.DedupCapacity)
	if err != nil {
		log.Printf("Warming duplicate filter: %v", err)
		return
	}
	// Recent returns newest first; admit oldest first so LRU eviction
	// drops the oldest entries.
	for i := len(admissions) - 1; i >= 0; i-- {
		filter.Admit(admissions[i].URL, admissions[i].Title)
	}
	if len(admissions) > 0 {
		log.Printf("Duplicate filter warmed with %d admissions", len(admissions))
	}
}

func openSeenStore() (*seenstore.Store, error) {
	dir := cfg.GetDataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return seenstore.Open(filepath.Join(dir, "seen.db"))
}

func anyRenderFirst(sources []config.Source) bool {
	for _, src := range sources {
		if src.RenderFirst {
			return true
		}
	}
	return false
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
