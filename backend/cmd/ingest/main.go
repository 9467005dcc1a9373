package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"animebot/backend/internal/adapter"
	"animebot/backend/internal/cache"
	"animebot/backend/internal/catalog"
	"animebot/backend/internal/checkpoint"
	"animebot/backend/internal/graph"
	"animebot/backend/internal/ingest"
	"animebot/backend/internal/status"
	"animebot/backend/pkg/config"
	apperrors "animebot/backend/pkg/errors"
	"animebot/backend/pkg/logger"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Get().Error("Ingest command failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ingest",
		Usage: "Load the anime catalog into the recommendation graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		After: func(c *cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Ingest the catalog, resuming from the last checkpoint",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Path to the catalog CSV (overrides INGEST_SOURCE)",
					},
					&cli.StringFlag{
						Name:  "checkpoint",
						Usage: "Path to the checkpoint file (overrides INGEST_CHECKPOINT)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent embedding workers (overrides INGEST_WORKERS)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Maximum operations per transaction (overrides INGEST_BATCH_SIZE)",
					},
					&cli.StringFlag{
						Name:  "status-addr",
						Usage: "Serve /health and /progress on this address (overrides STATUS_ADDR)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Embed and build the graph in memory without touching Neo4j or the checkpoint",
					},
					&cli.BoolFlag{
						Name:  "skip-schema",
						Usage: "Do not ensure constraints before ingesting",
					},
				},
			},
			{
				Name:   "schema",
				Usage:  "Create uniqueness constraints and indexes",
				Action: schemaCommand,
			},
			{
				Name:   "reset",
				Usage:  "Delete the checkpoint so the next run starts from the first row",
				Action: resetCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "graph",
						Usage: "Also delete every catalog vertex from Neo4j",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation prompt",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print vertex and edge counts and the saved checkpoint",
				Action: statsCommand,
			},
		},
	}
}

// setup loads configuration and initializes the logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

// applyRunFlags overrides configuration with explicitly set flags.
func applyRunFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("source") {
		cfg.SourcePath = c.String("source")
	}
	if c.IsSet("checkpoint") {
		cfg.CheckpointPath = c.String("checkpoint")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("status-addr") {
		cfg.StatusAddr = c.String("status-addr")
	}
	return cfg.Validate()
}

func openStore(ctx context.Context, cfg *config.Config) (*graph.Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		func(c *neo4jconfig.Config) {
			c.MaxConnectionPoolSize = cfg.Neo4jMaxPoolSize
		},
	)
	if err != nil {
		return nil, apperrors.NewStoreConnectionFailed(cfg.Neo4jURI, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(context.Background())
		return nil, apperrors.NewStoreConnectionFailed(cfg.Neo4jURI, err)
	}

	return graph.NewNeo4jStore(driver, cfg.Neo4jDatabase), nil
}

// newEmbedder builds the embedding adapter, with the Redis cache when
// REDIS_URL is set and reachable. The returned func releases the cache.
func newEmbedder(ctx context.Context, cfg *config.Config, log *zap.Logger) (*adapter.EmbeddingAdapter, func()) {
	opts := adapter.EmbeddingOptions{
		MaxRetries: cfg.EmbeddingMaxRetries,
		BaseDelay:  cfg.EmbeddingBackoff,
		Timeout:    cfg.EmbeddingTimeout,
		Dimensions: cfg.EmbeddingDimensions,
		CacheKey:   cache.Key,
	}

	release := func() {}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.EmbedCacheTTL)
		if err != nil {
			log.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
		} else {
			opts.Cache = rc
			release = func() { _ = rc.Close() }
		}
	}

	return adapter.NewEmbeddingAdapter(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, opts), release
}

// notifyOnce returns a context cancelled by the first SIGINT or SIGTERM.
// Signal handling is released as soon as that happens.
func notifyOnce(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func runCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if err := applyRunFlags(c, cfg); err != nil {
		return err
	}
	log := logger.Get()
	dryRun := c.Bool("dry-run")

	// The first signal stops reading; in-flight rows still commit. A second
	// one gets the default behaviour and kills the process.
	ctx, stop := notifyOnce(c.Context)
	defer stop()

	reader, err := catalog.Open(cfg.SourcePath, catalog.Options{
		GenreDelimiter:   cfg.GenreDelimiter,
		MaxMalformedRows: cfg.MaxMalformedRows,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	fileCheckpoints := checkpoint.NewFileStore(cfg.CheckpointPath)

	var (
		store       graph.Store
		memory      *graph.MemoryStore
		checkpoints ingest.CheckpointStore
	)
	if dryRun {
		start, err := fileCheckpoints.Load()
		if err != nil {
			return err
		}
		memory = graph.NewMemoryStore()
		store = memory
		checkpoints = checkpoint.NewMemoryStore(start)
		log.Info("Dry run: writes go to memory", zap.Int64("checkpoint", start))
	} else {
		neo, err := openStore(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return err
		}
		defer neo.Close(context.Background())

		if !c.Bool("skip-schema") {
			if err := neo.EnsureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		if _, err := fileCheckpoints.Init(); err != nil {
			return err
		}
		store = neo
		checkpoints = fileCheckpoints
	}

	embedder, releaseCache := newEmbedder(ctx, cfg, log)
	defer releaseCache()

	progress := &ingest.Progress{}
	if cfg.StatusAddr != "" {
		srv := status.New(cfg.StatusAddr, progress, cfg.IsProduction())
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Status server forced to shutdown", zap.Error(err))
			}
		}()
	}

	pipeline, err := ingest.NewPipeline(
		reader,
		store,
		embedder,
		graph.NewWriter(store, cfg.StoreMaxRetries, cfg.StoreBackoff),
		checkpoints,
		ingest.WithWorkers(cfg.Workers),
		ingest.WithBatchSize(cfg.BatchSize),
		ingest.WithProgressInterval(cfg.ProgressInterval),
		ingest.WithProgress(progress),
	)
	if err != nil {
		return err
	}

	stats, err := pipeline.Run(ctx)
	printSummary(c, stats)
	if err != nil {
		return err
	}

	if dryRun {
		if err := printCounts(c, memory); err != nil {
			return err
		}
	}
	return nil
}

func schemaCommand(c *cli.Context) error {
	cfg := configFrom(c)
	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	if err := store.EnsureSchema(c.Context, cfg.EmbeddingDimensions); err != nil {
		return err
	}
	logger.Get().Info("Schema ensured", zap.String("version", graph.SchemaVersion))
	return nil
}

func resetCommand(c *cli.Context) error {
	cfg := configFrom(c)
	log := logger.Get()
	wipeGraph := c.Bool("graph")

	if !c.Bool("yes") {
		prompt := fmt.Sprintf("Delete checkpoint %s", cfg.CheckpointPath)
		if wipeGraph {
			prompt += " and ALL catalog vertices in Neo4j"
		}
		if !confirm(c, prompt) {
			log.Info("Aborted.")
			return nil
		}
	}

	if wipeGraph {
		store, err := openStore(c.Context, cfg)
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		if _, err := store.DeleteCatalog(c.Context); err != nil {
			return err
		}
	}

	if err := checkpoint.NewFileStore(cfg.CheckpointPath).Reset(); err != nil {
		return err
	}
	log.Info("Checkpoint reset", zap.String("path", cfg.CheckpointPath))
	return nil
}

func statsCommand(c *cli.Context) error {
	cfg := configFrom(c)

	index, err := checkpoint.NewFileStore(cfg.CheckpointPath).Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "checkpoint: %d\n", index)

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	return printCounts(c, store)
}

func confirm(c *cli.Context, prompt string) bool {
	fmt.Fprintf(c.App.Writer, "%s? (yes/no): ", prompt)
	reader := c.App.Reader
	if reader == nil {
		reader = os.Stdin
	}
	line, _ := bufio.NewReader(reader).ReadString('\n')
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "yes" || response == "y"
}

func printSummary(c *cli.Context, stats ingest.Stats) {
	fmt.Fprintf(c.App.Writer,
		"committed=%d skipped=%d failed=%d malformed=%d duplicates=%d batches=%d checkpoint=%d elapsed=%s interrupted=%t\n",
		stats.Committed, stats.Skipped, stats.Failed, stats.Malformed, stats.Duplicates,
		stats.Batches, stats.Checkpoint, stats.Elapsed.Round(time.Millisecond), stats.Interrupted,
	)
}

func printCounts(c *cli.Context, counter graph.Counter) error {
	vertices, err := counter.CountVertices(c.Context)
	if err != nil {
		return err
	}
	edges, err := counter.CountEdges(c.Context)
	if err != nil {
		return err
	}

	for _, label := range graph.Labels {
		fmt.Fprintf(c.App.Writer, "%-8s %d\n", label, vertices[label])
	}
	for _, edge := range graph.EdgeTypes {
		fmt.Fprintf(c.App.Writer, "%-13s %d\n", edge, edges[edge])
	}
	return nil
}
