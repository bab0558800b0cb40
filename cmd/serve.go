package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openkb/docbase/db"
	"github.com/openkb/docbase/internal/api"
	"github.com/openkb/docbase/internal/chunk"
	"github.com/openkb/docbase/internal/config"
	"github.com/openkb/docbase/internal/document"
	"github.com/openkb/docbase/internal/embed"
	"github.com/openkb/docbase/internal/extract"
	"github.com/openkb/docbase/internal/filestore"
	"github.com/openkb/docbase/internal/ingest"
	"github.com/openkb/docbase/internal/log"
	"github.com/openkb/docbase/internal/observability"
	"github.com/openkb/docbase/internal/search"
	"github.com/openkb/docbase/internal/store"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	level := slog.LevelInfo
	if serveDebug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: true})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting docbase", "version", AppVersion)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	files, err := filestore.New(cfg.UploadDir, logger)
	if err != nil {
		return fmt.Errorf("preparing upload dir: %w", err)
	}

	embedder := embed.NewGoogleAI(ctx, cfg.EmbedderModel, cfg.EmbedderDimension,
		cfg.EmbedRateLimit, logger)

	registry := document.NewRegistry(pool, files, logger)
	chunks := store.NewChunkStore(pool, logger)
	extractor := extract.NewEngine(logger)
	runner := ingest.NewRunner(registry, chunks, extractor, embedder,
		chunk.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		cfg.EmbedWorkers, logger)
	searcher := search.NewSearcher(embedder, chunks, logger)

	server := api.NewServer(api.ServerConfig{
		Pool:     pool,
		Registry: registry,
		Files:    files,
		Runner:   runner,
		Searcher: searcher,
		Logger:   logger,
	})

	return server.Run(ctx, cfg.Addr)
}
