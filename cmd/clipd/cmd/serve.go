package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/database"
	"github.com/jmylchreest/clipd/internal/downloader"
	"github.com/jmylchreest/clipd/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/clipd/internal/http"
	"github.com/jmylchreest/clipd/internal/http/handlers"
	"github.com/jmylchreest/clipd/internal/media"
	"github.com/jmylchreest/clipd/internal/observability"
	"github.com/jmylchreest/clipd/internal/repository"
	"github.com/jmylchreest/clipd/internal/service"
	"github.com/jmylchreest/clipd/internal/startup"
	"github.com/jmylchreest/clipd/internal/storage"
	"github.com/jmylchreest/clipd/internal/util"
	"github.com/jmylchreest/clipd/internal/version"
	"github.com/jmylchreest/clipd/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clipd server",
	Long: `Start the clipd HTTP server and worker pool.

The server provides:
- REST API for edits, workflows, executions, and files
- SSE progress stream at /edits/status
- Prometheus metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().Int("workers", 0, "worker count (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	logger := slog.Default()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	repos := repository.New(db.DB)
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if removed, err := startup.CleanupOrphanedScratchDirs(logger, cfg.Storage.WorkDir, startup.DefaultCleanupAge); err != nil {
		logger.Warn("scratch directory cleanup failed", slog.Any("error", err))
	} else if removed > 0 {
		logger.Info("cleaned orphaned scratch directories", slog.Int("removed", removed))
	}
	if recovered, err := startup.RecoverInterruptedJobs(ctx, logger, repos); err != nil {
		return fmt.Errorf("recovering interrupted jobs: %w", err)
	} else if recovered > 0 {
		logger.Info("recovered interrupted jobs", slog.Int("recovered", recovered))
	}

	store, err := storage.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing object store: %w", err)
	}
	if err := store.EnsureBucket(ctx, cfg.Storage.Bucket); err != nil {
		return fmt.Errorf("ensuring bucket %q: %w", cfg.Storage.Bucket, err)
	}
	if _, err := repos.Files.EnsureBucket(ctx, cfg.Storage.Bucket); err != nil {
		return fmt.Errorf("registering bucket %q: %w", cfg.Storage.Bucket, err)
	}

	for _, binary := range []string{cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.Downloader.BinaryPath} {
		if _, err := util.ResolveBinary(binary); err != nil {
			logger.Warn("engine binary unavailable", slog.Any("error", err))
		}
	}

	prober := ffmpeg.NewProber(cfg.FFmpeg.ProbePath).WithTimeout(cfg.FFmpeg.ProbeTimeout)
	runner := ffmpeg.NewRunner(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ChunkSize, prober, logger)
	transmuxer := media.NewTransmuxer(cfg.FFmpeg.BinaryPath, cfg.Storage.WorkDir, logger).
		WithTimeout(cfg.FFmpeg.TransmuxTimeout)
	ytdlp := downloader.New(cfg.Downloader, cfg.Storage.Bucket, cfg.Storage.WorkDir, store, repos, logger)

	pool := worker.NewPool(cfg.Worker, cfg.Storage.Bucket, cfg.Storage.WorkDir, worker.Deps{
		Repos:      repos,
		Runner:     runner,
		Prober:     prober,
		Transmuxer: transmuxer,
		Store:      store,
		Downloader: ytdlp,
		Metrics:    metrics,
		Logger:     logger,
	})

	editService := service.NewEditService(repos).
		WithLogger(logger).
		WithCanceler(pool).
		WithMetrics(metrics)
	workflowService := service.NewWorkflowService(repos).WithLogger(logger)
	progressService := service.NewProgressService(repos, cfg.Worker.ProgressInterval).
		WithLogger(logger)

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewHealthHandler(db, version.Version).Register(server.API())
	handlers.NewEditHandler(editService).Register(server.API())
	handlers.NewWorkflowHandler(workflowService).Register(server.API())
	handlers.NewFileHandler(repos, store, cfg.Storage.Bucket).
		WithLogger(logger).Register(server.API())

	progressHandler := handlers.NewProgressHandler(progressService).WithLogger(logger)
	progressHandler.RegisterSSE(server.Router())

	server.Router().Handle("/metrics", metrics.Handler())

	pool.Start(ctx)
	defer pool.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting clipd server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.Int("workers", cfg.Worker.Count),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// applyServeFlags overrides config values with explicitly set flags.
// Only visited (changed) flags override, so config and env values
// survive unless the operator asked otherwise.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		case "port":
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		case "workers":
			cfg.Worker.Count, _ = cmd.Flags().GetInt("workers")
		}
	})
}
