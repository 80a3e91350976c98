package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarmatch/pipeline/internal/config"
	"github.com/scholarmatch/pipeline/internal/core/embeddings"
	"github.com/scholarmatch/pipeline/internal/harvester"
	"github.com/scholarmatch/pipeline/internal/ingest"
	"github.com/scholarmatch/pipeline/internal/observability"
	"github.com/scholarmatch/pipeline/internal/renderer"
	"github.com/scholarmatch/pipeline/internal/scholar"
	"github.com/scholarmatch/pipeline/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	setLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	db, err := storage.New(ctx, cfg.DatabaseURL, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Tasks run on their own context so an interrupted dispatcher can still
	// drain in-flight work; the drain timeout is the hard cutoff.
	taskCtx, taskCancel := context.WithCancel(context.Background())
	defer taskCancel()

	queue := ingest.NewQueue(cfg.WorkerCount, &logger)
	queue.Start(taskCtx)

	tasks := ingest.NewTasks(
		db,
		buildHarvester(cfg, &logger),
		scholar.NewRetrier(scholar.New(scholar.Config{
			BaseURL: cfg.ScholarBaseURL,
			APIKey:  cfg.ScholarAPIKey,
		}, &logger)),
		buildEmbedder(cfg, &logger),
		queue,
		ingest.TasksConfig{
			EnqueuePacing: cfg.EnqueuePacing,
			DeepEmail:     cfg.HarvestDeepEmail,
		},
		&logger,
	)

	dispatcher := ingest.NewDispatcher(db, tasks, queue, cfg.DispatchInterval, &logger)

	healthServer := observability.NewServer(db, cfg.HealthPort, &logger)

	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Health server error")
		}
	}()

	logger.Info().Msg("Starting ingest worker")

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Info().Err(err).Msg("Dispatcher exited")
	}

	drainQueue(queue, taskCancel, cfg.DrainTimeout, &logger)

	logger.Info().Msg("Ingest worker stopped")
}

// buildHarvester wires the HTTP session and, when enabled, the headless
// renderer into a harvester.
func buildHarvester(cfg *config.Config, logger *zerolog.Logger) *harvester.Harvester {
	session := harvester.NewSession(harvester.SessionConfig{
		UserAgent:    cfg.HarvestUserAgent,
		RequestDelay: cfg.HarvestRequestDelay,
		Timeout:      cfg.HarvestTimeout,
	})

	var rend harvester.Renderer

	if cfg.RenderEnabled {
		rend = renderer.New(renderer.Config{
			UserAgent:  cfg.HarvestUserAgent,
			NavTimeout: cfg.RenderNavTimeout,
		}, logger)
	} else {
		logger.Info().Msg("Browser rendering disabled")
	}

	return harvester.New(session, rend, harvester.Config{
		MaxProfiles: cfg.HarvestMaxProfiles,
	}, logger)
}

func buildEmbedder(cfg *config.Config, logger *zerolog.Logger) embeddings.Client {
	embedder, err := embeddings.New(embeddings.Config{
		Provider:  cfg.EmbeddingsProvider,
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.EmbeddingsModel,
		Dimension: cfg.EmbeddingsDimension,
		RPS:       cfg.EmbeddingsRPS,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create embeddings client")
	}

	return embedder
}

// drainQueue lets in-flight tasks finish, then cancels whatever is left once
// the timeout expires.
func drainQueue(queue *ingest.Queue, taskCancel context.CancelFunc, timeout time.Duration, logger *zerolog.Logger) {
	queue.Close()

	done := make(chan struct{})

	go func() {
		queue.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("Task queue drained")
	case <-time.After(timeout):
		logger.Warn().Dur("timeout", timeout).Msg("Drain timeout expired, cancelling remaining tasks")
		taskCancel()
		<-done
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// setLogLevel sets the global log level based on the configuration.
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
