// Command enqueue inserts a faculty ingestion job and optionally watches it
// until it reaches a terminal state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarmatch/pipeline/internal/config"
	"github.com/scholarmatch/pipeline/internal/core/domain"
	"github.com/scholarmatch/pipeline/internal/ingest"
	"github.com/scholarmatch/pipeline/internal/storage"
)

const (
	watchInterval = time.Second
	errFmt        = "%v\n"
)

var errArgsRequired = errors.New("-university and -url are required")

type enqueueConfig struct {
	university string
	url        string
	department string
	watch      bool
}

func main() {
	cfg := parseFlags()

	if cfg.university == "" || cfg.url == "" {
		fmt.Fprintf(os.Stderr, errFmt, errArgsRequired)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, errFmt, err)
		os.Exit(1)
	}
}

func parseFlags() enqueueConfig {
	cfg := enqueueConfig{}

	flag.StringVar(&cfg.university, "university", "", "University name")
	flag.StringVar(&cfg.url, "url", "", "Faculty directory URL")
	flag.StringVar(&cfg.department, "department", "", "Department name (optional)")
	flag.BoolVar(&cfg.watch, "watch", false, "Poll job progress until it finishes")
	flag.Parse()

	return cfg
}

func run(cfg enqueueConfig) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()

	db, err := storage.New(ctx, appCfg.DatabaseURL, &logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	service := ingest.NewService(db, &logger)

	jobID, err := service.EnqueueIngest(ctx, cfg.university, cfg.url, cfg.department)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	fmt.Printf("queued job %s\n", jobID)

	if !cfg.watch {
		return nil
	}

	return watch(ctx, service, jobID)
}

// watch polls the job until it is completed or failed, printing progress.
func watch(ctx context.Context, service *ingest.Service, jobID uuid.UUID) error {
	for {
		time.Sleep(watchInterval)

		status, err := service.JobStatus(ctx, jobID)
		if err != nil {
			return fmt.Errorf("job status: %w", err)
		}

		fmt.Printf("%s: %d/%d (%.0f%%)\n", status.Status, status.ProcessedFaculty, status.TotalFaculty, status.Progress*100)

		switch status.Status {
		case domain.JobStatusCompleted:
			return nil
		case domain.JobStatusFailed:
			return fmt.Errorf("job %s failed", jobID)
		}
	}
}
