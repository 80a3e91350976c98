package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher polls the jobs table and hands claimed jobs to the task queue.
type Dispatcher struct {
	repo     Repository
	tasks    *Tasks
	queue    *Queue
	interval time.Duration
	logger   *zerolog.Logger
}

func NewDispatcher(repo Repository, tasks *Tasks, queue *Queue, interval time.Duration, logger *zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = defaultDispatchInterval
	}

	return &Dispatcher{
		repo:     repo,
		tasks:    tasks,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Dur(logKeyInterval, d.interval).Msg("Dispatcher starting")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Dispatcher stopping")
			return fmt.Errorf("%w: %w", errDispatcherStopped, ctx.Err())
		case <-ticker.C:
			d.dispatchPending(ctx)
		}
	}
}

// dispatchPending claims queued jobs until none are left and enqueues a
// roster task for each. Claiming is atomic in SQL, so a job is handed to
// exactly one worker process even with several dispatchers polling.
func (d *Dispatcher) dispatchPending(ctx context.Context) {
	for {
		job, ok, err := d.repo.ClaimQueuedJob(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("Job claim failed")
			return
		}

		if !ok {
			return
		}

		d.logger.Info().
			Str(logKeyJobID, job.ID.String()).
			Str(logKeyUniversity, job.University).
			Msg("Job claimed")

		claimed := job
		if !d.queue.Enqueue(taskIngestRoster, func(taskCtx context.Context) {
			d.tasks.RunRoster(taskCtx, claimed)
		}) {
			return
		}
	}
}
