// Package ingest orchestrates faculty ingestion: a dispatcher claims queued
// jobs from the database, a roster task harvests the directory and fans out
// per-professor work, and a bounded worker pool drains the task queue.
//
// The database holds all job state. Workers share nothing in memory, so any
// number of worker processes can poll the same jobs table; the claim is a
// single guarded UPDATE and loses at most a race, never a job.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the inbound surface of the pipeline: enqueue a roster ingestion
// and inspect its progress.
type Service struct {
	repo   Repository
	logger *zerolog.Logger
}

func NewService(repo Repository, logger *zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Status is the externally visible view of one job.
type Status struct {
	ID               uuid.UUID
	University       string
	Department       string
	Status           string
	TotalFaculty     int
	ProcessedFaculty int
	Progress         float64
}

// EnqueueIngest records a queued ingestion job for a department directory
// and returns its ID. The job starts running when a dispatcher claims it.
func (s *Service) EnqueueIngest(ctx context.Context, university, departmentURL, department string) (uuid.UUID, error) {
	if university == "" || departmentURL == "" {
		return uuid.Nil, errMissingArguments
	}

	job, err := s.repo.CreateJob(ctx, university, departmentURL, department)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info().
		Str(logKeyJobID, job.ID.String()).
		Str(logKeyUniversity, university).
		Str(logKeyURL, departmentURL).
		Msg("Ingestion job queued")

	return job.ID, nil
}

// JobStatus reports progress for one job.
func (s *Service) JobStatus(ctx context.Context, id uuid.UUID) (Status, error) {
	job, err := s.repo.JobByID(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("load job: %w", err)
	}

	return Status{
		ID:               job.ID,
		University:       job.University,
		Department:       job.Department,
		Status:           job.Status,
		TotalFaculty:     job.TotalFaculty,
		ProcessedFaculty: job.ProcessedFaculty,
		Progress:         job.Progress(),
	}, nil
}
