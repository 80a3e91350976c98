package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/scholarmatch/pipeline/internal/core/domain"
	corerrors "github.com/scholarmatch/pipeline/internal/core/errors"
)

const jobColumns = "id, university, department_url, department, total_faculty, processed_faculty, status, created_at, updated_at"

const (
	selectJobByID = "SELECT " + jobColumns + " FROM ingestion_jobs WHERE id = $1"

	insertJob = `INSERT INTO ingestion_jobs (university, department_url, department, status)
		VALUES ($1, $2, $3, 'queued')
		RETURNING ` + jobColumns

	// FOR UPDATE SKIP LOCKED lets concurrent dispatchers claim distinct jobs
	// without blocking on each other's row locks.
	claimQueuedJob = `UPDATE ingestion_jobs SET status = 'processing', updated_at = now()
		WHERE id = (
			SELECT id FROM ingestion_jobs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	setJobTotal = `UPDATE ingestion_jobs SET total_faculty = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'`

	markJobFailed = `UPDATE ingestion_jobs SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'processing'`

	// The single SQL-level arithmetic update required for progress; the
	// RETURNING clause doubles as the fresh read that decides completion.
	incrementJobProgress = `UPDATE ingestion_jobs
		SET processed_faculty = processed_faculty + 1, updated_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING processed_faculty, total_faculty`

	completeJob = `UPDATE ingestion_jobs SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'processing'`
)

// CreateJob inserts a queued ingestion job and returns it.
func (db *DB) CreateJob(ctx context.Context, university, departmentURL, department string) (domain.IngestionJob, error) {
	row := db.Pool.QueryRow(ctx, insertJob, toText(university), toText(departmentURL), toText(department))

	job, err := scanJob(row)
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("insert job: %w", err)
	}

	return job, nil
}

// JobByID returns the job with the given ID.
func (db *DB) JobByID(ctx context.Context, id uuid.UUID) (domain.IngestionJob, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx, selectJobByID, toUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IngestionJob{}, fmt.Errorf("%w: job %s", corerrors.ErrNotFound, id)
		}

		return domain.IngestionJob{}, fmt.Errorf("select job: %w", err)
	}

	return job, nil
}

// ClaimQueuedJob atomically moves the oldest queued job to processing and
// returns it. ok is false when no queued job exists.
func (db *DB) ClaimQueuedJob(ctx context.Context) (domain.IngestionJob, bool, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx, claimQueuedJob))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IngestionJob{}, false, nil
		}

		return domain.IngestionJob{}, false, fmt.Errorf("claim queued job: %w", err)
	}

	return job, true, nil
}

// SetJobTotal records the roster size once the harvester has run.
func (db *DB) SetJobTotal(ctx context.Context, id uuid.UUID, total int) error {
	if _, err := db.Pool.Exec(ctx, setJobTotal, toUUID(id), toInt4(total)); err != nil {
		return fmt.Errorf("set job total: %w", err)
	}

	return nil
}

// MarkJobFailed moves a processing job to the terminal failed state.
func (db *DB) MarkJobFailed(ctx context.Context, id uuid.UUID) error {
	if _, err := db.Pool.Exec(ctx, markJobFailed, toUUID(id)); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}

	return nil
}

// IncrementJobProgress adds one to processed_faculty and returns the fresh
// counters. Terminal jobs are never touched; ErrNotFound signals that the
// job is missing or no longer processing.
func (db *DB) IncrementJobProgress(ctx context.Context, id uuid.UUID) (processed, total int, err error) {
	var processedCol, totalCol pgtype.Int4

	err = db.Pool.QueryRow(ctx, incrementJobProgress, toUUID(id)).Scan(&processedCol, &totalCol)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("%w: processing job %s", corerrors.ErrNotFound, id)
		}

		return 0, 0, fmt.Errorf("increment job progress: %w", err)
	}

	return fromInt4(processedCol), fromInt4(totalCol), nil
}

// CompleteJob moves a processing job to completed. It reports whether this
// call performed the transition, so racing workers settle on one winner.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Pool.Exec(ctx, completeJob, toUUID(id))
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (domain.IngestionJob, error) {
	var (
		id        pgtype.UUID
		univ      pgtype.Text
		deptURL   pgtype.Text
		dept      pgtype.Text
		total     pgtype.Int4
		processed pgtype.Int4
		status    pgtype.Text
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &univ, &deptURL, &dept, &total, &processed, &status, &createdAt, &updatedAt); err != nil {
		return domain.IngestionJob{}, err
	}

	return domain.IngestionJob{
		ID:               fromUUID(id),
		University:       fromText(univ),
		DepartmentURL:    fromText(deptURL),
		Department:       fromText(dept),
		TotalFaculty:     fromInt4(total),
		ProcessedFaculty: fromInt4(processed),
		Status:           fromText(status),
		CreatedAt:        fromTimestamptz(createdAt),
		UpdatedAt:        fromTimestamptz(updatedAt),
	}, nil
}
