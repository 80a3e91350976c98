package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/scholarmatch/pipeline/internal/core/domain"
	"github.com/scholarmatch/pipeline/internal/harvester"
	"github.com/scholarmatch/pipeline/internal/scholar"
)

// Repository is the slice of the storage layer the orchestrator consumes.
// *storage.DB satisfies it; tests swap in an in-memory fake.
type Repository interface {
	CreateJob(ctx context.Context, university, departmentURL, department string) (domain.IngestionJob, error)
	JobByID(ctx context.Context, id uuid.UUID) (domain.IngestionJob, error)
	ClaimQueuedJob(ctx context.Context) (domain.IngestionJob, bool, error)
	SetJobTotal(ctx context.Context, id uuid.UUID, total int) error
	MarkJobFailed(ctx context.Context, id uuid.UUID) error
	IncrementJobProgress(ctx context.Context, id uuid.UUID) (processed, total int, err error)
	CompleteJob(ctx context.Context, id uuid.UUID) (bool, error)

	GetOrCreateProfessor(ctx context.Context, in domain.Professor) (domain.Professor, error)
	ProfessorByID(ctx context.Context, id uuid.UUID) (domain.Professor, error)
	GetOrCreateAuthor(ctx context.Context, professorID uuid.UUID, name, externalID string) (domain.Author, error)
	GetOrCreatePaper(ctx context.Context, in domain.Paper) (domain.Paper, error)
	LinkAuthorship(ctx context.Context, paperID, authorID uuid.UUID) error
	PaperByID(ctx context.Context, id uuid.UUID) (domain.Paper, error)
	HasEmbedding(ctx context.Context, paperID uuid.UUID) (bool, error)
	SaveEmbedding(ctx context.Context, paperID uuid.UUID, vector []float32) error
}

// Harvester discovers faculty profiles on a directory page.
type Harvester interface {
	Harvest(ctx context.Context, directoryURL string) ([]harvester.Profile, error)
	EmailFromProfile(ctx context.Context, profileURL string) (string, error)
}

// PapersSource finds a professor's publications.
type PapersSource interface {
	PapersFor(ctx context.Context, name, affiliation string) ([]scholar.Paper, error)
}
