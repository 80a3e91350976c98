package domain

import (
	"time"

	"github.com/google/uuid"
)

// Professor is one faculty member discovered on a department directory.
// Empty string fields mean "unknown"; the storage layer maps them to NULL.
type Professor struct {
	ID         uuid.UUID
	Name       string
	University string
	Department string
	Email      string
	ProfileURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Author is the bibliographic identity of a professor. One per professor;
// ExternalAuthorID is filled once the scholarly API resolves the author.
type Author struct {
	ID               uuid.UUID
	ProfessorID      uuid.UUID
	Name             string
	ExternalAuthorID string
}

// Paper is a single publication. Identity is ExternalPaperID when present,
// otherwise the (Title, Year) pair. Year 0 means unknown.
type Paper struct {
	ID              uuid.UUID
	ExternalPaperID string
	Title           string
	Abstract        string
	Year            int
	Citations       int
	PaperURL        string
	CreatedAt       time.Time
}

// IngestionJob tracks one roster ingestion from enqueue to terminal state.
type IngestionJob struct {
	ID               uuid.UUID
	University       string
	DepartmentURL    string
	Department       string
	TotalFaculty     int
	ProcessedFaculty int
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Job status constants.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Terminal reports whether the job has reached a terminal status.
func (j IngestionJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Progress returns the completed fraction in [0, 1]; 0 when the total is unset.
func (j IngestionJob) Progress() float64 {
	if j.TotalFaculty == 0 {
		return 0
	}

	return float64(j.ProcessedFaculty) / float64(j.TotalFaculty)
}
