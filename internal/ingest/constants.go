package ingest

import (
	"errors"
	"time"
)

// Task kinds, used as queue labels and metric label values.
const (
	taskIngestRoster = "ingest_roster"
	taskFetchPapers  = "fetch_papers"
	taskEmbed        = "embed"
)

const (
	defaultWorkerCount      = 5
	defaultDispatchInterval = time.Second
	defaultEnqueuePacing    = 100 * time.Millisecond

	// Paper selection: the most cited papers plus everything recent enough
	// to have no citations yet.
	maxTopCited       = 30
	recentYearsWindow = 5
)

const (
	logKeyJobID       = "job_id"
	logKeyURL         = "url"
	logKeyProfessorID = "professor_id"
	logKeyPaperID     = "paper_id"
	logKeyUniversity  = "university"
	logKeyName        = "name"
	logKeyCount       = "count"
	logKeyProcessed   = "processed"
	logKeyTotal       = "total"
	logKeyTask        = "task"
	logKeyPanic       = "panic"
	logKeyInterval    = "interval"
)

var (
	errDispatcherStopped = errors.New("dispatcher stopped")
	errMissingArguments  = errors.New("university and department URL are required")
	errQueueClosed       = errors.New("task queue is closed")
)
