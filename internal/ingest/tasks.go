package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarmatch/pipeline/internal/core/domain"
	"github.com/scholarmatch/pipeline/internal/core/embeddings"
	corerrors "github.com/scholarmatch/pipeline/internal/core/errors"
	"github.com/scholarmatch/pipeline/internal/harvester"
	"github.com/scholarmatch/pipeline/internal/observability"
	"github.com/scholarmatch/pipeline/internal/scholar"
)

// TasksConfig tunes task behavior.
type TasksConfig struct {
	// EnqueuePacing spaces per-professor fan-out so a 200-name roster does
	// not dump 200 simultaneous API consumers on the pool.
	EnqueuePacing time.Duration

	// DeepEmail enables fetching a professor's profile page when the
	// directory card carried no address.
	DeepEmail bool
}

// Tasks holds the three task bodies of the pipeline: roster ingestion,
// per-professor paper fetch, and per-paper embedding.
//
// Progress accounting contract: each professor of a job increments the
// job's processed counter exactly once, in RunFetchPapers, after every
// handled outcome (papers stored, nothing found, lookup failed, professor
// gone). Only a panic skips the increment, because the queue's recovery sits
// outside the task body; such a job visibly never completes instead of lying
// about the lost professor.
type Tasks struct {
	repo      Repository
	harvester Harvester
	papers    PapersSource
	embedder  embeddings.Client
	queue     *Queue
	pacing    time.Duration
	deepEmail bool
	logger    *zerolog.Logger
}

func NewTasks(
	repo Repository,
	h Harvester,
	papers PapersSource,
	embedder embeddings.Client,
	queue *Queue,
	cfg TasksConfig,
	logger *zerolog.Logger,
) *Tasks {
	pacing := cfg.EnqueuePacing
	if pacing < 0 {
		pacing = defaultEnqueuePacing
	}

	return &Tasks{
		repo:      repo,
		harvester: h,
		papers:    papers,
		embedder:  embedder,
		queue:     queue,
		pacing:    pacing,
		deepEmail: cfg.DeepEmail,
		logger:    logger,
	}
}

// RunRoster harvests the directory for a claimed job, registers the roster
// size, and fans out one fetch task per professor. A professor that fails
// before fan-out still gets counted, otherwise the job could never complete.
func (t *Tasks) RunRoster(ctx context.Context, job domain.IngestionJob) {
	logger := t.logger.With().Str(logKeyJobID, job.ID.String()).Str(logKeyUniversity, job.University).Logger()

	profiles, err := t.harvester.Harvest(ctx, job.DepartmentURL)
	if err != nil {
		logger.Error().Err(err).Msg("Harvest failed")
		t.failJob(ctx, job.ID)

		return
	}

	if len(profiles) == 0 {
		logger.Warn().Str(logKeyURL, job.DepartmentURL).Msg("Directory yielded no faculty")
		t.failJob(ctx, job.ID)

		return
	}

	logger.Info().Int(logKeyCount, len(profiles)).Msg("Roster harvested")

	if err := t.repo.SetJobTotal(ctx, job.ID, len(profiles)); err != nil {
		logger.Error().Err(err).Msg("Roster total update failed")
		t.failJob(ctx, job.ID)

		return
	}

	for _, profile := range profiles {
		if ctx.Err() != nil {
			logger.Warn().Msg("Roster fan-out interrupted by shutdown")
			return
		}

		if err := t.ingestProfile(ctx, job, profile); err != nil {
			logger.Warn().Err(err).Str(logKeyName, profile.Name).Msg("Skipping professor")
			t.incrementProgress(ctx, job.ID)
		}

		if t.pacing > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(t.pacing):
			}
		}
	}
}

// ingestProfile upserts one professor and enqueues the paper fetch.
func (t *Tasks) ingestProfile(ctx context.Context, job domain.IngestionJob, profile harvester.Profile) error {
	email := profile.Email
	if email == "" && t.deepEmail {
		found, err := t.harvester.EmailFromProfile(ctx, profile.ProfileURL)
		if err != nil {
			t.logger.Debug().Err(err).Str(logKeyName, profile.Name).Msg("Deep email scrape failed")
		} else {
			email = found
		}
	}

	prof, err := t.repo.GetOrCreateProfessor(ctx, domain.Professor{
		Name:       profile.Name,
		University: job.University,
		Department: job.Department,
		Email:      email,
		ProfileURL: profile.ProfileURL,
	})
	if err != nil {
		return fmt.Errorf("upsert professor: %w", err)
	}

	professorID, jobID := prof.ID, job.ID
	if !t.queue.Enqueue(taskFetchPapers, func(taskCtx context.Context) {
		t.RunFetchPapers(taskCtx, professorID, jobID)
	}) {
		return errQueueClosed
	}

	return nil
}

// RunFetchPapers resolves one professor's publication record and then counts
// the professor as processed, exactly once, whatever the outcome was.
func (t *Tasks) RunFetchPapers(ctx context.Context, professorID, jobID uuid.UUID) {
	t.fetchAndStorePapers(ctx, professorID, jobID)
	t.incrementProgress(ctx, jobID)
}

func (t *Tasks) fetchAndStorePapers(ctx context.Context, professorID, jobID uuid.UUID) {
	logger := t.logger.With().Str(logKeyJobID, jobID.String()).Str(logKeyProfessorID, professorID.String()).Logger()

	prof, err := t.repo.ProfessorByID(ctx, professorID)
	if err != nil {
		logger.Warn().Err(err).Msg("Professor load failed")
		return
	}

	papers, err := t.papers.PapersFor(ctx, prof.Name, prof.University)
	if err != nil {
		logger.Warn().Err(err).Str(logKeyName, prof.Name).Msg("Paper search failed")
		return
	}

	if len(papers) == 0 {
		logger.Debug().Str(logKeyName, prof.Name).Msg("No publication record found")
		return
	}

	author, err := t.repo.GetOrCreateAuthor(ctx, prof.ID, prof.Name, "")
	if err != nil {
		logger.Warn().Err(err).Msg("Author upsert failed")
		return
	}

	stored := 0

	for _, paper := range selectPapers(papers, time.Now().Year()) {
		persisted, err := t.repo.GetOrCreatePaper(ctx, domain.Paper{
			ExternalPaperID: paper.ExternalID,
			Title:           strings.TrimSpace(paper.Title),
			Abstract:        paper.Abstract,
			Year:            paper.Year,
			Citations:       paper.Citations,
			PaperURL:        paper.URL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Paper upsert failed")
			continue
		}

		if err := t.repo.LinkAuthorship(ctx, persisted.ID, author.ID); err != nil {
			logger.Warn().Err(err).Msg("Authorship link failed")
			continue
		}

		paperID := persisted.ID
		t.queue.Enqueue(taskEmbed, func(taskCtx context.Context) {
			t.RunEmbed(taskCtx, paperID)
		})

		stored++
	}

	logger.Info().Int(logKeyCount, stored).Str(logKeyName, prof.Name).Msg("Publication record ingested")
}

// RunEmbed computes and stores the vector for one paper. Papers without any
// text and papers that already have a vector are skipped; there is no
// re-embedding path, because the inputs are immutable once stored.
func (t *Tasks) RunEmbed(ctx context.Context, paperID uuid.UUID) {
	logger := t.logger.With().Str(logKeyPaperID, paperID.String()).Logger()

	paper, err := t.repo.PaperByID(ctx, paperID)
	if err != nil {
		logger.Warn().Err(err).Msg("Paper load failed")
		return
	}

	if paper.Title == "" && paper.Abstract == "" {
		observability.Embeddings.WithLabelValues(observability.StatusSkipped).Inc()
		return
	}

	exists, err := t.repo.HasEmbedding(ctx, paperID)
	if err != nil {
		logger.Warn().Err(err).Msg("Embedding lookup failed")
		return
	}

	if exists {
		observability.Embeddings.WithLabelValues(observability.StatusSkipped).Inc()
		return
	}

	vector, err := t.embedder.GetEmbedding(ctx, embeddingInput(paper))
	if err != nil {
		observability.Embeddings.WithLabelValues(observability.StatusError).Inc()
		logger.Warn().Err(err).Msg("Embedding computation failed")

		return
	}

	if err := t.repo.SaveEmbedding(ctx, paperID, vector); err != nil {
		// A concurrent worker may have stored the vector first; that is
		// success, not failure.
		if corerrors.Is(err, corerrors.ErrIntegrityConflict) {
			observability.Embeddings.WithLabelValues(observability.StatusSkipped).Inc()
			return
		}

		observability.Embeddings.WithLabelValues(observability.StatusError).Inc()
		logger.Warn().Err(err).Msg("Embedding save failed")

		return
	}

	observability.Embeddings.WithLabelValues(observability.StatusOK).Inc()
}

// embeddingInput joins title and abstract the way the vectors were indexed.
func embeddingInput(paper domain.Paper) string {
	return fmt.Sprintf("%s. %s", paper.Title, paper.Abstract)
}

// selectPapers keeps the most-cited papers plus everything from the recency
// window, deduplicated by external ID with a title-year fallback key. Order
// follows the citation ranking with recent extras appended, so truncation
// anywhere downstream drops the least interesting papers first.
func selectPapers(papers []scholar.Paper, currentYear int) []scholar.Paper {
	ranked := make([]scholar.Paper, len(papers))
	copy(ranked, papers)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Citations > ranked[j].Citations
	})

	top := ranked
	if len(top) > maxTopCited {
		top = top[:maxTopCited]
	}

	cutoff := currentYear - recentYearsWindow

	var recent []scholar.Paper

	for _, p := range ranked {
		if p.Year != 0 && p.Year >= cutoff {
			recent = append(recent, p)
		}
	}

	seen := make(map[string]struct{}, len(top)+len(recent))
	selected := make([]scholar.Paper, 0, len(top)+len(recent))

	for _, batch := range [][]scholar.Paper{top, recent} {
		for _, p := range batch {
			key := paperKey(p)
			if _, ok := seen[key]; ok {
				continue
			}

			seen[key] = struct{}{}
			selected = append(selected, p)
		}
	}

	return selected
}

// paperKey is the dedup identity of a paper within one selection.
func paperKey(p scholar.Paper) string {
	if p.ExternalID != "" {
		return p.ExternalID
	}

	return fmt.Sprintf("%s_%d", p.Title, p.Year)
}

// incrementProgress bumps the processed counter and flips the job to
// completed when the counter reaches the roster size. The arithmetic runs in
// SQL, so concurrent workers cannot lose increments; the completed
// transition is likewise guarded, so only one worker performs it.
func (t *Tasks) incrementProgress(ctx context.Context, jobID uuid.UUID) {
	processed, total, err := t.repo.IncrementJobProgress(ctx, jobID)
	if err != nil {
		t.logger.Warn().Err(err).Str(logKeyJobID, jobID.String()).Msg("Progress increment failed")
		return
	}

	observability.IngestProcessed.Inc()

	t.logger.Debug().
		Str(logKeyJobID, jobID.String()).
		Int(logKeyProcessed, processed).
		Int(logKeyTotal, total).
		Msg("Job progress")

	if total > 0 && processed >= total {
		completed, err := t.repo.CompleteJob(ctx, jobID)
		if err != nil {
			t.logger.Warn().Err(err).Str(logKeyJobID, jobID.String()).Msg("Completion transition failed")
			return
		}

		if completed {
			observability.IngestJobs.WithLabelValues(domain.JobStatusCompleted).Inc()
			t.logger.Info().Str(logKeyJobID, jobID.String()).Int(logKeyTotal, total).Msg("Job completed")
		}
	}
}

func (t *Tasks) failJob(ctx context.Context, jobID uuid.UUID) {
	if err := t.repo.MarkJobFailed(ctx, jobID); err != nil {
		t.logger.Error().Err(err).Str(logKeyJobID, jobID.String()).Msg("Failed-state transition failed")
		return
	}

	observability.IngestJobs.WithLabelValues(domain.JobStatusFailed).Inc()
}
