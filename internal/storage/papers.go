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

const paperColumns = "id, external_paper_id, title, abstract, year, citations, paper_url, created_at"

const (
	selectPaperByExternalID = "SELECT " + paperColumns + " FROM papers WHERE external_paper_id = $1"
	selectPaperByID         = "SELECT " + paperColumns + " FROM papers WHERE id = $1"

	// year IS NOT DISTINCT FROM matches NULL years too, which a plain
	// equality comparison would silently miss.
	selectPaperByTitleYear = "SELECT " + paperColumns + " FROM papers WHERE title = $1 AND year IS NOT DISTINCT FROM $2"

	// Without a conflict target this suppresses both the external-id and the
	// (title, year) unique constraints; the caller re-reads on a lost race.
	insertPaper = `INSERT INTO papers (external_paper_id, title, abstract, year, citations, paper_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING ` + paperColumns

	insertAuthorship = `INSERT INTO paper_authors (paper_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (paper_id, author_id) DO NOTHING`
)

// GetOrCreatePaper returns the stored paper matching the natural key of in:
// external_paper_id when present, otherwise the (title, year) pair. The row
// is created when absent; concurrent inserts resolve by re-reading.
func (db *DB) GetOrCreatePaper(ctx context.Context, in domain.Paper) (domain.Paper, error) {
	paper, err := db.paperByKey(ctx, in)

	switch {
	case err == nil:
		return paper, nil
	case !errors.Is(err, corerrors.ErrNotFound):
		return domain.Paper{}, err
	}

	if in.Citations < 0 {
		in.Citations = 0
	}

	row := db.Pool.QueryRow(ctx, insertPaper,
		toText(in.ExternalPaperID), toText(in.Title), toText(in.Abstract),
		toInt4Ptr(in.Year), toInt4(in.Citations), toText(in.PaperURL))

	paper, err = scanPaper(row)
	if err == nil {
		return paper, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
		return domain.Paper{}, fmt.Errorf("insert paper: %w", err)
	}

	db.Logger.Debug().Str(logKeyPaperKey, paperKey(in)).Msg("paper insert raced, re-reading")

	paper, err = db.paperByKey(ctx, in)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("%w: re-read paper: %w", corerrors.ErrIntegrityConflict, err)
	}

	return paper, nil
}

// paperByKey looks a paper up by its natural key. A paper inserted under a
// (title, year) key may have since gained an external id, so the title/year
// probe runs as a fallback even when an external id is present.
func (db *DB) paperByKey(ctx context.Context, in domain.Paper) (domain.Paper, error) {
	if in.ExternalPaperID != "" {
		paper, err := scanPaper(db.Pool.QueryRow(ctx, selectPaperByExternalID, toText(in.ExternalPaperID)))
		if err == nil {
			return paper, nil
		}

		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Paper{}, fmt.Errorf("select paper by external id: %w", err)
		}
	}

	paper, err := scanPaper(db.Pool.QueryRow(ctx, selectPaperByTitleYear, toText(in.Title), toInt4Ptr(in.Year)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Paper{}, fmt.Errorf("%w: paper %s", corerrors.ErrNotFound, paperKey(in))
		}

		return domain.Paper{}, fmt.Errorf("select paper by title/year: %w", err)
	}

	return paper, nil
}

// PaperByID returns the paper with the given ID.
func (db *DB) PaperByID(ctx context.Context, id uuid.UUID) (domain.Paper, error) {
	paper, err := scanPaper(db.Pool.QueryRow(ctx, selectPaperByID, toUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Paper{}, fmt.Errorf("%w: paper %s", corerrors.ErrNotFound, id)
		}

		return domain.Paper{}, fmt.Errorf("select paper by id: %w", err)
	}

	return paper, nil
}

// LinkAuthorship records the (paper, author) pair; duplicates are no-ops.
func (db *DB) LinkAuthorship(ctx context.Context, paperID, authorID uuid.UUID) error {
	if _, err := db.Pool.Exec(ctx, insertAuthorship, toUUID(paperID), toUUID(authorID)); err != nil {
		return fmt.Errorf("insert authorship: %w", err)
	}

	return nil
}

func paperKey(p domain.Paper) string {
	if p.ExternalPaperID != "" {
		return p.ExternalPaperID
	}

	return fmt.Sprintf("%s_%d", p.Title, p.Year)
}

func scanPaper(row pgx.Row) (domain.Paper, error) {
	var (
		id         pgtype.UUID
		externalID pgtype.Text
		title      pgtype.Text
		abstract   pgtype.Text
		year       pgtype.Int4
		citations  pgtype.Int4
		paperURL   pgtype.Text
		createdAt  pgtype.Timestamptz
	)

	if err := row.Scan(&id, &externalID, &title, &abstract, &year, &citations, &paperURL, &createdAt); err != nil {
		return domain.Paper{}, err
	}

	return domain.Paper{
		ID:              fromUUID(id),
		ExternalPaperID: fromText(externalID),
		Title:           fromText(title),
		Abstract:        fromText(abstract),
		Year:            fromInt4(year),
		Citations:       fromInt4(citations),
		PaperURL:        fromText(paperURL),
		CreatedAt:       fromTimestamptz(createdAt),
	}, nil
}
