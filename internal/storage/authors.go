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

const authorColumns = "id, professor_id, name, external_author_id"

const (
	selectAuthorByProfessor = "SELECT " + authorColumns + " FROM authors WHERE professor_id = $1"

	insertAuthor = `INSERT INTO authors (professor_id, name, external_author_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (professor_id) DO NOTHING
		RETURNING ` + authorColumns

	backfillAuthorExternalID = `UPDATE authors SET external_author_id = $2
		WHERE id = $1 AND external_author_id IS NULL
		RETURNING external_author_id`
)

// GetOrCreateAuthor returns the author row for a professor, creating it when
// absent. ExternalAuthorID is backfilled only while NULL.
func (db *DB) GetOrCreateAuthor(ctx context.Context, professorID uuid.UUID, name, externalID string) (domain.Author, error) {
	author, err := db.authorByProfessor(ctx, professorID)

	switch {
	case err == nil:
		return db.backfillExternalID(ctx, author, externalID)
	case !errors.Is(err, corerrors.ErrNotFound):
		return domain.Author{}, err
	}

	row := db.Pool.QueryRow(ctx, insertAuthor, toUUID(professorID), toText(name), toText(externalID))

	author, err = scanAuthor(row)
	if err == nil {
		return author, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
		return domain.Author{}, fmt.Errorf("insert author: %w", err)
	}

	author, err = db.authorByProfessor(ctx, professorID)
	if err != nil {
		return domain.Author{}, fmt.Errorf("%w: re-read author: %w", corerrors.ErrIntegrityConflict, err)
	}

	return db.backfillExternalID(ctx, author, externalID)
}

func (db *DB) backfillExternalID(ctx context.Context, author domain.Author, externalID string) (domain.Author, error) {
	if author.ExternalAuthorID != "" || externalID == "" {
		return author, nil
	}

	var filled pgtype.Text

	err := db.Pool.QueryRow(ctx, backfillAuthorExternalID, toUUID(author.ID), toText(externalID)).Scan(&filled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.authorByProfessor(ctx, author.ProfessorID)
		}

		return domain.Author{}, fmt.Errorf("backfill author external id: %w", err)
	}

	author.ExternalAuthorID = fromText(filled)

	return author, nil
}

func (db *DB) authorByProfessor(ctx context.Context, professorID uuid.UUID) (domain.Author, error) {
	author, err := scanAuthor(db.Pool.QueryRow(ctx, selectAuthorByProfessor, toUUID(professorID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Author{}, fmt.Errorf("%w: author for professor %s", corerrors.ErrNotFound, professorID)
		}

		return domain.Author{}, fmt.Errorf("select author by professor: %w", err)
	}

	return author, nil
}

func scanAuthor(row pgx.Row) (domain.Author, error) {
	var (
		id         pgtype.UUID
		profID     pgtype.UUID
		name       pgtype.Text
		externalID pgtype.Text
	)

	if err := row.Scan(&id, &profID, &name, &externalID); err != nil {
		return domain.Author{}, err
	}

	return domain.Author{
		ID:               fromUUID(id),
		ProfessorID:      fromUUID(profID),
		Name:             fromText(name),
		ExternalAuthorID: fromText(externalID),
	}, nil
}
