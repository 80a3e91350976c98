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

const professorColumns = "id, name, university, department, email, profile_url, created_at, updated_at"

const (
	selectProfessorByURL = "SELECT " + professorColumns + " FROM professors WHERE profile_url = $1"
	selectProfessorByID  = "SELECT " + professorColumns + " FROM professors WHERE id = $1"

	insertProfessor = `INSERT INTO professors (name, university, department, email, profile_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (profile_url) DO NOTHING
		RETURNING ` + professorColumns

	backfillProfessorEmail = `UPDATE professors SET email = $2, updated_at = now()
		WHERE id = $1 AND email IS NULL
		RETURNING email`
)

// GetOrCreateProfessor returns the professor identified by profile URL,
// creating the row when absent. Name and university are never overwritten;
// email is backfilled only while the stored value is NULL. A concurrent
// insert on the same URL is resolved by re-reading the winner's row.
func (db *DB) GetOrCreateProfessor(ctx context.Context, in domain.Professor) (domain.Professor, error) {
	prof, err := db.ProfessorByURL(ctx, in.ProfileURL)

	switch {
	case err == nil:
		return db.backfillEmail(ctx, prof, in.Email)
	case !errors.Is(err, corerrors.ErrNotFound):
		return domain.Professor{}, err
	}

	row := db.Pool.QueryRow(ctx, insertProfessor,
		toText(in.Name), toText(in.University), toText(in.Department), toText(in.Email), toText(in.ProfileURL))

	prof, err = scanProfessor(row)
	if err == nil {
		return prof, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
		return domain.Professor{}, fmt.Errorf("insert professor: %w", err)
	}

	// Lost the insert race; the winner's row is authoritative.
	db.Logger.Debug().Str(logKeyProfileURL, in.ProfileURL).Msg("professor insert raced, re-reading")

	prof, err = db.ProfessorByURL(ctx, in.ProfileURL)
	if err != nil {
		return domain.Professor{}, fmt.Errorf("%w: re-read professor: %w", corerrors.ErrIntegrityConflict, err)
	}

	return db.backfillEmail(ctx, prof, in.Email)
}

// backfillEmail fills a NULL email with the incoming value. The guard in the
// UPDATE keeps the fill monotone when two writers race.
func (db *DB) backfillEmail(ctx context.Context, prof domain.Professor, email string) (domain.Professor, error) {
	if prof.Email != "" || email == "" {
		return prof, nil
	}

	var filled pgtype.Text

	err := db.Pool.QueryRow(ctx, backfillProfessorEmail, toUUID(prof.ID), toText(email)).Scan(&filled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another writer filled it first; keep theirs.
			return db.ProfessorByID(ctx, prof.ID)
		}

		return domain.Professor{}, fmt.Errorf("backfill professor email: %w", err)
	}

	prof.Email = fromText(filled)

	return prof, nil
}

// ProfessorByURL returns the professor with the given profile URL.
func (db *DB) ProfessorByURL(ctx context.Context, profileURL string) (domain.Professor, error) {
	prof, err := scanProfessor(db.Pool.QueryRow(ctx, selectProfessorByURL, toText(profileURL)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Professor{}, fmt.Errorf("%w: professor %s", corerrors.ErrNotFound, profileURL)
		}

		return domain.Professor{}, fmt.Errorf("select professor by url: %w", err)
	}

	return prof, nil
}

// ProfessorByID returns the professor with the given ID.
func (db *DB) ProfessorByID(ctx context.Context, id uuid.UUID) (domain.Professor, error) {
	prof, err := scanProfessor(db.Pool.QueryRow(ctx, selectProfessorByID, toUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Professor{}, fmt.Errorf("%w: professor %s", corerrors.ErrNotFound, id)
		}

		return domain.Professor{}, fmt.Errorf("select professor by id: %w", err)
	}

	return prof, nil
}

func scanProfessor(row pgx.Row) (domain.Professor, error) {
	var (
		id        pgtype.UUID
		name      pgtype.Text
		univ      pgtype.Text
		dept      pgtype.Text
		email     pgtype.Text
		url       pgtype.Text
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &name, &univ, &dept, &email, &url, &createdAt, &updatedAt); err != nil {
		return domain.Professor{}, err
	}

	return domain.Professor{
		ID:         fromUUID(id),
		Name:       fromText(name),
		University: fromText(univ),
		Department: fromText(dept),
		Email:      fromText(email),
		ProfileURL: fromText(url),
		CreatedAt:  fromTimestamptz(createdAt),
		UpdatedAt:  fromTimestamptz(updatedAt),
	}, nil
}
