package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

const (
	selectEmbeddingExists = "SELECT EXISTS (SELECT 1 FROM paper_embeddings WHERE paper_id = $1)"

	// Embeddings are written once and never updated in place.
	insertEmbedding = `INSERT INTO paper_embeddings (paper_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (paper_id) DO NOTHING`
)

// HasEmbedding reports whether an embedding row exists for the paper.
func (db *DB) HasEmbedding(ctx context.Context, paperID uuid.UUID) (bool, error) {
	var exists bool

	if err := db.Pool.QueryRow(ctx, selectEmbeddingExists, toUUID(paperID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("select embedding exists: %w", err)
	}

	return exists, nil
}

// SaveEmbedding persists the paper's vector. Writes after the first are
// no-ops, so racing embed tasks cannot overwrite each other.
func (db *DB) SaveEmbedding(ctx context.Context, paperID uuid.UUID, vector []float32) error {
	if _, err := db.Pool.Exec(ctx, insertEmbedding, toUUID(paperID), pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}

	return nil
}
