// Package migrations embeds the pipeline's SQL schema migrations for goose:
// the relational core (professors, authors, papers, authorships, ingestion
// jobs) and the pgvector embeddings table.
//
// Files follow the YYYYMMDDHHMMSS_description.sql naming convention and are
// applied in order when the worker starts.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
