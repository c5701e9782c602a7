// Package store implements the entity and memory stores against Postgres
// via pgx/v5, pgvector-go for cosine similarity, and the pg_trgm
// extension for fuzzy trigram search — pushing similarity computation
// into the database rather than pulling rows into Go to compare them.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/veyra-labs/memcore/internal/domain"
)

// mapNoRows translates pgx's sentinel into the domain-level ErrNotFound the
// rest of the core matches on with errors.Is.
func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
