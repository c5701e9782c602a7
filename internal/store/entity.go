package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/resolver/normalize"
)

// EntityStore is the Postgres-backed implementation of domain.EntityStore.
type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) GetByID(ctx context.Context, entityID string) (*domain.CanonicalEntity, error) {
	e := &domain.CanonicalEntity{}
	var refTable, refKey *string
	err := s.db.QueryRow(ctx,
		`SELECT entity_id, entity_type, canonical_name, properties, external_ref_table, external_ref_key, created_by_user_id, created_at, updated_at
		 FROM canonical_entities WHERE entity_id = $1`,
		entityID,
	).Scan(&e.EntityID, &e.EntityType, &e.CanonicalName, &e.Properties, &refTable, &refKey, &e.CreatedByUserID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if refTable != nil && refKey != nil {
		e.ExternalRef = &domain.ExternalRef{Table: *refTable, PrimaryKey: *refKey}
	}
	return e, nil
}

func (s *EntityStore) FindExact(ctx context.Context, canonicalName string) (*domain.CanonicalEntity, error) {
	e := &domain.CanonicalEntity{}
	var refTable, refKey *string
	err := s.db.QueryRow(ctx,
		`SELECT entity_id, entity_type, canonical_name, properties, external_ref_table, external_ref_key, created_by_user_id, created_at, updated_at
		 FROM canonical_entities WHERE LOWER(canonical_name) = LOWER($1)`,
		canonicalName,
	).Scan(&e.EntityID, &e.EntityType, &e.CanonicalName, &e.Properties, &refTable, &refKey, &e.CreatedByUserID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if refTable != nil && refKey != nil {
		e.ExternalRef = &domain.ExternalRef{Table: *refTable, PrimaryKey: *refKey}
	}
	return e, nil
}

// FindByAlias looks up a user-scoped alias first, falling back to a global
// one, per the resolver's stage-2 contract. alias_text is compared after
// NFC normalization and case-folding.
func (s *EntityStore) FindByAlias(ctx context.Context, aliasText string, userID string) (*domain.CanonicalEntity, float64, error) {
	norm := normalize.AliasKey(aliasText)

	e := &domain.CanonicalEntity{}
	var refTable, refKey *string
	var confidence float64
	err := s.db.QueryRow(ctx,
		`SELECT ce.entity_id, ce.entity_type, ce.canonical_name, ce.properties, ce.external_ref_table, ce.external_ref_key, ce.created_by_user_id, ce.created_at, ce.updated_at, ea.confidence
		 FROM entity_aliases ea
		 JOIN canonical_entities ce ON ce.entity_id = ea.canonical_entity_id
		 WHERE ea.alias_text = $1 AND ea.user_id = $2`,
		norm, userID,
	).Scan(&e.EntityID, &e.EntityType, &e.CanonicalName, &e.Properties, &refTable, &refKey, &e.CreatedByUserID, &e.CreatedAt, &e.UpdatedAt, &confidence)
	if err == nil {
		if refTable != nil && refKey != nil {
			e.ExternalRef = &domain.ExternalRef{Table: *refTable, PrimaryKey: *refKey}
		}
		return e, confidence, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, err
	}

	// Fall back to a global alias (user_id IS NULL).
	e = &domain.CanonicalEntity{}
	err = s.db.QueryRow(ctx,
		`SELECT ce.entity_id, ce.entity_type, ce.canonical_name, ce.properties, ce.external_ref_table, ce.external_ref_key, ce.created_by_user_id, ce.created_at, ce.updated_at, ea.confidence
		 FROM entity_aliases ea
		 JOIN canonical_entities ce ON ce.entity_id = ea.canonical_entity_id
		 WHERE ea.alias_text = $1 AND ea.user_id IS NULL`,
		norm,
	).Scan(&e.EntityID, &e.EntityType, &e.CanonicalName, &e.Properties, &refTable, &refKey, &e.CreatedByUserID, &e.CreatedAt, &e.UpdatedAt, &confidence)
	if err != nil {
		return nil, 0, mapNoRows(err)
	}
	if refTable != nil && refKey != nil {
		e.ExternalRef = &domain.ExternalRef{Table: *refTable, PrimaryKey: *refKey}
	}
	return e, confidence, nil
}

// FuzzySearch uses Postgres's pg_trgm similarity() operator rather than a
// hand-rolled trigram implementation — the database already indexes this
// (a GIST/GIN trigram index on canonical_name).
func (s *EntityStore) FuzzySearch(ctx context.Context, text string, threshold float64) ([]domain.EntityWithSimilarity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT entity_id, entity_type, canonical_name, properties, external_ref_table, external_ref_key, created_by_user_id, created_at, updated_at,
		        similarity(canonical_name, $1) AS sim
		 FROM canonical_entities
		 WHERE similarity(canonical_name, $1) >= $2
		 ORDER BY sim DESC`,
		text, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search query: %w", err)
	}
	defer rows.Close()

	var results []domain.EntityWithSimilarity
	for rows.Next() {
		var ews domain.EntityWithSimilarity
		var refTable, refKey *string
		if err := rows.Scan(&ews.EntityID, &ews.EntityType, &ews.CanonicalName, &ews.Properties,
			&refTable, &refKey, &ews.CreatedByUserID, &ews.CreatedAt, &ews.UpdatedAt, &ews.Similarity); err != nil {
			return nil, fmt.Errorf("scan fuzzy search row: %w", err)
		}
		if refTable != nil && refKey != nil {
			ews.ExternalRef = &domain.ExternalRef{Table: *refTable, PrimaryKey: *refKey}
		}
		results = append(results, ews)
	}
	return results, rows.Err()
}

func (s *EntityStore) Create(ctx context.Context, e *domain.CanonicalEntity) error {
	if e.EntityID == "" {
		e.EntityID = fmt.Sprintf("%s:%s", e.EntityType, normalize.Slug(e.CanonicalName))
	}

	var refTable, refKey *string
	if e.ExternalRef != nil {
		refTable = &e.ExternalRef.Table
		refKey = &e.ExternalRef.PrimaryKey
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO canonical_entities (entity_id, entity_type, canonical_name, properties, external_ref_table, external_ref_key, created_by_user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		e.EntityID, e.EntityType, e.CanonicalName, e.Properties, refTable, refKey, nullIfEmpty(e.CreatedByUserID),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

// CreateAlias is idempotent on (alias_text, user_id) and rejects a new
// alias that exactly matches a *different* canonical entity's
// canonical_name — that collision would silently re-introduce the
// ambiguity alias resolution exists to remove.
func (s *EntityStore) CreateAlias(ctx context.Context, canonicalEntityID string, aliasText string, source domain.AliasSource, userID string, confidence float64, metadata map[string]any) (*domain.EntityAlias, error) {
	norm := normalize.AliasKey(aliasText)

	if collider, err := s.FindExact(ctx, aliasText); err == nil && collider.EntityID != canonicalEntityID {
		return nil, &domain.ErrAliasCollision{AliasText: aliasText, ExistingEntityID: collider.EntityID}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	a := &domain.EntityAlias{
		AliasID:           uuid.NewString(),
		CanonicalEntityID: canonicalEntityID,
		AliasText:         norm,
		Source:            source,
		UserID:            userID,
		Confidence:        confidence,
		Metadata:          metadata,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO entity_aliases (alias_id, canonical_entity_id, alias_text, source, user_id, confidence, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (alias_text, user_id) DO UPDATE SET
		   canonical_entity_id = EXCLUDED.canonical_entity_id,
		   confidence = GREATEST(entity_aliases.confidence, EXCLUDED.confidence),
		   updated_at = NOW()
		 RETURNING alias_id, created_at, updated_at`,
		a.AliasID, a.CanonicalEntityID, a.AliasText, a.Source, nullIfEmpty(a.UserID), a.Confidence, a.Metadata,
	).Scan(&a.AliasID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create alias: %w", err)
	}
	return a, nil
}

func (s *EntityStore) LookupByExternalRef(ctx context.Context, table string, primaryKey string) (*domain.CanonicalEntity, error) {
	e := &domain.CanonicalEntity{}
	var refTable, refKey *string
	err := s.db.QueryRow(ctx,
		`SELECT entity_id, entity_type, canonical_name, properties, external_ref_table, external_ref_key, created_by_user_id, created_at, updated_at
		 FROM canonical_entities WHERE external_ref_table = $1 AND external_ref_key = $2`,
		table, primaryKey,
	).Scan(&e.EntityID, &e.EntityType, &e.CanonicalName, &e.Properties, &refTable, &refKey, &e.CreatedByUserID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if refTable != nil && refKey != nil {
		e.ExternalRef = &domain.ExternalRef{Table: *refTable, PrimaryKey: *refKey}
	}
	return e, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
