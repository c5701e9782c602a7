package domain

import (
	"context"
	"time"
)

// AliasSource records how an EntityAlias came to exist.
type AliasSource string

const (
	AliasSourceManual           AliasSource = "manual"
	AliasSourceFuzzyLearned     AliasSource = "fuzzy_learned"
	AliasSourceUserDisambig     AliasSource = "user_disambiguation"
	AliasSourceCoreference      AliasSource = "coreference"
)

func ValidAliasSource(s string) bool {
	switch AliasSource(s) {
	case AliasSourceManual, AliasSourceFuzzyLearned, AliasSourceUserDisambig, AliasSourceCoreference:
		return true
	}
	return false
}

// ExternalRef points a canonical entity at its authoritative row in the
// domain database.
type ExternalRef struct {
	Table      string `json:"table"`
	PrimaryKey string `json:"primary_key"`
}

// CanonicalEntity is the one true record for a real-world object referenced
// across memory. entity_id is a natural key of the form "<type>:<slug>" so
// alias/external-ref lookups never need a join back to this table.
type CanonicalEntity struct {
	EntityID        string         `json:"entity_id"`
	EntityType      string         `json:"entity_type"`
	CanonicalName   string         `json:"canonical_name"`
	Properties      map[string]any `json:"properties,omitempty"`
	ExternalRef     *ExternalRef   `json:"external_ref,omitempty"`
	CreatedByUserID string         `json:"created_by_user_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// EntityAlias resolves alias_text to a canonical entity, globally or for a
// single user. (alias_text, user_id) is unique; alias_text is NFC-normalized
// and case-folded before storage or comparison (see internal/resolver/normalize/normalize.go).
type EntityAlias struct {
	AliasID           string         `json:"alias_id"`
	CanonicalEntityID string         `json:"canonical_entity_id"`
	AliasText         string         `json:"alias_text"`
	Source            AliasSource    `json:"source"`
	UserID            string         `json:"user_id,omitempty"`
	Confidence        float64        `json:"confidence"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// EntityWithSimilarity pairs a canonical entity with a fuzzy-match score.
type EntityWithSimilarity struct {
	CanonicalEntity
	Similarity float64 `json:"similarity"`
}

// EntityStore persists canonical entities, aliases, and external refs to
// domain rows; exposes fuzzy/exact/alias lookup.
type EntityStore interface {
	GetByID(ctx context.Context, entityID string) (*CanonicalEntity, error)
	FindExact(ctx context.Context, canonicalName string) (*CanonicalEntity, error)
	// FindByAlias also returns the matched alias's stored confidence so
	// callers can surface it as a resolution confidence.
	FindByAlias(ctx context.Context, aliasText string, userID string) (*CanonicalEntity, float64, error)
	FuzzySearch(ctx context.Context, text string, threshold float64) ([]EntityWithSimilarity, error)
	Create(ctx context.Context, e *CanonicalEntity) error
	CreateAlias(ctx context.Context, canonicalEntityID string, aliasText string, source AliasSource, userID string, confidence float64, metadata map[string]any) (*EntityAlias, error)
	LookupByExternalRef(ctx context.Context, table string, primaryKey string) (*CanonicalEntity, error)
}

// ErrAliasCollision is returned by CreateAlias when alias_text exactly
// matches a different canonical entity's canonical_name (would re-introduce
// the ambiguity aliasing exists to resolve).
type ErrAliasCollision struct {
	AliasText        string
	ExistingEntityID string
}

func (e *ErrAliasCollision) Error() string {
	return "alias " + e.AliasText + " collides with canonical entity " + e.ExistingEntityID
}
