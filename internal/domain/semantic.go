package domain

import (
	"context"
	"math"
	"time"
)

// PredicateType is the closed enumeration the extractor and lifecycle are
// allowed to reason about generically; the predicate vocabulary itself
// (e.g. "prefers_delivery_day", "payment_terms") stays domain-open and
// free-form.
type PredicateType string

const (
	PredicatePreference PredicateType = "preference"
	PredicateRequirement PredicateType = "requirement"
	PredicateObservation PredicateType = "observation"
	PredicatePolicy      PredicateType = "policy"
	PredicateAttribute   PredicateType = "attribute"
)

func ValidPredicateType(s string) bool {
	switch PredicateType(s) {
	case PredicatePreference, PredicateRequirement, PredicateObservation, PredicatePolicy, PredicateAttribute:
		return true
	}
	return false
}

// MemoryStatus is the semantic-memory lifecycle state.
type MemoryStatus string

const (
	StatusActive      MemoryStatus = "active"
	StatusAging       MemoryStatus = "aging"
	StatusSuperseded  MemoryStatus = "superseded"
	StatusInvalidated MemoryStatus = "invalidated"
)

func ValidMemoryStatus(s string) bool {
	switch MemoryStatus(s) {
	case StatusActive, StatusAging, StatusSuperseded, StatusInvalidated:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (s MemoryStatus) IsTerminal() bool {
	return s == StatusSuperseded || s == StatusInvalidated
}

// MaxConfidence is the ceiling no memory is allowed to cross: nothing
// claims certainty.
const MaxConfidence = 0.95

// ConfidenceFactors records the inputs that produced the stored confidence,
// for the provenance trail an external /explain capability can walk.
type ConfidenceFactors struct {
	ExtractorHint    float64 `json:"extractor_hint,omitempty"`
	ReinforcementSum float64 `json:"reinforcement_sum,omitempty"`
	ConsolidationSum float64 `json:"consolidation_sum,omitempty"`
}

// SemanticMemory is a durable (subject, predicate, object) fact about an
// entity — the central object of the memory layer.
type SemanticMemory struct {
	MemoryID             string            `json:"memory_id"`
	UserID               string            `json:"user_id"`
	SubjectEntityID      string            `json:"subject_entity_id"`
	Predicate            string            `json:"predicate"`
	PredicateType        PredicateType     `json:"predicate_type"`
	ObjectValue          map[string]any    `json:"object_value"`
	OriginalText         string            `json:"original_text"`
	SourceText           string            `json:"source_text"`
	RelatedEntities      []string          `json:"related_entities,omitempty"`
	Embedding            []float32         `json:"-"`
	Confidence           float64           `json:"confidence"`
	ConfidenceFactors    ConfidenceFactors `json:"confidence_factors"`
	ReinforcementCount   int               `json:"reinforcement_count"`
	Status               MemoryStatus      `json:"status"`
	LastValidatedAt      time.Time         `json:"last_validated_at"`
	ExtractedFromEventID string            `json:"extracted_from_event_id,omitempty"`
	SourceMemoryID        string           `json:"source_memory_id,omitempty"`
	SupersededByMemoryID  string           `json:"superseded_by_memory_id,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// EffectiveConfidence applies passive decay, always computed on read and
// never stored. decayPerDay comes from the heuristic registry.
func (m *SemanticMemory) EffectiveConfidence(now time.Time, decayPerDay float64) float64 {
	daysSince := now.Sub(m.LastValidatedAt).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	return decay(m.Confidence, daysSince, decayPerDay)
}

func decay(stored float64, days float64, ratePerDay float64) float64 {
	v := stored * math.Exp(-ratePerDay*days)
	if v < 0 {
		v = 0
	}
	if v > stored {
		v = stored
	}
	return v
}

// SemanticWithScore pairs a semantic memory with a vector-similarity score.
type SemanticWithScore struct {
	SemanticMemory
	Score float64 `json:"score"`
}

// SemanticFilters narrows find_similar's candidate set.
type SemanticFilters struct {
	UserID        string
	SubjectEntity string
	Status        []MemoryStatus
}

type SemanticStore interface {
	Create(ctx context.Context, m *SemanticMemory) error
	GetByID(ctx context.Context, memoryID string) (*SemanticMemory, error)
	FindBySubjectPredicate(ctx context.Context, subjectID, predicate, userID string) ([]SemanticMemory, error)
	FindSimilar(ctx context.Context, embedding []float32, limit int, filters SemanticFilters) ([]SemanticWithScore, error)
	FindReinforcements(ctx context.Context, subjectID, predicate, excludeID string) ([]SemanticMemory, error)
	FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]SemanticMemory, error)
	// Update performs an optimistic update keyed on (memory_id, updated_at);
	// ErrStaleWrite is returned on a conflicting concurrent writer.
	Update(ctx context.Context, m *SemanticMemory) error
}
