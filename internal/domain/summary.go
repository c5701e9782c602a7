package domain

import (
	"context"
	"time"
)

// ScopeType is what a consolidation summary was synthesized over.
type ScopeType string

const (
	ScopeEntity        ScopeType = "entity"
	ScopeTopic         ScopeType = "topic"
	ScopeSessionWindow ScopeType = "session_window"
)

func ValidScopeType(s string) bool {
	switch ScopeType(s) {
	case ScopeEntity, ScopeTopic, ScopeSessionWindow:
		return true
	}
	return false
}

// KeyFact is one enumerated, independently-confident restatement inside a
// MemorySummary.
type KeyFact struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	// SemanticMemoryID is set when the fact restates an existing semantic
	// memory consistently, making it eligible for the consolidation boost.
	SemanticMemoryID string `json:"semantic_memory_id,omitempty"`
}

// SourceData traces a summary back to the memories it was synthesized from.
type SourceData struct {
	EpisodicIDs []string `json:"episodic_ids,omitempty"`
	SemanticIDs []string `json:"semantic_ids,omitempty"`
}

// MemorySummary consolidates many memories within a scope.
type MemorySummary struct {
	SummaryID       string     `json:"summary_id"`
	UserID          string     `json:"user_id"`
	ScopeType       ScopeType  `json:"scope_type"`
	ScopeIdentifier string     `json:"scope_identifier"`
	SummaryText     string     `json:"summary_text"`
	KeyFacts        []KeyFact  `json:"key_facts"`
	SourceData      SourceData `json:"source_data"`
	Embedding       []float32  `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SummaryWithScore struct {
	MemorySummary
	Score float64 `json:"score"`
}

type SummaryStore interface {
	Create(ctx context.Context, s *MemorySummary) error
	GetByScope(ctx context.Context, scopeType ScopeType, scopeIdentifier string, userID string) ([]MemorySummary, error)
	FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]SummaryWithScore, error)
}
