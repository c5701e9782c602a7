package domain

import (
	"context"
	"time"
)

// TriggerFeatures is the matchable shape of a learned "when X" condition.
type TriggerFeatures struct {
	Intent      string   `json:"intent,omitempty"`
	EntityTypes []string `json:"entity_types,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// TriggerOperator is a supported proactive-notice predicate operator.
type TriggerOperator string

const (
	OpEquals    TriggerOperator = "equals"
	OpDaysUntil TriggerOperator = "days_until"
	OpContains  TriggerOperator = "contains"
)

// TriggerPredicate evaluates one clause of action_structure.predicates
// against a DomainFact.
type TriggerPredicate struct {
	Field    string          `json:"field"`
	Operator TriggerOperator `json:"operator"`
	Value    any             `json:"value"`
}

// ActionStructure is the "then Y" half of a procedural memory.
type ActionStructure struct {
	ActionType string             `json:"action_type"`
	Queries    []string           `json:"queries,omitempty"`
	Predicates []TriggerPredicate `json:"predicates,omitempty"`
}

// ProceduralMemory models a learned "when X then Y" policy.
type ProceduralMemory struct {
	MemoryID        string          `json:"memory_id"`
	UserID          string          `json:"user_id"`
	TriggerPattern  string          `json:"trigger_pattern"`
	TriggerFeatures TriggerFeatures `json:"trigger_features"`
	ActionHeuristic string          `json:"action_heuristic"`
	ActionStructure ActionStructure `json:"action_structure"`
	Embedding       []float32       `json:"-"`
	Confidence      float64         `json:"confidence"`
	ObservedCount   int             `json:"observed_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type ProceduralWithScore struct {
	ProceduralMemory
	Score float64 `json:"score"`
}

type ProceduralStore interface {
	Create(ctx context.Context, m *ProceduralMemory) error
	FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]ProceduralWithScore, error)
	Update(ctx context.Context, m *ProceduralMemory) error
}
