package domain

import (
	"context"
	"time"
)

// ConflictType distinguishes a disagreement between two memories from a
// disagreement between a memory and the authoritative domain DB.
type ConflictType string

const (
	ConflictMemoryVsMemory ConflictType = "memory_vs_memory"
	ConflictMemoryVsDB      ConflictType = "memory_vs_db"
)

func ValidConflictType(s string) bool {
	switch ConflictType(s) {
	case ConflictMemoryVsMemory, ConflictMemoryVsDB:
		return true
	}
	return false
}

// ResolutionStrategy is exactly one of these four, or unset while detected.
type ResolutionStrategy string

const (
	StrategyTrustDB        ResolutionStrategy = "trust_db"
	StrategyTrustRecent    ResolutionStrategy = "trust_recent"
	StrategyTrustReinforced ResolutionStrategy = "trust_reinforced"
	StrategyAskUser        ResolutionStrategy = "ask_user" // reserved, never auto-selected
)

// ConflictData carries the competing values a conflict was detected over.
type ConflictData struct {
	MemoryAID   string         `json:"memory_a_id,omitempty"`
	MemoryBID   string         `json:"memory_b_id,omitempty"`
	Predicate   string         `json:"predicate,omitempty"`
	MemoryValue map[string]any `json:"memory_value,omitempty"`
	DBValue     map[string]any `json:"db_value,omitempty"`
	DBTable     string         `json:"db_table,omitempty"`
}

// ResolutionOutcome records who won and why.
type ResolutionOutcome struct {
	WinnerID  string `json:"winner_id"`
	LoserID   string `json:"loser_id,omitempty"`
	Rationale string `json:"rationale"`
}

// MemoryConflict is append-only at detection, updated at most once on
// resolution.
type MemoryConflict struct {
	ConflictID        string              `json:"conflict_id"`
	ConflictType      ConflictType        `json:"conflict_type"`
	ConflictData      ConflictData        `json:"conflict_data"`
	ResolutionStrategy *ResolutionStrategy `json:"resolution_strategy,omitempty"`
	ResolutionOutcome  *ResolutionOutcome  `json:"resolution_outcome,omitempty"`
	DetectedAt        time.Time           `json:"detected_at"`
	ResolvedAt        *time.Time          `json:"resolved_at,omitempty"`
}

// IsResolved reports whether the detected->resolved transition has happened.
func (c *MemoryConflict) IsResolved() bool {
	return c.ResolutionStrategy != nil && *c.ResolutionStrategy != StrategyAskUser
}

type ConflictStore interface {
	Create(ctx context.Context, c *MemoryConflict) error
	Update(ctx context.Context, c *MemoryConflict) error
	GetByID(ctx context.Context, conflictID string) (*MemoryConflict, error)
}
