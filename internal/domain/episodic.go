package domain

import (
	"context"
	"time"
)

// EpisodicMemory represents an event with interpreted meaning — "what
// happened in a turn" rather than a durable fact about an entity.
type EpisodicMemory struct {
	MemoryID      string    `json:"memory_id"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	Summary       string    `json:"summary"`
	Entities      []string  `json:"entities,omitempty"`
	Embedding     []float32 `json:"-"`
	Importance    float64   `json:"importance"`
	SourceEventID string    `json:"source_event_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// EpisodicWithScore pairs an episodic memory with a vector-similarity score.
type EpisodicWithScore struct {
	EpisodicMemory
	Score float64 `json:"score"`
}

type EpisodicStore interface {
	Create(ctx context.Context, m *EpisodicMemory) error
	FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]EpisodicMemory, error)
	FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]EpisodicWithScore, error)
	// AttenuateImportance lowers importance on memories consolidated into a
	// summary so they fall below retrieval cutoffs without being deleted.
	AttenuateImportance(ctx context.Context, memoryIDs []string, factor float64) error
	CountForScope(ctx context.Context, userID string, scopeType ScopeType, scopeIdentifier string) (int, error)
	GetForScope(ctx context.Context, userID string, scopeType ScopeType, scopeIdentifier string, limit int) ([]EpisodicMemory, error)
}
