package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ChatEvent is an immutable, append-only turn in a conversation.
type ChatEvent struct {
	EventID     string         `json:"event_id"`
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id"`
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ComputeContentHash implements content_hash = SHA-256(session_id || content || created_at).
// created_at is truncated to the second so retries within the same clock
// tick still collide deterministically.
func ComputeContentHash(sessionID, content string, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte(content))
	h.Write([]byte(createdAt.UTC().Truncate(time.Second).Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

// ChatEventStore persists chat events with idempotent ingest on content_hash.
type ChatEventStore interface {
	Create(ctx context.Context, e *ChatEvent) error
	GetByContentHash(ctx context.Context, contentHash string) (*ChatEvent, error)
	GetByID(ctx context.Context, eventID string) (*ChatEvent, error)
}
