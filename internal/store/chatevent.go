package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veyra-labs/memcore/internal/domain"
)

type ChatEventStore struct {
	db *pgxpool.Pool
}

func NewChatEventStore(db *pgxpool.Pool) *ChatEventStore {
	return &ChatEventStore{db: db}
}

const chatEventColumns = `event_id, session_id, user_id, role, content, content_hash, metadata, created_at`

// Create inserts the event, or on a content_hash collision returns the
// existing row untouched so repeated ingest of the same turn is a no-op.
func (s *ChatEventStore) Create(ctx context.Context, e *domain.ChatEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_events (event_id, session_id, user_id, role, content, content_hash, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (content_hash) DO NOTHING
		 RETURNING event_id, created_at`,
		e.EventID, e.SessionID, e.UserID, e.Role, e.Content, e.ContentHash, e.Metadata,
	).Scan(&e.EventID, &e.CreatedAt)
	if err == nil {
		return nil
	}
	existing, getErr := s.GetByContentHash(ctx, e.ContentHash)
	if getErr != nil {
		return err
	}
	*e = *existing
	return nil
}

func (s *ChatEventStore) GetByContentHash(ctx context.Context, contentHash string) (*domain.ChatEvent, error) {
	e := &domain.ChatEvent{}
	err := s.db.QueryRow(ctx, `SELECT `+chatEventColumns+` FROM chat_events WHERE content_hash = $1`, contentHash).
		Scan(&e.EventID, &e.SessionID, &e.UserID, &e.Role, &e.Content, &e.ContentHash, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return e, nil
}

func (s *ChatEventStore) GetByID(ctx context.Context, eventID string) (*domain.ChatEvent, error) {
	e := &domain.ChatEvent{}
	err := s.db.QueryRow(ctx, `SELECT `+chatEventColumns+` FROM chat_events WHERE event_id = $1`, eventID).
		Scan(&e.EventID, &e.SessionID, &e.UserID, &e.Role, &e.Content, &e.ContentHash, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return e, nil
}
