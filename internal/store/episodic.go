package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/veyra-labs/memcore/internal/domain"
)

type EpisodicStore struct {
	db *pgxpool.Pool
}

func NewEpisodicStore(db *pgxpool.Pool) *EpisodicStore {
	return &EpisodicStore{db: db}
}

const episodicColumns = `memory_id, user_id, session_id, summary, entities, importance, source_event_id, created_at`

func (s *EpisodicStore) Create(ctx context.Context, m *domain.EpisodicMemory) error {
	if m.MemoryID == "" {
		m.MemoryID = uuid.NewString()
	}
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO episodic_memories (memory_id, user_id, session_id, summary, entities, embedding, importance, source_event_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		m.MemoryID, m.UserID, m.SessionID, m.Summary, m.Entities, embedding, m.Importance, m.SourceEventID,
	).Scan(&m.CreatedAt)
}

func (s *EpisodicStore) FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]domain.EpisodicMemory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memories
		 WHERE user_id = $1 AND entities && $2
		 ORDER BY importance DESC, created_at DESC
		 LIMIT $3`,
		userID, entityIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find episodic by entities: %w", err)
	}
	defer rows.Close()

	var out []domain.EpisodicMemory
	for rows.Next() {
		var m domain.EpisodicMemory
		if err := rows.Scan(&m.MemoryID, &m.UserID, &m.SessionID, &m.Summary, &m.Entities, &m.Importance, &m.SourceEventID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *EpisodicStore) FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]domain.EpisodicWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx,
		`SELECT `+episodicColumns+`, 1 - (embedding <=> $1) AS score
		 FROM episodic_memories
		 WHERE user_id = $2 AND embedding IS NOT NULL
		 ORDER BY score DESC
		 LIMIT $3`,
		vec, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar episodic: %w", err)
	}
	defer rows.Close()

	var out []domain.EpisodicWithScore
	for rows.Next() {
		var ews domain.EpisodicWithScore
		if err := rows.Scan(&ews.MemoryID, &ews.UserID, &ews.SessionID, &ews.Summary, &ews.Entities, &ews.Importance, &ews.SourceEventID, &ews.CreatedAt, &ews.Score); err != nil {
			return nil, err
		}
		out = append(out, ews)
	}
	return out, rows.Err()
}

// AttenuateImportance applies consolidation's side effect on its source
// episodes: they are not deleted, just scaled down so they fall below
// retrieval cutoffs on their own.
func (s *EpisodicStore) AttenuateImportance(ctx context.Context, memoryIDs []string, factor float64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE episodic_memories SET importance = importance * $1 WHERE memory_id = ANY($2)`,
		factor, memoryIDs,
	)
	return err
}

func (s *EpisodicStore) CountForScope(ctx context.Context, userID string, scopeType domain.ScopeType, scopeIdentifier string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM episodic_memories
		 WHERE user_id = $1 AND $2 = ANY(entities)`,
		userID, scopeIdentifier,
	).Scan(&count)
	return count, err
}

func (s *EpisodicStore) GetForScope(ctx context.Context, userID string, scopeType domain.ScopeType, scopeIdentifier string, limit int) ([]domain.EpisodicMemory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+episodicColumns+` FROM episodic_memories
		 WHERE user_id = $1 AND $2 = ANY(entities)
		 ORDER BY created_at ASC
		 LIMIT $3`,
		userID, scopeIdentifier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get for scope: %w", err)
	}
	defer rows.Close()

	var out []domain.EpisodicMemory
	for rows.Next() {
		var m domain.EpisodicMemory
		if err := rows.Scan(&m.MemoryID, &m.UserID, &m.SessionID, &m.Summary, &m.Entities, &m.Importance, &m.SourceEventID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
