package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/veyra-labs/memcore/internal/domain"
)

type SummaryStore struct {
	db *pgxpool.Pool
}

func NewSummaryStore(db *pgxpool.Pool) *SummaryStore {
	return &SummaryStore{db: db}
}

const summaryColumns = `summary_id, user_id, scope_type, scope_identifier, summary_text, key_facts, source_data, created_at`

func (s *SummaryStore) Create(ctx context.Context, m *domain.MemorySummary) error {
	if m.SummaryID == "" {
		m.SummaryID = uuid.NewString()
	}
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO memory_summaries (summary_id, user_id, scope_type, scope_identifier, summary_text, key_facts, source_data, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		m.SummaryID, m.UserID, m.ScopeType, m.ScopeIdentifier, m.SummaryText, m.KeyFacts, m.SourceData, embedding,
	).Scan(&m.CreatedAt)
}

func (s *SummaryStore) GetByScope(ctx context.Context, scopeType domain.ScopeType, scopeIdentifier string, userID string) ([]domain.MemorySummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+summaryColumns+` FROM memory_summaries
		 WHERE user_id = $1 AND scope_type = $2 AND scope_identifier = $3
		 ORDER BY created_at DESC`,
		userID, scopeType, scopeIdentifier,
	)
	if err != nil {
		return nil, fmt.Errorf("get by scope: %w", err)
	}
	defer rows.Close()

	var out []domain.MemorySummary
	for rows.Next() {
		var m domain.MemorySummary
		if err := rows.Scan(&m.SummaryID, &m.UserID, &m.ScopeType, &m.ScopeIdentifier, &m.SummaryText, &m.KeyFacts, &m.SourceData, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SummaryStore) FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]domain.SummaryWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx,
		`SELECT `+summaryColumns+`, 1 - (embedding <=> $1) AS score
		 FROM memory_summaries
		 WHERE user_id = $2 AND embedding IS NOT NULL
		 ORDER BY score DESC
		 LIMIT $3`,
		vec, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar summary: %w", err)
	}
	defer rows.Close()

	var out []domain.SummaryWithScore
	for rows.Next() {
		var sws domain.SummaryWithScore
		if err := rows.Scan(&sws.SummaryID, &sws.UserID, &sws.ScopeType, &sws.ScopeIdentifier, &sws.SummaryText, &sws.KeyFacts, &sws.SourceData, &sws.CreatedAt, &sws.Score); err != nil {
			return nil, err
		}
		out = append(out, sws)
	}
	return out, rows.Err()
}
