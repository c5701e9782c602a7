package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/veyra-labs/memcore/internal/domain"
)

type ProceduralStore struct {
	db *pgxpool.Pool
}

func NewProceduralStore(db *pgxpool.Pool) *ProceduralStore {
	return &ProceduralStore{db: db}
}

const proceduralColumns = `memory_id, user_id, trigger_pattern, trigger_features, action_heuristic, action_structure, confidence, observed_count, created_at, updated_at`

func (s *ProceduralStore) Create(ctx context.Context, m *domain.ProceduralMemory) error {
	if m.MemoryID == "" {
		m.MemoryID = uuid.NewString()
	}
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO procedural_memories (memory_id, user_id, trigger_pattern, trigger_features, action_heuristic, action_structure, embedding, confidence, observed_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		m.MemoryID, m.UserID, m.TriggerPattern, m.TriggerFeatures, m.ActionHeuristic, m.ActionStructure, embedding, m.Confidence, m.ObservedCount,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (s *ProceduralStore) FindSimilar(ctx context.Context, embedding []float32, limit int, userID string) ([]domain.ProceduralWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx,
		`SELECT `+proceduralColumns+`, 1 - (embedding <=> $1) AS score
		 FROM procedural_memories
		 WHERE user_id = $2 AND embedding IS NOT NULL
		 ORDER BY score DESC
		 LIMIT $3`,
		vec, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar procedural: %w", err)
	}
	defer rows.Close()

	var out []domain.ProceduralWithScore
	for rows.Next() {
		var pws domain.ProceduralWithScore
		if err := rows.Scan(&pws.MemoryID, &pws.UserID, &pws.TriggerPattern, &pws.TriggerFeatures, &pws.ActionHeuristic,
			&pws.ActionStructure, &pws.Confidence, &pws.ObservedCount, &pws.CreatedAt, &pws.UpdatedAt, &pws.Score); err != nil {
			return nil, err
		}
		out = append(out, pws)
	}
	return out, rows.Err()
}

func (s *ProceduralStore) Update(ctx context.Context, m *domain.ProceduralMemory) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE procedural_memories SET confidence = $1, observed_count = $2, updated_at = NOW() WHERE memory_id = $3`,
		m.Confidence, m.ObservedCount, m.MemoryID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
