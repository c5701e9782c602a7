package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veyra-labs/memcore/internal/domain"
)

type ConflictStore struct {
	db *pgxpool.Pool
}

func NewConflictStore(db *pgxpool.Pool) *ConflictStore {
	return &ConflictStore{db: db}
}

const conflictColumns = `conflict_id, conflict_type, conflict_data, resolution_strategy, resolution_outcome, detected_at, resolved_at`

func (s *ConflictStore) Create(ctx context.Context, c *domain.MemoryConflict) error {
	if c.ConflictID == "" {
		c.ConflictID = uuid.NewString()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO memory_conflicts (conflict_id, conflict_type, conflict_data)
		 VALUES ($1, $2, $3)
		 RETURNING detected_at`,
		c.ConflictID, c.ConflictType, c.ConflictData,
	).Scan(&c.DetectedAt)
}

func (s *ConflictStore) Update(ctx context.Context, c *domain.MemoryConflict) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memory_conflicts SET resolution_strategy = $1, resolution_outcome = $2, resolved_at = NOW()
		 WHERE conflict_id = $3`,
		c.ResolutionStrategy, c.ResolutionOutcome, c.ConflictID,
	)
	if err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *ConflictStore) GetByID(ctx context.Context, conflictID string) (*domain.MemoryConflict, error) {
	c := &domain.MemoryConflict{}
	err := s.db.QueryRow(ctx, `SELECT `+conflictColumns+` FROM memory_conflicts WHERE conflict_id = $1`, conflictID).
		Scan(&c.ConflictID, &c.ConflictType, &c.ConflictData, &c.ResolutionStrategy, &c.ResolutionOutcome, &c.DetectedAt, &c.ResolvedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}
