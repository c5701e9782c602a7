package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/veyra-labs/memcore/internal/domain"
)

// SemanticStore is the Postgres-backed implementation of the semantic
// memory layer, the richest of the memory layers this module persists.
type SemanticStore struct {
	db *pgxpool.Pool
}

func NewSemanticStore(db *pgxpool.Pool) *SemanticStore {
	return &SemanticStore{db: db}
}

const semanticColumns = `memory_id, user_id, subject_entity_id, predicate, predicate_type, object_value, original_text, source_text, related_entities, confidence, confidence_factors, reinforcement_count, status, last_validated_at, extracted_from_event_id, source_memory_id, superseded_by_memory_id, created_at, updated_at`

func scanSemantic(row interface{ Scan(...any) error }) (*domain.SemanticMemory, error) {
	m := &domain.SemanticMemory{}
	var sourceMemoryID, supersededBy, extractedFrom *string
	err := row.Scan(&m.MemoryID, &m.UserID, &m.SubjectEntityID, &m.Predicate, &m.PredicateType, &m.ObjectValue,
		&m.OriginalText, &m.SourceText, &m.RelatedEntities, &m.Confidence, &m.ConfidenceFactors, &m.ReinforcementCount,
		&m.Status, &m.LastValidatedAt, &extractedFrom, &sourceMemoryID, &supersededBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if extractedFrom != nil {
		m.ExtractedFromEventID = *extractedFrom
	}
	if sourceMemoryID != nil {
		m.SourceMemoryID = *sourceMemoryID
	}
	if supersededBy != nil {
		m.SupersededByMemoryID = *supersededBy
	}
	return m, nil
}

func (s *SemanticStore) Create(ctx context.Context, m *domain.SemanticMemory) error {
	if m.MemoryID == "" {
		m.MemoryID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = domain.StatusActive
	}
	if m.ReinforcementCount == 0 {
		m.ReinforcementCount = 1
	}

	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO semantic_memories (memory_id, user_id, subject_entity_id, predicate, predicate_type, object_value, original_text, source_text, related_entities, embedding, confidence, confidence_factors, reinforcement_count, status, last_validated_at, extracted_from_event_id, source_memory_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), $15, $16)
		 RETURNING created_at, updated_at, last_validated_at`,
		m.MemoryID, m.UserID, m.SubjectEntityID, m.Predicate, m.PredicateType, m.ObjectValue, m.OriginalText,
		m.SourceText, m.RelatedEntities, embedding, m.Confidence, m.ConfidenceFactors, m.ReinforcementCount,
		m.Status, nullIfEmpty(m.ExtractedFromEventID), nullIfEmpty(m.SourceMemoryID),
	).Scan(&m.CreatedAt, &m.UpdatedAt, &m.LastValidatedAt)
}

func (s *SemanticStore) GetByID(ctx context.Context, memoryID string) (*domain.SemanticMemory, error) {
	row := s.db.QueryRow(ctx, `SELECT `+semanticColumns+` FROM semantic_memories WHERE memory_id = $1`, memoryID)
	m, err := scanSemantic(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return m, nil
}

func (s *SemanticStore) FindBySubjectPredicate(ctx context.Context, subjectID, predicate, userID string) ([]domain.SemanticMemory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memories
		 WHERE subject_entity_id = $1 AND predicate = $2 AND user_id = $3 AND status = 'active'
		 ORDER BY created_at DESC`,
		subjectID, predicate, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("find by subject/predicate: %w", err)
	}
	defer rows.Close()

	var out []domain.SemanticMemory
	for rows.Next() {
		m, err := scanSemantic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SemanticStore) FindSimilar(ctx context.Context, embedding []float32, limit int, filters domain.SemanticFilters) ([]domain.SemanticWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)

	var conditions []string
	var args []any
	args = append(args, vec)
	conditions = append(conditions, "embedding IS NOT NULL")

	if filters.UserID != "" {
		args = append(args, filters.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filters.SubjectEntity != "" {
		args = append(args, filters.SubjectEntity)
		conditions = append(conditions, fmt.Sprintf("subject_entity_id = $%d", len(args)))
	}
	if len(filters.Status) > 0 {
		args = append(args, statusStrings(filters.Status))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	args = append(args, limit)
	limitParam := len(args)

	query := fmt.Sprintf(
		`SELECT %s, 1 - (embedding <=> $1) AS score
		 FROM semantic_memories
		 WHERE %s
		 ORDER BY score DESC
		 LIMIT $%d`,
		semanticColumns, strings.Join(conditions, " AND "), limitParam,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find similar semantic: %w", err)
	}
	defer rows.Close()

	var out []domain.SemanticWithScore
	for rows.Next() {
		var sws domain.SemanticWithScore
		m, err := scanSemanticWithScore(rows, &sws)
		if err != nil {
			return nil, err
		}
		sws = *m
		out = append(out, sws)
	}
	return out, rows.Err()
}

// scanSemanticWithScore scans the semantic columns plus a trailing score
// column into a SemanticWithScore; `target` is unused beyond type
// inference convenience for callers that pre-declare the var.
func scanSemanticWithScore(row interface{ Scan(...any) error }, target *domain.SemanticWithScore) (*domain.SemanticWithScore, error) {
	m := &domain.SemanticMemory{}
	var sourceMemoryID, supersededBy, extractedFrom *string
	var score float64
	err := row.Scan(&m.MemoryID, &m.UserID, &m.SubjectEntityID, &m.Predicate, &m.PredicateType, &m.ObjectValue,
		&m.OriginalText, &m.SourceText, &m.RelatedEntities, &m.Confidence, &m.ConfidenceFactors, &m.ReinforcementCount,
		&m.Status, &m.LastValidatedAt, &extractedFrom, &sourceMemoryID, &supersededBy, &m.CreatedAt, &m.UpdatedAt, &score)
	if err != nil {
		return nil, fmt.Errorf("scan semantic with score: %w", err)
	}
	if extractedFrom != nil {
		m.ExtractedFromEventID = *extractedFrom
	}
	if sourceMemoryID != nil {
		m.SourceMemoryID = *sourceMemoryID
	}
	if supersededBy != nil {
		m.SupersededByMemoryID = *supersededBy
	}
	return &domain.SemanticWithScore{SemanticMemory: *m, Score: score}, nil
}

func statusStrings(statuses []domain.MemoryStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (s *SemanticStore) FindReinforcements(ctx context.Context, subjectID, predicate, excludeID string) ([]domain.SemanticMemory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memories
		 WHERE subject_entity_id = $1 AND predicate = $2 AND memory_id != $3 AND status IN ('active', 'aging')
		 ORDER BY created_at DESC`,
		subjectID, predicate, excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("find reinforcements: %w", err)
	}
	defer rows.Close()

	var out []domain.SemanticMemory
	for rows.Next() {
		m, err := scanSemantic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SemanticStore) FindByEntities(ctx context.Context, entityIDs []string, userID string, limit int) ([]domain.SemanticMemory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+semanticColumns+` FROM semantic_memories
		 WHERE user_id = $1 AND status IN ('active', 'aging')
		   AND (subject_entity_id = ANY($2) OR related_entities && $2)
		 ORDER BY confidence DESC, created_at DESC
		 LIMIT $3`,
		userID, entityIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find by entities: %w", err)
	}
	defer rows.Close()

	var out []domain.SemanticMemory
	for rows.Next() {
		m, err := scanSemantic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Update performs an optimistic update keyed on (memory_id, updated_at):
// the write only applies if updated_at still matches what the caller read,
// otherwise ErrStaleWrite is returned (ReinforceService retries once on it).
func (s *SemanticStore) Update(ctx context.Context, m *domain.SemanticMemory) error {
	prevUpdatedAt := m.UpdatedAt

	tag, err := s.db.Exec(ctx,
		`UPDATE semantic_memories SET
		   confidence = $1, confidence_factors = $2, reinforcement_count = $3, status = $4,
		   last_validated_at = $5, superseded_by_memory_id = $6, updated_at = NOW()
		 WHERE memory_id = $7 AND updated_at = $8`,
		m.Confidence, m.ConfidenceFactors, m.ReinforcementCount, m.Status, m.LastValidatedAt,
		nullIfEmpty(m.SupersededByMemoryID), m.MemoryID, prevUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update semantic memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleWrite
	}
	return nil
}
