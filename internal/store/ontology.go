package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veyra-labs/memcore/internal/domain"
)

type OntologyStore struct {
	db *pgxpool.Pool
}

func NewOntologyStore(db *pgxpool.Pool) *OntologyStore {
	return &OntologyStore{db: db}
}

const ontologyColumns = `from_entity_type, to_entity_type, relation_type, from_table, from_field, to_table, to_field, cardinality`

func (s *OntologyStore) scan(rows interface{ Scan(...any) error }) (domain.DomainOntology, error) {
	var o domain.DomainOntology
	err := rows.Scan(&o.FromEntityType, &o.ToEntityType, &o.RelationType,
		&o.JoinSpec.FromTable, &o.JoinSpec.FromField, &o.JoinSpec.ToTable, &o.JoinSpec.ToField, &o.Cardinality)
	return o, err
}

func (s *OntologyStore) All(ctx context.Context) ([]domain.DomainOntology, error) {
	rows, err := s.db.Query(ctx, `SELECT `+ontologyColumns+` FROM domain_ontology`)
	if err != nil {
		return nil, fmt.Errorf("list ontology: %w", err)
	}
	defer rows.Close()

	var out []domain.DomainOntology
	for rows.Next() {
		o, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OntologyStore) From(ctx context.Context, entityType string) ([]domain.DomainOntology, error) {
	rows, err := s.db.Query(ctx, `SELECT `+ontologyColumns+` FROM domain_ontology WHERE from_entity_type = $1`, entityType)
	if err != nil {
		return nil, fmt.Errorf("ontology edges from %s: %w", entityType, err)
	}
	defer rows.Close()

	var out []domain.DomainOntology
	for rows.Next() {
		o, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
