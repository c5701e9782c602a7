// Package domaindb provides read-only access to the authoritative
// business database (customers, sales_orders, work_orders, invoices,
// payments, tasks): the single source of truth memory is checked
// against, never written to.
package domaindb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veyra-labs/memcore/internal/domain"
)

// Executor implements domain.DomainDB against a Postgres pool that is
// expected to be opened with a read-only role; nothing here issues a
// write statement.
type Executor struct {
	db *pgxpool.Pool
}

func NewExecutor(db *pgxpool.Pool) *Executor {
	return &Executor{db: db}
}

func (e *Executor) Query(ctx context.Context, query string, params ...any) ([]domain.DomainRow, error) {
	rows, err := e.db.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("domain db query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []domain.DomainRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan domain row: %w", err)
		}
		row := make(domain.DomainRow, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetOne is a convenience wrapper for lookups expected to return at most
// one row, mapping pgx.ErrNoRows to domain.ErrNotFound the same way the
// memory stores do.
func (e *Executor) GetOne(ctx context.Context, query string, params ...any) (domain.DomainRow, error) {
	rows, err := e.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}
