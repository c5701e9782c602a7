package domaindb

import (
	"context"
	"fmt"

	"github.com/veyra-labs/memcore/internal/domain"
)

// entityTypeTable maps an entity type hint to the domain table and its
// human-readable name column, used by the resolver's lazy-create stage.
var entityTypeTable = map[string]struct {
	table      string
	pkColumn   string
	nameColumn string
}{
	"customer":    {"customers", "customer_id", "name"},
	"sales_order": {"sales_orders", "order_id", "order_number"},
	"work_order":  {"work_orders", "work_order_id", "description"},
	"invoice":     {"invoices", "invoice_id", "invoice_number"},
	"payment":     {"payments", "payment_id", "reference"},
	"task":        {"tasks", "task_id", "title"},
}

// Lookup implements resolver.DomainLookup against the read-only
// executor, matching a mention to a row by case-insensitive substring on
// the entity type's display-name column.
type Lookup struct {
	exec *Executor
}

func NewLookup(exec *Executor) *Lookup {
	return &Lookup{exec: exec}
}

func (l *Lookup) FindCandidate(ctx context.Context, entityType, mention string) (table string, primaryKey string, displayName string, ok bool, err error) {
	spec, known := entityTypeTable[entityType]
	if !known {
		return "", "", "", false, nil
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s ILIKE $1 LIMIT 1`, spec.pkColumn, spec.nameColumn, spec.table, spec.nameColumn)
	row, err := l.exec.GetOne(ctx, query, "%"+mention+"%")
	if err == domain.ErrNotFound {
		return "", "", "", false, nil
	}
	if err != nil {
		return "", "", "", false, fmt.Errorf("find domain candidate: %w", err)
	}

	pk := fmt.Sprintf("%v", row[spec.pkColumn])
	name := fmt.Sprintf("%v", row[spec.nameColumn])
	return spec.table, pk, name, true, nil
}
