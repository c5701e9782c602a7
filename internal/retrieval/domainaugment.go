package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/domaindb"
)

// DomainAugmenter resolves an entity into DomainFacts by walking the
// ontology graph to relevant downstream tables (e.g.
// customer -> sales_orders -> work_orders -> invoices -> payments ->
// tasks) and flagging task-type facts with an SLA risk level.
type DomainAugmenter struct {
	exec   *domaindb.Executor
	walker *domaindb.Walker
	slaDays float64
	maxHops int
}

func NewDomainAugmenter(exec *domaindb.Executor, walker *domaindb.Walker, slaDays float64, maxHops int) *DomainAugmenter {
	return &DomainAugmenter{exec: exec, walker: walker, slaDays: slaDays, maxHops: maxHops}
}

// Augment produces DomainFacts for entity by walking to every
// interesting target type reachable within maxHops, tagging task facts
// with their SLA risk.
func (a *DomainAugmenter) Augment(ctx context.Context, entity *domain.CanonicalEntity, targetTypes []string) ([]domain.DomainFact, error) {
	if a.walker == nil || entity.ExternalRef == nil {
		return nil, nil
	}

	now := time.Now()
	var facts []domain.DomainFact

	for _, targetType := range targetTypes {
		path, ok := a.walker.ShortestPath(entity.EntityType, targetType, a.maxHops)
		if !ok {
			continue
		}
		query, params := domaindb.BuildJoinQuery(path, entity.ExternalRef.Table, primaryKeyColumn(entity.ExternalRef.Table), entity.ExternalRef.PrimaryKey)
		rows, err := a.exec.Query(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("augment via %s: %w", targetType, err)
		}
		for _, row := range rows {
			fact := domain.DomainFact{
				FactType:    targetType,
				EntityID:    entity.EntityID,
				Content:     row,
				SourceTable: targetType,
				SourceRows:  sourceRowIDs(row, targetType),
				RetrievedAt: now,
			}
			if targetType == "task" {
				fact.Risk = taskRisk(row, a.slaDays, now)
			}
			facts = append(facts, fact)
		}
	}
	return facts, nil
}

// targetTypePKColumn maps a fact's target entity type to the primary-key
// column its joined row carries, so a fact can record which row(s) it
// was built from for the provenance walk-back.
var targetTypePKColumn = map[string]string{
	"sales_order": "order_id",
	"work_order":  "work_order_id",
	"invoice":     "invoice_id",
	"payment":     "payment_id",
	"task":        "task_id",
}

// sourceRowIDs extracts the joined row's own primary key so the fact it
// produced can be traced back to a specific domain-DB row.
func sourceRowIDs(row domain.DomainRow, targetType string) []string {
	col, ok := targetTypePKColumn[targetType]
	if !ok {
		return nil
	}
	v, ok := row[col]
	if !ok || v == nil {
		return nil
	}
	return []string{fmt.Sprintf("%v", v)}
}

func primaryKeyColumn(table string) string {
	switch table {
	case "customers":
		return "customer_id"
	case "sales_orders":
		return "order_id"
	case "work_orders":
		return "work_order_id"
	case "invoices":
		return "invoice_id"
	case "payments":
		return "payment_id"
	case "tasks":
		return "task_id"
	default:
		return "id"
	}
}

// taskRisk flags a task row high/medium/low risk by comparing its age
// against the configured SLA window.
func taskRisk(row domain.DomainRow, slaDays float64, now time.Time) *domain.TaskRisk {
	createdAt, ok := row["created_at"].(time.Time)
	if !ok {
		return nil
	}
	ageDays := int(now.Sub(createdAt).Hours() / 24)

	risk := &domain.TaskRisk{AgeDays: ageDays}
	switch {
	case float64(ageDays) > slaDays:
		risk.Level = domain.RiskHigh
		risk.DaysOverdue = ageDays - int(slaDays)
	case float64(ageDays) > slaDays*0.8:
		risk.Level = domain.RiskMedium
	default:
		risk.Level = domain.RiskLow
	}
	return risk
}
