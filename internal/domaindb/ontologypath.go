package domaindb

import (
	"context"
	"fmt"

	"github.com/veyra-labs/memcore/internal/domain"
)

// Path is one walked sequence of ontology edges from a starting entity
// type to a target entity type.
type Path struct {
	Edges []domain.DomainOntology
}

// Walker performs BFS over the declared relationship graph to find the
// shortest chain of joins from one entity type to another, bounded by
// maxHops.
type Walker struct {
	store  domain.OntologyStore
	byFrom map[string][]domain.DomainOntology
}

func NewWalker(ctx context.Context, store domain.OntologyStore) (*Walker, error) {
	edges, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ontology: %w", err)
	}
	byFrom := make(map[string][]domain.DomainOntology)
	for _, e := range edges {
		byFrom[e.FromEntityType] = append(byFrom[e.FromEntityType], e)
	}
	return &Walker{store: store, byFrom: byFrom}, nil
}

// ShortestPath finds the fewest-hop chain of edges from fromType to
// toType, or (nil, false) if none exists within maxHops.
func (w *Walker) ShortestPath(fromType, toType string, maxHops int) (*Path, bool) {
	if fromType == toType {
		return &Path{}, true
	}

	type frontierEntry struct {
		entityType string
		path       []domain.DomainOntology
	}
	visited := map[string]bool{fromType: true}
	queue := []frontierEntry{{entityType: fromType}}

	for hop := 0; hop < maxHops && len(queue) > 0; hop++ {
		var next []frontierEntry
		for _, cur := range queue {
			for _, edge := range w.byFrom[cur.entityType] {
				if visited[edge.ToEntityType] {
					continue
				}
				path := append(append([]domain.DomainOntology{}, cur.path...), edge)
				if edge.ToEntityType == toType {
					return &Path{Edges: path}, true
				}
				visited[edge.ToEntityType] = true
				next = append(next, frontierEntry{entityType: edge.ToEntityType, path: path})
			}
		}
		queue = next
	}
	return nil, false
}

// BuildJoinQuery compiles a Path into a SQL query that starts from the
// root table's primary key and joins across every edge, selecting every
// column of every joined table with SELECT *; columns that share a name
// across tables are not qualified or renamed.
func BuildJoinQuery(path *Path, rootTable, rootField string, rootPK any) (string, []any) {
	if len(path.Edges) == 0 {
		return fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1`, rootTable, rootField), []any{rootPK}
	}

	query := fmt.Sprintf("SELECT * FROM %s", path.Edges[0].JoinSpec.FromTable)
	for _, edge := range path.Edges {
		j := edge.JoinSpec
		query += fmt.Sprintf(" JOIN %s ON %s.%s = %s.%s", j.ToTable, j.FromTable, j.FromField, j.ToTable, j.ToField)
	}
	query += fmt.Sprintf(" WHERE %s.%s = $1", rootTable, rootField)
	return query, []any{rootPK}
}
