package retrieval

import (
	"fmt"
	"strings"

	"github.com/veyra-labs/memcore/internal/domain"
)

// evaluateProactiveNotices checks each candidate procedural memory's
// trigger predicates against the current facts and returns a notice for
// every one that fully matches.
func evaluateProactiveNotices(procedures []domain.ProceduralWithScore, facts []domain.DomainFact) []domain.ProactiveNotice {
	var notices []domain.ProactiveNotice
	for _, p := range procedures {
		for _, fact := range facts {
			if matchesAllPredicates(p.ActionStructure.Predicates, fact) {
				notices = append(notices, domain.ProactiveNotice{
					TriggerID:  p.MemoryID,
					NoticeText: p.ActionHeuristic,
					Priority:   p.Confidence * p.Score,
				})
				break
			}
		}
	}
	return notices
}

func matchesAllPredicates(predicates []domain.TriggerPredicate, fact domain.DomainFact) bool {
	if len(predicates) == 0 {
		return false
	}
	for _, pred := range predicates {
		if !matchesPredicate(pred, fact) {
			return false
		}
	}
	return true
}

func matchesPredicate(pred domain.TriggerPredicate, fact domain.DomainFact) bool {
	val, ok := fact.Content[pred.Field]
	if !ok {
		return false
	}
	switch pred.Operator {
	case domain.OpEquals:
		return fmt.Sprintf("%v", val) == fmt.Sprintf("%v", pred.Value)
	case domain.OpDaysUntil:
		days, ok1 := val.(float64)
		target, ok2 := pred.Value.(float64)
		return ok1 && ok2 && days <= target
	case domain.OpContains:
		s, ok1 := val.(string)
		needle, ok2 := pred.Value.(string)
		return ok1 && ok2 && strings.Contains(s, needle)
	default:
		return false
	}
}
