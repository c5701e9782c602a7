// Package retrieval assembles a ReplyContext for one turn's query:
// mention resolution, parallel candidate generation across memory
// layers, multi-signal scoring, domain augmentation via ontology
// traversal, proactive notices, validation prompts, and PII redaction.
package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/lifecycle"
	"github.com/veyra-labs/memcore/internal/registry"
)

// candidate is an internal, layer-tagged memory before scoring.
type candidate struct {
	layer               domain.MemoryLayer
	memoryID            string
	originalText        string
	similarity          float64
	entities            []string
	createdAt           time.Time
	lastValidatedAt     time.Time
	importance          float64
	reinforcementCount  int
	effectiveConfidence float64
	provenance          domain.Provenance
}

// scoreCandidates computes the five-signal breakdown for each candidate
// against the query entities, combines them with the named strategy's
// weights, and returns the top-k by combined score (ties broken by
// effective confidence, then by recency, then by memory ID).
func scoreCandidates(cands []candidate, queryEntities []string, reg *registry.Registry, strategy string, now time.Time) []domain.ScoredResult {
	weights := reg.Weights(strategy)
	halflife := reg.RecencyHalflifeDays()

	out := make([]domain.ScoredResult, 0, len(cands))
	for _, c := range cands {
		breakdown := domain.SignalBreakdown{
			Semantic:      clamp01(c.similarity),
			Entity:        entityOverlap(c.entities, queryEntities),
			Temporal:      temporalRelevance(c.createdAt, now, halflife),
			Importance:    clamp01(c.importance),
			Reinforcement: reinforcementSignal(c.reinforcementCount),
		}
		combined := weights.Semantic*breakdown.Semantic +
			weights.Entity*breakdown.Entity +
			weights.Recency*breakdown.Temporal +
			weights.Importance*breakdown.Importance +
			weights.Reinforcement*breakdown.Reinforcement

		out = append(out, domain.ScoredResult{
			MemoryID:            c.memoryID,
			Layer:               c.layer,
			OriginalText:        c.originalText,
			EffectiveConfidence: c.effectiveConfidence,
			Score:               combined,
			SignalBreakdown:      breakdown,
			Provenance:          c.provenance,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].EffectiveConfidence != out[j].EffectiveConfidence {
			return out[i].EffectiveConfidence > out[j].EffectiveConfidence
		}
		if out[i].SignalBreakdown.Temporal != out[j].SignalBreakdown.Temporal {
			return out[i].SignalBreakdown.Temporal > out[j].SignalBreakdown.Temporal
		}
		return out[i].MemoryID < out[j].MemoryID
	})

	topK := reg.TopK()
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func entityOverlap(candidateEntities, queryEntities []string) float64 {
	if len(queryEntities) == 0 {
		return 0
	}
	set := make(map[string]bool, len(queryEntities))
	for _, e := range queryEntities {
		set[e] = true
	}
	hits := 0
	for _, e := range candidateEntities {
		if set[e] {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(queryEntities)))
}

// temporalRelevance applies exponential recency decay: exp(-age_days /
// halflife). This isn't true half-life decay (that would scale age by
// ln2/halflife) — it's the plain exponential the heuristic registry's
// recency_halflife_days value was chosen against, so changing the
// exponent's shape here would silently redefine what that config value
// means.
func temporalRelevance(createdAt, now time.Time, halflifeDays float64) float64 {
	if halflifeDays <= 0 {
		return 1
	}
	days := now.Sub(createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return clamp01(math.Exp(-days / halflifeDays))
}

// reinforcementSignal scales linearly up to a count of 5, past which a
// memory is considered maximally reinforced for scoring purposes.
func reinforcementSignal(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(float64(count) / 5.0)
}

// effectiveConfidenceOf is a small adapter so scoring never needs to
// import lifecycle types directly into candidate construction call
// sites outside this package.
func effectiveConfidenceOf(m *domain.SemanticMemory, reg *registry.Registry, now time.Time) float64 {
	return lifecycle.EffectiveConfidence(m, reg, now)
}
