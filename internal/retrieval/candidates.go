package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
)

// gatherCandidates runs semantic, episodic, summary similarity search and
// an entity-scoped lookup concurrently — each layer is independent, so
// one slow query never blocks the others.
func (r *Retriever) gatherCandidates(ctx context.Context, q domain.Query, entityIDs []string, embedding []float32, now time.Time) ([]candidate, error) {
	var (
		semantic []domain.SemanticWithScore
		episodic []domain.EpisodicWithScore
		summary  []domain.SummaryWithScore
		byEntity []domain.SemanticMemory
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := r.reg.TopK() * 3
	if limit <= 0 {
		limit = 30
	}

	g.Go(func() error {
		var err error
		semantic, err = r.semantic.FindSimilar(gctx, embedding, limit, domain.SemanticFilters{
			UserID: q.UserID,
			Status: []domain.MemoryStatus{domain.StatusActive, domain.StatusAging},
		})
		if err != nil {
			return fmt.Errorf("semantic similarity: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		episodic, err = r.episodic.FindSimilar(gctx, embedding, limit, q.UserID)
		if err != nil {
			return fmt.Errorf("episodic similarity: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		summary, err = r.summaries.FindSimilar(gctx, embedding, limit, q.UserID)
		if err != nil {
			return fmt.Errorf("summary similarity: %w", err)
		}
		return nil
	})
	if len(entityIDs) > 0 {
		g.Go(func() error {
			var err error
			byEntity, err = r.semantic.FindByEntities(gctx, entityIDs, q.UserID, limit)
			if err != nil {
				return fmt.Errorf("find by entities: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &domain.ResourceExhaustion{Resource: "memory store", Cause: err}
	}

	var out []candidate
	seen := map[string]bool{}

	for _, s := range semantic {
		out = append(out, semanticCandidate(s.SemanticMemory, s.Score, r.reg, now))
		seen[s.MemoryID] = true
	}
	for _, m := range byEntity {
		if seen[m.MemoryID] {
			continue
		}
		out = append(out, semanticCandidate(m, 0, r.reg, now))
		seen[m.MemoryID] = true
	}
	for _, e := range episodic {
		out = append(out, candidate{
			layer:               domain.LayerEpisodic,
			memoryID:            e.MemoryID,
			originalText:        e.Summary,
			similarity:          e.Score,
			entities:            e.Entities,
			createdAt:           e.CreatedAt,
			lastValidatedAt:     e.CreatedAt,
			importance:          e.Importance,
			effectiveConfidence: e.Importance,
			provenance:          domain.Provenance{MemoryID: e.MemoryID, ExtractedFromEventID: e.SourceEventID},
		})
	}
	for _, s := range summary {
		out = append(out, candidate{
			layer:               domain.LayerSummary,
			memoryID:            s.MemoryID,
			originalText:        s.SummaryText,
			similarity:          s.Score,
			createdAt:           s.CreatedAt,
			lastValidatedAt:     s.CreatedAt,
			importance:          0.5,
			effectiveConfidence: 0.5,
			provenance:          domain.Provenance{MemoryID: s.MemoryID},
		})
	}

	return out, nil
}

func semanticCandidate(m domain.SemanticMemory, similarity float64, reg *registry.Registry, now time.Time) candidate {
	return candidate{
		layer:               domain.LayerSemantic,
		memoryID:            m.MemoryID,
		originalText:        m.OriginalText,
		similarity:          similarity,
		entities:            append([]string{m.SubjectEntityID}, m.RelatedEntities...),
		createdAt:           m.CreatedAt,
		lastValidatedAt:     m.LastValidatedAt,
		importance:          m.Confidence,
		reinforcementCount:  m.ReinforcementCount,
		effectiveConfidence: effectiveConfidenceOf(&m, reg, now),
		provenance:          domain.Provenance{MemoryID: m.MemoryID, ExtractedFromEventID: m.ExtractedFromEventID, SourceMemoryID: m.SourceMemoryID},
	}
}
