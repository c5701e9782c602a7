package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
)

// consolidationTimeout bounds the LLM summarization call; on expiry the
// fallback is a plain concatenation of episode summaries so consolidation
// never blocks indefinitely on a slow provider.
const consolidationTimeout = 8 * time.Second

// attenuationFactor is applied to source episodic memories once they are
// folded into a summary, so they fall below retrieval cutoffs without
// being deleted.
const attenuationFactor = 0.3

type ConsolidateService struct {
	episodic  domain.EpisodicStore
	semantic  domain.SemanticStore
	summaries domain.SummaryStore
	llm       domain.LLMClient
	embedder  domain.EmbeddingClient
	reg       *registry.Registry
}

func NewConsolidateService(episodic domain.EpisodicStore, semantic domain.SemanticStore, summaries domain.SummaryStore, llm domain.LLMClient, embedder domain.EmbeddingClient, reg *registry.Registry) *ConsolidateService {
	return &ConsolidateService{episodic: episodic, semantic: semantic, summaries: summaries, llm: llm, embedder: embedder, reg: reg}
}

// ShouldConsolidate reports whether enough episodic memories have
// accumulated within a scope to trigger consolidation, per the
// episode/session thresholds in the heuristic registry.
func (s *ConsolidateService) ShouldConsolidate(ctx context.Context, userID string, scopeType domain.ScopeType, scopeIdentifier string) (bool, error) {
	count, err := s.episodic.CountForScope(ctx, userID, scopeType, scopeIdentifier)
	if err != nil {
		return false, fmt.Errorf("count scope: %w", err)
	}
	threshold := s.reg.EpisodeThreshold()
	if scopeType == domain.ScopeSessionWindow {
		threshold = s.reg.SessionThreshold()
	}
	return count >= threshold, nil
}

// Consolidate synthesizes a MemorySummary over every episodic memory in
// scope, applies the consolidation confidence boost to semantic memories
// whose facts the summary restates consistently, and attenuates the
// importance of the source episodes.
func (s *ConsolidateService) Consolidate(ctx context.Context, userID string, scopeType domain.ScopeType, scopeIdentifier string) (*domain.MemorySummary, error) {
	episodes, err := s.episodic.GetForScope(ctx, userID, scopeType, scopeIdentifier, 0)
	if err != nil {
		return nil, fmt.Errorf("load scope episodes: %w", err)
	}
	if len(episodes) == 0 {
		return nil, nil
	}

	related, err := s.relatedSemanticMemories(ctx, userID, episodes)
	if err != nil {
		return nil, err
	}

	summaryText := s.summarize(ctx, episodes, related)
	keyFacts := buildKeyFacts(related)

	episodeIDs := make([]string, len(episodes))
	for i, e := range episodes {
		episodeIDs[i] = e.MemoryID
	}
	semanticIDs := make([]string, len(related))
	for i, m := range related {
		semanticIDs[i] = m.MemoryID
	}

	summary := &domain.MemorySummary{
		UserID:          userID,
		ScopeType:       scopeType,
		ScopeIdentifier: scopeIdentifier,
		SummaryText:     summaryText,
		KeyFacts:        keyFacts,
		SourceData:      domain.SourceData{EpisodicIDs: episodeIDs, SemanticIDs: semanticIDs},
	}
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, summaryText); err == nil {
			summary.Embedding = vec
		}
	}
	if err := s.summaries.Create(ctx, summary); err != nil {
		return nil, fmt.Errorf("persist summary: %w", err)
	}

	if err := s.applyConsolidationBoost(ctx, related, keyFacts); err != nil {
		return nil, err
	}
	if err := s.episodic.AttenuateImportance(ctx, episodeIDs, attenuationFactor); err != nil {
		return nil, fmt.Errorf("attenuate source episodes: %w", err)
	}

	return summary, nil
}

func (s *ConsolidateService) relatedSemanticMemories(ctx context.Context, userID string, episodes []domain.EpisodicMemory) ([]domain.SemanticMemory, error) {
	seen := map[string]bool{}
	var entityIDs []string
	for _, e := range episodes {
		for _, id := range e.Entities {
			if !seen[id] {
				seen[id] = true
				entityIDs = append(entityIDs, id)
			}
		}
	}
	if len(entityIDs) == 0 {
		return nil, nil
	}
	return s.semantic.FindByEntities(ctx, entityIDs, userID, 0)
}

func (s *ConsolidateService) summarize(ctx context.Context, episodes []domain.EpisodicMemory, related []domain.SemanticMemory) string {
	var sb strings.Builder
	for i, e := range episodes {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, e.Summary)
	}

	if s.llm == nil {
		return fallbackSummary(episodes)
	}

	prompt := fmt.Sprintf("Summarize the following related events into a short paragraph:\n%s", sb.String())
	text, err := s.llm.Complete(ctx, prompt, 256, consolidationTimeout)
	if err != nil || text == "" {
		return fallbackSummary(episodes)
	}
	return text
}

func fallbackSummary(episodes []domain.EpisodicMemory) string {
	parts := make([]string, len(episodes))
	for i, e := range episodes {
		parts[i] = e.Summary
	}
	return strings.Join(parts, " ")
}

func buildKeyFacts(related []domain.SemanticMemory) []domain.KeyFact {
	facts := make([]domain.KeyFact, 0, len(related))
	for _, m := range related {
		facts = append(facts, domain.KeyFact{
			Text:             m.OriginalText,
			Confidence:       m.Confidence,
			SemanticMemoryID: m.MemoryID,
		})
	}
	return facts
}

// applyConsolidationBoost adds a flat confidence bump, clamped at
// MaxConfidence, to every semantic memory that the summary restated
// consistently (i.e. every memory in keyFacts — inconsistent restatements
// are filtered out by relatedSemanticMemories never surfacing superseded
// or invalidated memories in the first place).
func (s *ConsolidateService) applyConsolidationBoost(ctx context.Context, related []domain.SemanticMemory, keyFacts []domain.KeyFact) error {
	boost := s.reg.ConsolidationBoost()
	for i := range related {
		m := related[i]
		m.Confidence += boost
		if m.Confidence > s.reg.MaxConfidence() {
			m.Confidence = s.reg.MaxConfidence()
		}
		m.ConfidenceFactors.ConsolidationSum += boost
		if err := s.semantic.Update(ctx, &m); err != nil && err != domain.ErrStaleWrite {
			return fmt.Errorf("apply consolidation boost to %s: %w", m.MemoryID, err)
		}
	}
	return nil
}
