package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
)

type ConflictService struct {
	semantic  domain.SemanticStore
	conflicts domain.ConflictStore
}

func NewConflictService(semantic domain.SemanticStore, conflicts domain.ConflictStore) *ConflictService {
	return &ConflictService{semantic: semantic, conflicts: conflicts}
}

// reinforcementRatioThreshold is the "more than 2x" bar from the
// strategy rule: trust_reinforced only wins when one side has clearly
// more corroboration, not a narrow lead.
const reinforcementRatioThreshold = 2.0

// ResolveMemoryVsDB always trusts the domain database: the authoritative
// row wins, and the memory recording the stale claim is marked
// invalidated. A new semantic memory capturing the corrected value is
// left for the caller to create (the extractor owns writing semantic
// memories), so this invalidates the old one and records the trust_db
// resolution on the conflict, nothing else.
func (s *ConflictService) ResolveMemoryVsDB(ctx context.Context, conflict *domain.MemoryConflict, stale *domain.SemanticMemory) error {
	stale.Status = domain.StatusInvalidated
	if err := s.semantic.Update(ctx, stale); err != nil {
		return fmt.Errorf("invalidate stale memory: %w", err)
	}

	strategy := domain.StrategyTrustDB
	outcome := domain.ResolutionOutcome{
		WinnerID:  "domain_db:" + conflict.ConflictData.DBTable,
		LoserID:   stale.MemoryID,
		Rationale: "domain database is authoritative over memory_vs_db conflicts",
	}
	return s.finalize(ctx, conflict, strategy, outcome)
}

// ResolveMemoryVsMemory picks between two conflicting semantic memories:
// whichever has more than 2x the other's reinforcement count wins
// (trust_reinforced); otherwise the more recently validated one wins
// (trust_recent). ask_user is a reserved strategy value this resolver
// never selects automatically.
func (s *ConflictService) ResolveMemoryVsMemory(ctx context.Context, conflict *domain.MemoryConflict, a, b *domain.SemanticMemory) error {
	winner, loser, strategy, rationale := pickWinner(a, b)

	loser.Status = domain.StatusSuperseded
	loser.SupersededByMemoryID = winner.MemoryID
	if err := s.semantic.Update(ctx, loser); err != nil {
		return fmt.Errorf("supersede losing memory: %w", err)
	}

	outcome := domain.ResolutionOutcome{WinnerID: winner.MemoryID, LoserID: loser.MemoryID, Rationale: rationale}
	return s.finalize(ctx, conflict, strategy, outcome)
}

func pickWinner(a, b *domain.SemanticMemory) (winner, loser *domain.SemanticMemory, strategy domain.ResolutionStrategy, rationale string) {
	ra, rb := float64(a.ReinforcementCount), float64(b.ReinforcementCount)

	if ra > 0 && ra/max1(rb) > reinforcementRatioThreshold {
		return a, b, domain.StrategyTrustReinforced, fmt.Sprintf("%d reinforcements vs %d, exceeds 2x margin", a.ReinforcementCount, b.ReinforcementCount)
	}
	if rb > 0 && rb/max1(ra) > reinforcementRatioThreshold {
		return b, a, domain.StrategyTrustReinforced, fmt.Sprintf("%d reinforcements vs %d, exceeds 2x margin", b.ReinforcementCount, a.ReinforcementCount)
	}

	if a.LastValidatedAt.After(b.LastValidatedAt) {
		return a, b, domain.StrategyTrustRecent, "more recently validated, no reinforcement margin"
	}
	return b, a, domain.StrategyTrustRecent, "more recently validated, no reinforcement margin"
}

func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// finalize writes the resolution onto the conflict record. resolvedAt is
// always after detectedAt, keeping supersession bookkeeping forward in
// time even when a memory's own timestamps are backdated by ingest
// metadata.
func (s *ConflictService) finalize(ctx context.Context, conflict *domain.MemoryConflict, strategy domain.ResolutionStrategy, outcome domain.ResolutionOutcome) error {
	conflict.ResolutionStrategy = &strategy
	conflict.ResolutionOutcome = &outcome
	now := time.Now()
	conflict.ResolvedAt = &now

	if err := s.conflicts.Update(ctx, conflict); err != nil {
		return fmt.Errorf("persist conflict resolution: %w", err)
	}
	return nil
}
