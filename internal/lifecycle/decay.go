// Package lifecycle implements the four operations that govern how a
// semantic memory's confidence and status change over time: passive
// decay, reinforcement, conflict resolution, and consolidation.
package lifecycle

import (
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
)

// EffectiveConfidence computes decay on read without mutating or
// persisting anything — the stored confidence value is never rewritten
// by the passage of time alone, only by Reinforce or Consolidate.
func EffectiveConfidence(m *domain.SemanticMemory, reg *registry.Registry, now time.Time) float64 {
	return m.EffectiveConfidence(now, reg.DecayPerDay())
}

// EffectiveStatus derives the display status a memory should be treated
// as having right now: a memory whose decayed confidence has fallen
// below the low-confidence threshold reads as aging even though its
// stored status is still active, without that transition being written
// back until something touches the row (a reinforcement, a conflict, a
// validation response).
func EffectiveStatus(m *domain.SemanticMemory, reg *registry.Registry, now time.Time) domain.MemoryStatus {
	if m.Status.IsTerminal() {
		return m.Status
	}
	if EffectiveConfidence(m, reg, now) < reg.LowConfidence() {
		return domain.StatusAging
	}
	return m.Status
}
