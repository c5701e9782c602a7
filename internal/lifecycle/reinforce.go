package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/veyra-labs/memcore/internal/domain"
	"github.com/veyra-labs/memcore/internal/registry"
)

type ReinforceService struct {
	semantic domain.SemanticStore
	reg      *registry.Registry
}

func NewReinforceService(semantic domain.SemanticStore, reg *registry.Registry) *ReinforceService {
	return &ReinforceService{semantic: semantic, reg: reg}
}

// Reinforce applies the diminishing-returns schedule: the Nth
// reinforcement of a memory (1-indexed) adds schedule[min(N-1,
// len(schedule)-1)] to confidence, clamped at MaxConfidence. On a stale
// write it reloads and retries exactly once, then gives up and returns
// ErrStaleWrite to the caller.
func (s *ReinforceService) Reinforce(ctx context.Context, memoryID string) (*domain.SemanticMemory, error) {
	for attempt := 0; attempt < 2; attempt++ {
		m, err := s.semantic.GetByID(ctx, memoryID)
		if err != nil {
			return nil, fmt.Errorf("load memory to reinforce: %w", err)
		}

		schedule := s.reg.ReinforcementSchedule()
		idx := m.ReinforcementCount
		if idx >= len(schedule) {
			idx = len(schedule) - 1
		}
		if idx < 0 {
			idx = 0
		}
		delta := schedule[idx]

		m.Confidence += delta
		if m.Confidence > s.reg.MaxConfidence() {
			m.Confidence = s.reg.MaxConfidence()
		}
		m.ConfidenceFactors.ReinforcementSum += delta
		m.ReinforcementCount++
		m.LastValidatedAt = time.Now()
		if m.Status == domain.StatusAging {
			m.Status = domain.StatusActive
		}

		err = s.semantic.Update(ctx, m)
		if err == nil {
			return m, nil
		}
		if err != domain.ErrStaleWrite {
			return nil, fmt.Errorf("persist reinforcement: %w", err)
		}
	}
	return nil, domain.ErrStaleWrite
}

// Validate records a user's explicit confirmation of a memory — the same
// reinforcement path, since a validation response is itself corroborating
// evidence.
func (s *ReinforceService) Validate(ctx context.Context, memoryID string) (*domain.SemanticMemory, error) {
	return s.Reinforce(ctx, memoryID)
}
