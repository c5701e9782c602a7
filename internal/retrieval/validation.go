package retrieval

import (
	"fmt"
	"time"

	"github.com/veyra-labs/memcore/internal/registry"
)

// validationPrompt returns a user-facing confirmation prompt for a
// memory that is either stale (not validated within StaleDays) or has
// decayed below LowConfidence, or "" if neither applies.
func validationPrompt(originalText string, lastValidatedAt time.Time, effectiveConfidence float64, reg *registry.Registry, now time.Time) string {
	daysSince := now.Sub(lastValidatedAt).Hours() / 24

	switch {
	case daysSince > reg.StaleDays():
		return fmt.Sprintf("It's been a while since you confirmed: %q. Is this still accurate?", originalText)
	case effectiveConfidence < reg.LowConfidence():
		return fmt.Sprintf("I'm not fully confident about: %q. Can you confirm?", originalText)
	default:
		return ""
	}
}
