package domain

import (
	"context"
	"time"
)

// EmbeddingClient is the single narrow capability: embed(text) -> vector<D>.
// The core never depends on a specific provider or model.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension reports D so callers can validate stored vectors agree.
	Dimension() int
}

// LLMClient is the single narrow capability: complete(prompt, max_tokens,
// timeout) -> text. Every LLM-touching path in the core — coreference
// resolution, triple extraction, consolidation summarization — is
// expressed in terms of this one call.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int, timeout time.Duration) (string, error)
}

// DomainRow is one result row from the read-only domain-DB executor,
// keyed by column name so callers don't need per-table scan targets.
type DomainRow map[string]any

// DomainDB is the read-only SQL executor capability. The core never
// issues writes against it, and no component builds SQL update patches
// for it either; retrieval task-risk flags carry only an SLA risk annotation.
type DomainDB interface {
	Query(ctx context.Context, query string, params ...any) ([]DomainRow, error)
}
