package embedding

import (
	"fmt"

	"github.com/veyra-labs/memcore/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient builds an EmbeddingClient for the named provider, fixed to
// dim dimensions (so callers can validate stored pgvector columns agree
// with whatever model actually produced them).
func NewClient(provider, apiKey string, dim int) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai embedding provider")
		}
		return NewOpenAIClient(apiKey, dim), nil

	case ProviderMock:
		return NewMockClient(dim), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", provider)
	}
}
