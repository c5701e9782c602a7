package embedding

import (
	"context"
	"hash/fnv"
)

// MockClient produces deterministic pseudo-embeddings so tests can assert
// on similarity ordering without a real model: Embed hashes the input
// text into a seed and fills a dim-length vector from it.
type MockClient struct {
	dim int
	Err error
}

func NewMockClient(dim int) *MockClient {
	return &MockClient{dim: dim}
}

func (c *MockClient) Dimension() int { return c.dim }

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, c.dim)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>40)%1000) / 1000
	}
	return v, nil
}
