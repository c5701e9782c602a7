package llm

import (
	"context"
	"time"
)

// MockClient is a configurable LLM client for tests: set Response/Err to
// control what Complete returns, inspect Calls for assertions.
type MockClient struct {
	Response string
	Err      error
	Calls    []string
}

func NewMockClient() *MockClient {
	return &MockClient{Response: "NONE"}
}

func (c *MockClient) Complete(ctx context.Context, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	c.Calls = append(c.Calls, prompt)
	if c.Err != nil {
		return "", c.Err
	}
	return c.Response, nil
}
