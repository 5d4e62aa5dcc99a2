package adapter

import (
	"context"
	"fmt"
	"sync"

	"aipop/internal/types"
)

// MockAdapter is a scriptable in-memory adapter used by tests and dry runs.
// Responses are matched by exact prompt first, then by a rotating default
// script; every call is recorded.
type MockAdapter struct {
	mu sync.Mutex

	name      string
	model     string
	byPrompt  map[string]string
	script    []string
	scriptIdx int
	calls     []string
	err       error
}

// NewMock creates a mock adapter for the given model name.
func NewMock(model string) *MockAdapter {
	return &MockAdapter{
		name:     "mock",
		model:    model,
		byPrompt: make(map[string]string),
	}
}

// Name implements Adapter.
func (m *MockAdapter) Name() string { return m.name }

// Model implements Adapter.
func (m *MockAdapter) Model() string { return m.model }

// Respond maps an exact prompt to a fixed response.
func (m *MockAdapter) Respond(prompt, response string) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPrompt[prompt] = response
	return m
}

// Script sets the rotating default responses used when no exact match hits.
func (m *MockAdapter) Script(responses ...string) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = responses
	m.scriptIdx = 0
	return m
}

// Fail makes every subsequent call return err.
func (m *MockAdapter) Fail(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns every prompt the adapter has received, in order.
func (m *MockAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of invocations so far.
func (m *MockAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Invoke implements Adapter.
func (m *MockAdapter) Invoke(ctx context.Context, prompt string) (*types.ModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, prompt)
	if m.err != nil {
		return nil, m.err
	}

	text, ok := m.byPrompt[prompt]
	if !ok {
		if len(m.script) == 0 {
			text = fmt.Sprintf("mock response %d", len(m.calls))
		} else {
			text = m.script[m.scriptIdx%len(m.script)]
			m.scriptIdx++
		}
	}

	return &types.ModelResponse{
		Text: text,
		Metadata: map[string]interface{}{
			"model":         m.model,
			"input_tokens":  len(prompt) / 4,
			"output_tokens": len(text) / 4,
		},
	}, nil
}
