package tool

import (
	"context"
	"sync"

	"github.com/dshills/analyst-agent/graph/model"
)

// MockTool is a scripted Tool for tests. Responses are returned in order
// and the last one repeats.
type MockTool struct {
	ToolName  string
	Responses []string
	Err       error

	mu        sync.Mutex
	calls     []map[string]any
	callIndex int
}

// Spec implements Tool.
func (m *MockTool) Spec() model.ToolSpec {
	return model.ToolSpec{Name: m.ToolName, Description: "mock tool"}
}

// Call implements Tool.
func (m *MockTool) Call(ctx context.Context, input map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, input)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Inputs returns the arguments of each call.
func (m *MockTool) Inputs() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.calls...)
}

// CallCount returns the number of calls.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
