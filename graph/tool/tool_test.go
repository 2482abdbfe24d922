package tool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/analyst-agent/graph/model"
)

func TestFunc(t *testing.T) {
	spec := model.ToolSpec{Name: "echo", Description: "echoes input"}
	echo := New(spec, func(_ context.Context, input map[string]any) (string, error) {
		return input["text"].(string), nil
	})

	if echo.Spec().Name != "echo" {
		t.Errorf("unexpected spec %+v", echo.Spec())
	}
	out, err := echo.Call(context.Background(), map[string]any{"text": "hi"})
	if err != nil || out != "hi" {
		t.Errorf("Call() = %q, %v", out, err)
	}

	specs := Specs(echo, &MockTool{ToolName: "other"})
	if len(specs) != 2 || specs[1].Name != "other" {
		t.Errorf("unexpected specs %+v", specs)
	}
}

func TestExecute(t *testing.T) {
	t.Run("returns results in call order", func(t *testing.T) {
		var inflight, peak atomic.Int32
		slow := New(model.ToolSpec{Name: "slow"}, func(_ context.Context, input map[string]any) (string, error) {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			return input["q"].(string), nil
		})

		msgs, err := Execute(context.Background(), []Tool{slow}, []model.ToolCall{
			{ID: "1", Name: "slow", Input: map[string]any{"q": "a"}},
			{ID: "2", Name: "slow", Input: map[string]any{"q": "b"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(msgs) != 2 || msgs[0].Content != "a" || msgs[1].Content != "b" {
			t.Fatalf("unexpected messages %+v", msgs)
		}
		if msgs[1].ToolCallID != "2" || msgs[1].Role != model.RoleTool {
			t.Errorf("tool result not linked to call: %+v", msgs[1])
		}
		if peak.Load() < 2 {
			t.Errorf("expected calls to run concurrently, peak %d", peak.Load())
		}
	})

	t.Run("tool errors become messages", func(t *testing.T) {
		failing := &MockTool{ToolName: "search", Err: errors.New("quota exceeded")}
		msgs, err := Execute(context.Background(), []Tool{failing}, []model.ToolCall{
			{ID: "x", Name: "search"},
			{ID: "y", Name: "missing"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msgs[0].Content != "Error: quota exceeded" {
			t.Errorf("unexpected content %q", msgs[0].Content)
		}
		if msgs[1].Content != `Error: unknown tool "missing"` {
			t.Errorf("unexpected content %q", msgs[1].Content)
		}
	})

	t.Run("cancellation is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := &MockTool{ToolName: "search", Responses: []string{"r"}}
		if _, err := Execute(ctx, []Tool{m}, []model.ToolCall{{Name: "search"}}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestMockTool(t *testing.T) {
	m := &MockTool{ToolName: "t", Responses: []string{"one", "two"}}
	ctx := context.Background()
	for _, want := range []string{"one", "two", "two"} {
		got, err := m.Call(ctx, map[string]any{"n": want})
		if err != nil || got != want {
			t.Errorf("Call() = %q, %v, want %q", got, err, want)
		}
	}
	if m.CallCount() != 3 || m.Inputs()[0]["n"] != "one" {
		t.Errorf("unexpected recorded calls %v", m.Inputs())
	}
}
