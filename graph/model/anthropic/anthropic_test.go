package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/dshills/analyst-agent/graph/model"
)

type mockMessageClient struct {
	response  *anthropic.Message
	err       error
	lastParam anthropic.MessageNewParams
}

func (m *mockMessageClient) createMessage(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	m.lastParam = params
	return m.response, m.err
}

func TestNewChatModel(t *testing.T) {
	if _, err := NewChatModel("", ""); !errors.Is(err, model.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}

	m, err := NewChatModel("key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != DefaultModel {
		t.Errorf("expected default model, got %s", m.Name())
	}
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("lifts system prompt and returns text", func(t *testing.T) {
		client := &mockMessageClient{response: &anthropic.Message{
			Content: []anthropic.ContentBlockUnion{
				{Type: "text", Text: "Hello"},
				{Type: "text", Text: "there"},
			},
			Usage: anthropic.Usage{InputTokens: 7, OutputTokens: 2},
		}}
		m := &ChatModel{modelName: "claude-3-5-haiku-latest", maxTokens: 100, client: client}

		out, err := m.Chat(context.Background(), []model.Message{
			model.System("be brief"),
			model.System("be kind"),
			model.User("hi"),
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Text != "Hello\nthere" {
			t.Errorf("unexpected text %q", out.Text)
		}
		if out.Usage.InputTokens != 7 || out.Usage.OutputTokens != 2 {
			t.Errorf("unexpected usage %+v", out.Usage)
		}
		if len(client.lastParam.System) != 1 || client.lastParam.System[0].Text != "be brief\n\nbe kind" {
			t.Errorf("unexpected system %+v", client.lastParam.System)
		}
		if len(client.lastParam.Messages) != 1 {
			t.Errorf("expected 1 conversation message, got %d", len(client.lastParam.Messages))
		}
	})

	t.Run("decodes tool use", func(t *testing.T) {
		client := &mockMessageClient{response: &anthropic.Message{
			Content: []anthropic.ContentBlockUnion{{
				Type:  "tool_use",
				ID:    "toolu_1",
				Name:  "Perspectives",
				Input: json.RawMessage(`{"analysts":[]}`),
			}},
		}}
		m := &ChatModel{modelName: DefaultModel, maxTokens: 100, client: client}

		out, err := m.Chat(context.Background(), []model.Message{model.User("go")}, []model.ToolSpec{{Name: "Perspectives"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(client.lastParam.Tools) != 1 {
			t.Fatalf("expected 1 tool in request")
		}
		if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "Perspectives" || out.ToolCalls[0].ID != "toolu_1" {
			t.Fatalf("unexpected tool calls %+v", out.ToolCalls)
		}
		if _, ok := out.ToolCalls[0].Input["analysts"]; !ok {
			t.Error("expected analysts key in input")
		}
	})

	t.Run("wraps errors", func(t *testing.T) {
		sentinel := errors.New("overloaded_error")
		m := &ChatModel{modelName: DefaultModel, client: &mockMessageClient{err: sentinel}}
		_, err := m.Chat(context.Background(), []model.Message{model.User("x")}, nil)
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel, got %v", err)
		}
		if !model.IsTransient(err) {
			t.Error("overloaded should be transient")
		}
	})
}

func TestConvertMessages(t *testing.T) {
	msgs := convertMessages([]model.Message{
		model.User(""),
		model.User("question"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "t1", Name: "retrieve", Input: map[string]any{"query": "q"}}}},
		model.ToolResult("t1", "retrieve", "docs"),
	})

	if len(msgs) != 3 {
		t.Fatalf("expected empty user message to be dropped, got %d messages", len(msgs))
	}
	if msgs[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("expected assistant role, got %s", msgs[1].Role)
	}
	if msgs[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("tool results travel in user turns, got %s", msgs[2].Role)
	}
}
