package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"

	"github.com/dshills/analyst-agent/graph/model"
)

type mockCompletionClient struct {
	response  *openai.ChatCompletion
	err       error
	lastParam openai.ChatCompletionNewParams
	calls     int
}

func (m *mockCompletionClient) complete(_ context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	m.calls++
	m.lastParam = params
	return m.response, m.err
}

func completion(text string, calls ...openai.ChatCompletionMessageToolCall) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: text, ToolCalls: calls},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 12, CompletionTokens: 5},
	}
}

func TestNewChatModel(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		_, err := NewChatModel("", "gpt-4o")
		if !errors.Is(err, model.ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("defaults model name", func(t *testing.T) {
		m, err := NewChatModel("sk-test", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Name() != DefaultModel {
			t.Errorf("expected %s, got %s", DefaultModel, m.Name())
		}
	})
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("returns text and usage", func(t *testing.T) {
		client := &mockCompletionClient{response: completion("Paris")}
		m := &ChatModel{modelName: "gpt-4o-mini", client: client}

		out, err := m.Chat(context.Background(), []model.Message{
			model.System("Answer briefly."),
			model.User("Capital of France?"),
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Text != "Paris" {
			t.Errorf("expected Paris, got %q", out.Text)
		}
		if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 5 {
			t.Errorf("unexpected usage %+v", out.Usage)
		}
		if len(client.lastParam.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(client.lastParam.Messages))
		}
		if client.lastParam.Messages[0].OfSystem == nil {
			t.Error("expected first message to be a system message")
		}
		if client.lastParam.Messages[1].OfUser == nil {
			t.Error("expected second message to be a user message")
		}
		if len(client.lastParam.Tools) != 0 {
			t.Error("expected no tools")
		}
	})

	t.Run("decodes tool calls", func(t *testing.T) {
		client := &mockCompletionClient{response: completion("", openai.ChatCompletionMessageToolCall{
			ID: "call_1",
			Function: openai.ChatCompletionMessageToolCallFunction{
				Name:      "search",
				Arguments: `{"query":"golang"}`,
			},
		})}
		m := &ChatModel{modelName: "gpt-4o", client: client}

		out, err := m.Chat(context.Background(), []model.Message{model.User("search")}, []model.ToolSpec{{
			Name:        "search",
			Description: "Search the web",
			Schema:      model.ObjectSchema(map[string]any{"query": model.StringProp("query")}, "query"),
		}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(client.lastParam.Tools) != 1 || client.lastParam.Tools[0].Function.Name != "search" {
			t.Fatalf("expected search tool in request, got %+v", client.lastParam.Tools)
		}
		if len(out.ToolCalls) != 1 {
			t.Fatalf("expected 1 tool call, got %d", len(out.ToolCalls))
		}
		if out.ToolCalls[0].ID != "call_1" || out.ToolCalls[0].Input["query"] != "golang" {
			t.Errorf("unexpected tool call %+v", out.ToolCalls[0])
		}
	})

	t.Run("rejects malformed arguments", func(t *testing.T) {
		client := &mockCompletionClient{response: completion("", openai.ChatCompletionMessageToolCall{
			Function: openai.ChatCompletionMessageToolCallFunction{Name: "search", Arguments: "{"},
		})}
		m := &ChatModel{modelName: "gpt-4o", client: client}

		if _, err := m.Chat(context.Background(), []model.Message{model.User("x")}, nil); err == nil {
			t.Fatal("expected error for malformed arguments")
		}
	})

	t.Run("empty response is an error", func(t *testing.T) {
		m := &ChatModel{modelName: "gpt-4o", client: &mockCompletionClient{response: &openai.ChatCompletion{}}}
		if _, err := m.Chat(context.Background(), []model.Message{model.User("x")}, nil); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("wraps client errors", func(t *testing.T) {
		sentinel := errors.New("503 service unavailable")
		m := &ChatModel{modelName: "gpt-4o", client: &mockCompletionClient{err: sentinel}}

		_, err := m.Chat(context.Background(), []model.Message{model.User("x")}, nil)
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected wrapped sentinel, got %v", err)
		}
		if !model.IsTransient(err) {
			t.Error("expected 503 to be transient")
		}
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		client := &mockCompletionClient{response: completion("x")}
		m := &ChatModel{modelName: "gpt-4o", client: client}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := m.Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if client.calls != 0 {
			t.Error("client should not be called")
		}
	})
}

func TestConvertMessages(t *testing.T) {
	msgs := convertMessages([]model.Message{
		{Role: model.RoleAssistant, Content: "", ToolCalls: []model.ToolCall{{ID: "c1", Name: "lookup", Input: map[string]any{"k": "v"}}}},
		model.ToolResult("c1", "lookup", "result"),
		model.NamedAssistant("expert", "answer"),
	})

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].OfAssistant == nil || len(msgs[0].OfAssistant.ToolCalls) != 1 {
		t.Fatal("expected assistant message with tool call")
	}
	if msgs[0].OfAssistant.ToolCalls[0].Function.Arguments != `{"k":"v"}` {
		t.Errorf("unexpected arguments %s", msgs[0].OfAssistant.ToolCalls[0].Function.Arguments)
	}
	if msgs[1].OfTool == nil || msgs[1].OfTool.ToolCallID != "c1" {
		t.Error("expected tool message linked to c1")
	}
	if msgs[2].OfAssistant == nil || msgs[2].OfAssistant.Name.Value != "expert" {
		t.Error("expected named assistant message")
	}
}

type mockEmbeddingClient struct {
	response *openai.CreateEmbeddingResponse
}

func (m *mockEmbeddingClient) embed(context.Context, openai.EmbeddingNewParams) (*openai.CreateEmbeddingResponse, error) {
	return m.response, nil
}

func TestEmbedder_Embed(t *testing.T) {
	e := &Embedder{modelName: DefaultEmbeddingModel, client: &mockEmbeddingClient{
		response: &openai.CreateEmbeddingResponse{Data: []openai.Embedding{
			{Index: 1, Embedding: []float64{0, 1}},
			{Index: 0, Embedding: []float64{1, 0}},
		}},
	}}

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not ordered by index: %v", vecs)
	}

	empty, err := e.Embed(context.Background(), nil)
	if err != nil || empty != nil {
		t.Errorf("expected nil result for no input, got %v, %v", empty, err)
	}
}
