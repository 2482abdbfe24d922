package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/dshills/analyst-agent/graph/model"
)

func TestNewChatModel_RequiresKey(t *testing.T) {
	if _, err := NewChatModel(context.Background(), "", ""); !errors.Is(err, model.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestChatModel_Chat(t *testing.T) {
	var got request
	m := &ChatModel{modelName: DefaultModel}
	m.generate = func(_ context.Context, req request) (*genai.GenerateContentResponse, error) {
		got = req
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{
					genai.Text("thinking"),
					genai.FunctionCall{Name: "search", Args: map[string]any{"query": "go"}},
				}},
			}},
			UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 3},
		}, nil
	}

	out, err := m.Chat(context.Background(), []model.Message{
		model.System("sys"),
		model.User("first"),
		model.Assistant("reply"),
		model.User("second"),
	}, []model.ToolSpec{{Name: "search", Schema: model.ObjectSchema(map[string]any{"query": model.StringProp("q")}, "query")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.system == nil || got.system.Parts[0] != genai.Text("sys") {
		t.Error("expected system instruction")
	}
	if len(got.history) != 2 || got.history[1].Role != "model" {
		t.Errorf("unexpected history %+v", got.history)
	}
	if len(got.parts) != 1 || got.parts[0] != genai.Text("second") {
		t.Errorf("unexpected parts %+v", got.parts)
	}
	if out.Text != "thinking" || len(out.ToolCalls) != 1 || out.ToolCalls[0].Input["query"] != "go" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Usage.InputTokens != 10 || out.Usage.OutputTokens != 3 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}
}

func TestChatModel_ChatRequiresContent(t *testing.T) {
	m := &ChatModel{modelName: DefaultModel}
	m.generate = func(context.Context, request) (*genai.GenerateContentResponse, error) {
		t.Fatal("generate should not be called")
		return nil, nil
	}
	if _, err := m.Chat(context.Background(), []model.Message{model.System("only system")}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestConvertSchema(t *testing.T) {
	schema := model.ObjectSchema(map[string]any{
		"analysts": model.ArrayProp("list", model.ObjectSchema(map[string]any{
			"name": model.StringProp("name"),
		}, "name")),
	}, "analysts")

	s := convertSchema(schema)
	if s.Type != genai.TypeObject || len(s.Required) != 1 {
		t.Fatalf("unexpected root schema %+v", s)
	}
	arr := s.Properties["analysts"]
	if arr == nil || arr.Type != genai.TypeArray || arr.Items == nil {
		t.Fatalf("expected array with items, got %+v", arr)
	}
	if arr.Items.Properties["name"].Type != genai.TypeString {
		t.Error("expected nested string property")
	}
	if convertSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestConvertResponse_Blocked(t *testing.T) {
	_, err := convertResponse(&genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	})
	var safety *SafetyFilterError
	if !errors.As(err, &safety) {
		t.Fatalf("expected SafetyFilterError, got %v", err)
	}
}
