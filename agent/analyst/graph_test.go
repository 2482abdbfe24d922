package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/model"
)

func perspectivesCall(names ...string) model.ChatOut {
	analysts := make([]any, len(names))
	for i, name := range names {
		analysts[i] = map[string]any{
			"name":        name,
			"role":        "Analyst",
			"affiliation": "Lab",
			"description": name + " focus",
		}
	}
	return model.ChatOut{ToolCalls: []model.ToolCall{{Name: "Perspectives", Input: map[string]any{"analysts": analysts}}}}
}

func newTestGraph(t *testing.T, llm model.ChatModel) *graph.Engine[State] {
	t.Helper()
	e, err := New(DefaultConfig(), Deps{Models: model.StaticLoader(llm)}, graph.WithMaxSteps(20))
	require.NoError(t, err)
	return e
}

func requireInterrupt(t *testing.T, err error) ReviewRequest {
	t.Helper()
	var ie *graph.InterruptError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Interrupts, 1)
	assert.Equal(t, NodeHumanReview, ie.Interrupts[0].NodeID)
	var req ReviewRequest
	require.NoError(t, ie.Interrupts[0].Decode(&req))
	return req
}

func TestAnalystGraph_ApproveFirstDraft(t *testing.T) {
	llm := &model.MockChatModel{Responses: []model.ChatOut{perspectivesCall("Ada", "Grace")}}
	e := newTestGraph(t, llm)
	ctx := context.Background()

	_, err := e.Run(ctx, "run-approve", State{Topic: "LLM agents", MaxAnalysts: 2})
	req := requireInterrupt(t, err)
	assert.Equal(t, ReviewInstruction, req.Instruction)
	require.Len(t, req.GeneratedAnalysts, 2)
	assert.True(t, strings.HasPrefix(req.GeneratedAnalysts[0], "Name: Ada\nRole: Analyst"))

	sys := llm.Calls()[0].Messages[0].Content
	assert.Contains(t, sys, "LLM agents")
	assert.Contains(t, sys, "Pick the top 2 themes.")
	assert.Equal(t, "Generate the set of analysts.", llm.Calls()[0].Messages[1].Content)

	final, err := e.Resume(ctx, "run-approve", "Approve")
	require.NoError(t, err)
	assert.Equal(t, 1, llm.CallCount(), "approval ends the loop")
	assert.Len(t, final.Analysts, 2)
	assert.True(t, Approved(final))
}

func TestAnalystGraph_FeedbackRegenerates(t *testing.T) {
	llm := &model.MockChatModel{Responses: []model.ChatOut{
		perspectivesCall("Ada", "Grace"),
		perspectivesCall("Ada", "Grace", "Edsger"),
	}}
	e := newTestGraph(t, llm)
	ctx := context.Background()

	_, err := e.Run(ctx, "run-feedback", State{Topic: "compilers", MaxAnalysts: 3})
	requireInterrupt(t, err)

	_, err = e.Resume(ctx, "run-feedback", "Add a language designer")
	req := requireInterrupt(t, err)
	assert.Len(t, req.GeneratedAnalysts, 3)
	assert.Contains(t, llm.Calls()[1].Messages[0].Content, "Add a language designer")

	final, err := e.Resume(ctx, "run-feedback", "approve")
	require.NoError(t, err)
	assert.Equal(t, "Edsger", final.Analysts[2].Name)
}

func TestAnalystGraph_EmptyFeedbackClearsPrevious(t *testing.T) {
	llm := &model.MockChatModel{Responses: []model.ChatOut{
		perspectivesCall("Ada"),
		perspectivesCall("Milton"),
		perspectivesCall("Grace"),
	}}
	e := newTestGraph(t, llm)
	ctx := context.Background()

	_, err := e.Run(ctx, "run-clear", State{Topic: "economics", MaxAnalysts: 1})
	requireInterrupt(t, err)
	_, err = e.Resume(ctx, "run-clear", "Add an economist")
	requireInterrupt(t, err)

	_, err = e.Resume(ctx, "run-clear", "")
	requireInterrupt(t, err)
	require.Equal(t, 3, llm.CallCount())
	assert.NotContains(t, llm.Calls()[2].Messages[0].Content, "Add an economist")

	final, err := e.Resume(ctx, "run-clear", "approve")
	require.NoError(t, err)
	assert.Equal(t, "Grace", final.Analysts[0].Name)
}

func TestReduce_Feedback(t *testing.T) {
	prev := State{HumanAnalystFeedback: "Add an economist"}

	kept := Reduce(prev, State{Analysts: []interview.Analyst{{Name: "Ada"}}})
	assert.Equal(t, "Add an economist", kept.HumanAnalystFeedback)

	cleared := Reduce(prev, reviewDelta(Review{}))
	assert.Empty(t, cleared.HumanAnalystFeedback)
}

func TestAnalystGraph_UpdatedAnalysts(t *testing.T) {
	llm := &model.MockChatModel{Responses: []model.ChatOut{perspectivesCall("Ada")}}
	e := newTestGraph(t, llm)
	ctx := context.Background()

	_, err := e.Run(ctx, "run-update", State{Topic: "robotics", MaxAnalysts: 1})
	requireInterrupt(t, err)

	final, err := e.Resume(ctx, "run-update", map[string]any{
		"updated_analysts": []map[string]any{{"name": "Rodney", "role": "Roboticist", "affiliation": "MIT", "description": "Behaviour-based robots"}},
	})
	require.NoError(t, err)
	require.Len(t, final.Analysts, 1)
	assert.Equal(t, "Rodney", final.Analysts[0].Name)
	assert.Equal(t, 1, llm.CallCount())
}

func TestAnalystGraph_CapsAndDefaults(t *testing.T) {
	out := perspectivesCall("A", "B", "C", "D")
	out.ToolCalls[0].Input["analysts"].([]any)[0].(map[string]any)["role"] = ""
	llm := &model.MockChatModel{Responses: []model.ChatOut{out}}
	e := newTestGraph(t, llm)

	state, err := e.Run(context.Background(), "run-cap", State{Topic: "x"})
	requireInterrupt(t, err)
	assert.Len(t, state.Analysts, DefaultMaxAnalysts)
	assert.Equal(t, interview.DefaultAnalystRole, state.Analysts[0].Role)
}

func TestAnalystGraph_ModelError(t *testing.T) {
	e := newTestGraph(t, &model.MockChatModel{Err: errors.New("quota exceeded")})
	_, err := e.Run(context.Background(), "run-err", State{Topic: "x"})
	require.Error(t, err)
	var ie *graph.InterruptError
	assert.False(t, errors.As(err, &ie))
}

func TestApproved(t *testing.T) {
	tests := map[string]bool{"approve": true, " APPROVE ": true, "": false, "appove": false, "approved": false}
	for feedback, want := range tests {
		assert.Equal(t, want, Approved(State{HumanAnalystFeedback: feedback}), feedback)
	}
}

func TestParseReview(t *testing.T) {
	assert.Equal(t, Review{Feedback: "more economists"}, ParseReview(" more economists "))
	assert.Equal(t, Review{Feedback: "approve"}, ParseReview(`{"feedback":"approve"}`))

	r := ParseReview(`{"updated_analysts":[{"name":"Ada"}]}`)
	assert.Equal(t, Approve, r.Feedback)
	assert.Equal(t, "Ada", r.UpdatedAnalysts[0].Name)

	assert.Equal(t, Review{Feedback: "{not json"}, ParseReview("{not json"))
}

func TestFromConfigurable(t *testing.T) {
	cfg, err := FromConfigurable(map[string]any{"query_model": "google/gemini-1.5-flash"})
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-1.5-flash", cfg.QueryModel)
	assert.Equal(t, AnalystInstructions, cfg.AnalystInstructions)
}

func TestFromConfigurable_RejectsUnknownPlaceholder(t *testing.T) {
	_, err := FromConfigurable(map[string]any{"analyst_instructions": "Create {max_analysts} analysts about {subject}"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "analyst_instructions")
	assert.ErrorContains(t, err, "subject")
}
