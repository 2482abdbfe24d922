package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/agent"
	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/agent/interview/research"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/internal/app"
	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/retrieval"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noSearch struct{}

func (noSearch) Search(context.Context, string) ([]retrieval.Document, error) { return nil, nil }

type noPapers struct{}

func (noPapers) Search(context.Context, string, int) ([]retrieval.Paper, error) { return nil, nil }

// scriptedModel drafts analysts, classifies every question as general,
// approves every report and fails any prompt it does not recognise.
func scriptedModel() *model.MockChatModel {
	return &model.MockChatModel{Respond: func(msgs []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
		if len(tools) == 1 && tools[0].Name == "Perspectives" {
			return model.ChatOut{ToolCalls: []model.ToolCall{{Name: "Perspectives", Input: map[string]any{
				"analysts": []any{
					map[string]any{"name": "Ada", "role": "Economist", "affiliation": "Lab", "description": "Costs"},
					map[string]any{"name": "Grace", "role": "Engineer", "affiliation": "Navy", "description": "Systems"},
				},
			}}}}, nil
		}
		first := msgs[0].Content
		lower := strings.ToLower(first)
		switch {
		case first == interview.ClassificationInstructions:
			return model.ChatOut{Text: agent.CategoryGeneral}, nil
		case strings.Contains(lower, "arxiv"):
			return model.ChatOut{Text: "graph neural networks"}, nil
		case strings.Contains(lower, "market"):
			return model.ChatOut{Text: `{"approved": true, "reason": "complete"}`}, nil
		}
		return model.ChatOut{}, errors.New("model offline")
	}}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Retrieval.RetrieverProvider = retrieval.ProviderMemory
	cfg.Engine.NodeRetries = 0

	a, err := app.New(context.Background(), cfg, app.Overrides{
		Models: model.StaticLoader(scriptedModel()),
		Embedder: retrieval.EmbedderFunc(func(_ context.Context, texts []string) ([][]float32, error) {
			return make([][]float32, len(texts)), nil
		}),
		Web:       noSearch{},
		Wikipedia: noSearch{},
		Papers:    noPapers{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	s := New(a)
	s.newID = func() string { return "run-1" }
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalystsReview(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/analysts", PlanRequest{Topic: "chip supply", MaxAnalysts: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decode[agent.Draft](t, rec)
	assert.Equal(t, "run-1", d.RunID)
	assert.True(t, d.Pending)
	require.NotNil(t, d.Review)
	assert.Len(t, d.Review.GeneratedAnalysts, 2)

	updated := []interview.Analyst{{Name: "Linus", Role: "Maintainer", Affiliation: "Kernel", Description: "Drivers"}}
	rec = do(t, s, http.MethodPost, "/v1/analysts/run-1/resume", ReviewRequest{Feedback: "approve", UpdatedAnalysts: updated})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d = decode[agent.Draft](t, rec)
	assert.False(t, d.Pending)
	assert.Equal(t, updated, d.Analysts)

	rec = do(t, s, http.MethodPost, "/v1/analysts/run-1/resume", ReviewRequest{Feedback: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_INTERRUPTED", decode[errorResponse](t, rec).Code)

	rec = do(t, s, http.MethodPost, "/v1/analysts/missing/resume", ReviewRequest{Feedback: "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/runs/run-1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"interrupt"`)

	rec = do(t, s, http.MethodGet, "/v1/runs/run-1/events?node_id=human_review_node", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"node_id":"create_analysts"`)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path string
		body any
	}{
		{"/v1/analysts", map[string]any{"max_analysts": 2}},
		{"/v1/interviews", map[string]any{}},
		{"/v1/ask", map[string]any{"question": ""}},
		{"/v1/market", map[string]any{}},
		{"/v1/research", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", decode[errorResponse](t, rec).Code)
		})
	}

	rec := do(t, s, http.MethodGet, "/v1/runs/run-1/events?min_step=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/v1/runs/unknown/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsk_HandlerFailure(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/ask", QuestionRequest{Question: "Who wrote Dune?"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, agent.NodeHandleGeneral, resp.NodeID)
	assert.Contains(t, resp.Error, "model offline")
}

func TestResearch_NoPapers(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/research", QuestionRequest{RunID: "r-7", Question: "What is new in GNNs?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[AnswerResponse](t, rec)
	assert.Equal(t, "r-7", resp.RunID)
	assert.Equal(t, research.NoPapersMessage, resp.Answer)
}

func TestInterview_DefaultAnalystFailure(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/interviews", InterviewRequest{Topic: "chip supply"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "model offline")
}

func TestMarket_ApprovedReport(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/market", QuestionRequest{Question: "How is the EV sector doing?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[AnswerResponse](t, rec)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Contains(t, resp.Answer, "approved")
	require.NotEmpty(t, resp.Messages)
	assert.Equal(t, model.RoleAssistant, resp.Messages[len(resp.Messages)-1].Role)
}
