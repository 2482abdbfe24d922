package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/retrieval"
)

type fakePapers struct {
	mu      sync.Mutex
	papers  []retrieval.Paper
	err     error
	queries []string
	max     int
}

func (f *fakePapers) Search(_ context.Context, query string, maxResults int) ([]retrieval.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.max = maxResults
	return f.papers, f.err
}

func testPapers() []retrieval.Paper {
	published := time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC)
	return []retrieval.Paper{
		{EntryID: "http://arxiv.org/abs/1706.03762", Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Summary: "attention transformer", Published: published},
		{EntryID: "http://arxiv.org/abs/1810.04805", Title: "BERT", Authors: []string{"Jacob Devlin"}, Summary: "transformer pretraining", Published: published},
	}
}

func wordEmbedder() retrieval.EmbedderFunc {
	vocab := []string{"attention", "transformer", "pretraining"}
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			v := make([]float32, len(vocab)+1)
			for j, w := range vocab {
				v[j] = float32(strings.Count(strings.ToLower(text), w))
			}
			v[len(vocab)] = 0.1
			out[i] = v
		}
		return out, nil
	}
}

// scholar scripts every prompt of the research graph. grades are returned
// in order by the grader; the last one repeats.
type scholar struct {
	mu        sync.Mutex
	grades    []string
	rewrites  int
	useTools  bool
	generated string
}

func (s *scholar) model() *model.MockChatModel {
	return &model.MockChatModel{Respond: func(msgs []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(tools) == 1 && tools[0].Name == "Grade" {
			g := s.grades[0]
			if len(s.grades) > 1 {
				s.grades = s.grades[1:]
			}
			return model.ChatOut{ToolCalls: []model.ToolCall{{Name: "Grade", Input: map[string]any{"binary_score": g}}}}, nil
		}
		if len(tools) == 1 && tools[0].Name == "retrieve_papers" {
			if !s.useTools {
				return model.ChatOut{Text: "I can answer directly."}, nil
			}
			return model.ChatOut{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "retrieve_papers", Input: map[string]any{"query": "attention"}}}}, nil
		}
		content := msgs[0].Content
		switch {
		case strings.HasPrefix(content, "Convert this natural language query"):
			return model.ChatOut{Text: ` "attention transformer" `}, nil
		case strings.HasPrefix(content, "Look at the research question"):
			s.rewrites++
			return model.ChatOut{Text: "How does self-attention replace recurrence?"}, nil
		case strings.HasPrefix(content, "You are a research analyst"):
			s.generated = content
			return model.ChatOut{Text: "Transformers rely on attention (Vaswani, 2017)."}, nil
		}
		return model.ChatOut{}, errors.New("unexpected prompt")
	}}
}

func newTestGraph(t *testing.T, cfg Config, llm model.ChatModel, papers PaperSearcher, vectors retrieval.VectorStore) *graph.Engine[State] {
	t.Helper()
	e, err := New(cfg, Deps{
		Models:   model.StaticLoader(llm),
		Papers:   papers,
		Embedder: wordEmbedder(),
		Vectors:  vectors,
	}, graph.WithMaxSteps(30))
	require.NoError(t, err)
	return e
}

func TestResearchGraph_RelevantPapers(t *testing.T) {
	s := &scholar{grades: []string{"yes"}, useTools: true}
	papers := &fakePapers{papers: testPapers()}
	vectors := retrieval.NewMemoryVectorStore()
	e := newTestGraph(t, DefaultConfig(), s.model(), papers, vectors)

	final, err := e.Run(context.Background(), "res-1", State{Messages: []model.Message{model.User("How do transformers use attention?")}})
	require.NoError(t, err)

	assert.Equal(t, []string{"attention transformer"}, papers.queries)
	assert.Equal(t, 100, papers.max)
	assert.Equal(t, 2, final.Papers)
	assert.Equal(t, 2, vectors.Len())

	require.Len(t, final.Messages, 4)
	assert.Equal(t, model.RoleTool, final.Messages[2].Role)
	assert.Equal(t, "call-1", final.Messages[2].ToolCallID)
	assert.Contains(t, final.Messages[2].Content, "Title: Attention Is All You Need")
	assert.Equal(t, model.Assistant("Transformers rely on attention (Vaswani, 2017)."), final.Messages[3])

	assert.Contains(t, s.generated, "QUESTION:\nHow do transformers use attention?")
	assert.Contains(t, s.generated, "Title: Attention Is All You Need")
	assert.Zero(t, s.rewrites)
}

func TestResearchGraph_RewritesUntilLimit(t *testing.T) {
	s := &scholar{grades: []string{"no"}, useTools: true}
	cfg := DefaultConfig()
	cfg.MaxRewrites = 1
	e := newTestGraph(t, cfg, s.model(), &fakePapers{papers: testPapers()}, nil)

	msg, err := Answer(context.Background(), e, "res-2", "attention?")
	require.NoError(t, err)
	assert.Equal(t, "Transformers rely on attention (Vaswani, 2017).", msg.Content)
	assert.Equal(t, 1, s.rewrites)

	cp, err := e.Checkpoint(context.Background(), "res-2")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.State.Rewrites)
	assert.Equal(t, "no", cp.State.Grade)
}

func TestResearchGraph_RewriteThenRelevant(t *testing.T) {
	s := &scholar{grades: []string{"no", "YES"}, useTools: true}
	e := newTestGraph(t, DefaultConfig(), s.model(), &fakePapers{papers: testPapers()}, nil)

	final, err := e.Run(context.Background(), "res-3", State{Messages: []model.Message{model.User("attention?")}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.rewrites)
	assert.Equal(t, "yes", final.Grade)
	assert.Contains(t, final.Messages, model.User("How does self-attention replace recurrence?"))
}

func TestResearchGraph_NoPapers(t *testing.T) {
	s := &scholar{grades: []string{"yes"}, useTools: true}
	llm := s.model()
	e := newTestGraph(t, DefaultConfig(), llm, &fakePapers{}, nil)

	msg, err := Answer(context.Background(), e, "res-4", "unicorn physics")
	require.NoError(t, err)
	assert.Equal(t, model.Assistant(NoPapersMessage), msg)
	assert.Equal(t, 1, llm.CallCount(), "only the query is formatted")
}

func TestResearchGraph_AgentAnswersDirectly(t *testing.T) {
	s := &scholar{grades: []string{"yes"}}
	e := newTestGraph(t, DefaultConfig(), s.model(), &fakePapers{papers: testPapers()}, nil)

	msg, err := Answer(context.Background(), e, "res-5", "attention?")
	require.NoError(t, err)
	assert.Equal(t, "I can answer directly.", msg.Content)
}

func TestResearchGraph_SearchFailure(t *testing.T) {
	s := &scholar{grades: []string{"yes"}}
	e := newTestGraph(t, DefaultConfig(), s.model(), &fakePapers{err: errors.New("arxiv down")}, nil)

	_, err := Answer(context.Background(), e, "res-6", "attention?")
	var nodeErr *graph.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, NodeIndex, nodeErr.NodeID)
	assert.ErrorContains(t, err, "arxiv down")
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{Embedder: wordEmbedder()})
	assert.Error(t, err)
	_, err = New(DefaultConfig(), Deps{Models: model.StaticLoader(&model.MockChatModel{})})
	assert.Error(t, err)
}

func TestFromConfigurable(t *testing.T) {
	cfg, err := FromConfigurable(map[string]any{"max_rewrites": 1, "search_kwargs": map[string]any{"k": 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxRewrites)
	assert.Equal(t, 3, cfg.SearchKwargs.K)

	_, err = FromConfigurable(map[string]any{"grade_template": "Is {document} relevant to {question}?"})
	assert.ErrorContains(t, err, "grade_template")
	assert.ErrorContains(t, err, "document")
}

func TestRetrieved(t *testing.T) {
	msgs := []model.Message{
		model.User("q"),
		model.ToolResult("a", "retrieve_papers", "one"),
		model.Assistant("x"),
		model.ToolResult("b", "retrieve_papers", "two"),
		model.ToolResult("c", "retrieve_papers", "three"),
	}
	assert.Equal(t, "two\n\nthree", retrieved(msgs))
	assert.Empty(t, retrieved(msgs[:3]))
}

func TestGrade_Relevant(t *testing.T) {
	assert.True(t, Grade{BinaryScore: " Yes "}.Relevant())
	assert.False(t, Grade{BinaryScore: "no"}.Relevant())
	assert.False(t, Grade{}.Relevant())
}
