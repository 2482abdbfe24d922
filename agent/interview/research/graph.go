// Package research answers questions from arXiv papers. Paper summaries
// are indexed into a vector store, then an agent retrieves from it, the
// retrieved text is graded and either answered with APA citations or the
// question is rewritten and retried.
//
//	index -> agent -> retrieve -> grade_documents -> generate
//	                                               -> rewrite -> agent
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
	"github.com/dshills/analyst-agent/graph/tool"
	"github.com/dshills/analyst-agent/internal/prompt"
	"github.com/dshills/analyst-agent/retrieval"
)

// GraphName identifies the research graph in events and metrics.
const GraphName = "ResearchGraph"

// Node IDs.
const (
	NodeIndex    = "index"
	NodeAgent    = "agent"
	NodeRetrieve = "retrieve"
	NodeGrade    = "grade_documents"
	NodeGenerate = "generate"
	NodeRewrite  = "rewrite"
)

// PaperSearcher finds arXiv papers. *retrieval.ArxivClient implements it.
type PaperSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]retrieval.Paper, error)
}

// Grade is the structured relevance verdict.
type Grade struct {
	BinaryScore string `json:"binary_score"`
}

// Relevant reports whether the grader answered yes.
func (g Grade) Relevant() bool {
	return strings.EqualFold(strings.TrimSpace(g.BinaryScore), "yes")
}

var gradeSpec = model.ToolSpec{
	Name:        "Grade",
	Description: "Binary score for relevance check.",
	Schema: model.ObjectSchema(map[string]any{
		"binary_score": model.StringProp("Relevance score 'yes' or 'no'"),
	}, "binary_score"),
}

// State is the research graph state. Messages accumulate; the first
// message is the research question.
type State struct {
	Messages   []model.Message `json:"messages"`
	ArxivQuery string          `json:"arxiv_query,omitempty"`
	Papers     int             `json:"papers,omitempty"`
	Grade      string          `json:"grade,omitempty"`
	Rewrites   int             `json:"rewrites,omitempty"`
}

// Reduce merges a node delta into the research state.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	if delta.ArxivQuery != "" {
		prev.ArxivQuery = delta.ArxivQuery
	}
	if delta.Papers != 0 {
		prev.Papers = delta.Papers
	}
	if delta.Grade != "" {
		prev.Grade = delta.Grade
	}
	if delta.Rewrites > prev.Rewrites {
		prev.Rewrites = delta.Rewrites
	}
	return prev
}

// Question returns the research question, the first message.
func (s State) Question() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[0].Content
}

// Deps are the collaborators of the research graph. Either Retriever or
// Embedder is required. Without a Retriever one is built over Vectors (an
// in-memory store by default) with the configured search kwargs. Papers
// defaults to the arXiv API.
type Deps struct {
	Models    model.Loader
	Papers    PaperSearcher
	Retriever *retrieval.Retriever
	Embedder  retrieval.Embedder
	Vectors   retrieval.VectorStore
	Store     store.Store[State]
	Emitter   emit.Emitter
	Logger    *zap.Logger
}

type nodes struct {
	cfg       Config
	deps      Deps
	retriever *retrieval.Retriever
	tools     []tool.Tool
	log       *zap.Logger
}

// New builds the research graph. Papers indexed by one run stay in the
// retriever's store and are visible to later runs.
func New(cfg Config, deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Models == nil {
		return nil, errors.New("research: model loader is required")
	}
	retriever := deps.Retriever
	if retriever == nil {
		if deps.Embedder == nil {
			return nil, errors.New("research: embedder is required")
		}
		if deps.Vectors == nil {
			deps.Vectors = retrieval.NewMemoryVectorStore()
		}
		retriever = retrieval.NewRetriever(deps.Vectors, deps.Embedder, DefaultSearchKwargs().Merge(cfg.SearchKwargs))
	}
	if deps.Papers == nil {
		deps.Papers = retrieval.NewArxivClient(nil)
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	n := &nodes{
		cfg:       cfg,
		deps:      deps,
		retriever: retriever,
		tools:     []tool.Tool{retrieval.NewRetrieverTool(retriever, cfg.ToolName, cfg.ToolDescription)},
		log:       deps.Logger.Named("research"),
	}

	e := graph.New(Reduce, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(GraphName)}, opts...)...)
	for id, fn := range map[string]graph.NodeFunc[State]{
		NodeIndex:    n.index,
		NodeAgent:    n.agent,
		NodeRetrieve: n.retrieve,
		NodeGrade:    n.grade,
		NodeGenerate: n.generate,
		NodeRewrite:  n.rewrite,
	} {
		if err := e.Add(id, fn); err != nil {
			return nil, err
		}
	}
	if err := e.StartAt(NodeIndex); err != nil {
		return nil, err
	}

	indexed := func(s State) bool { return s.Papers > 0 }
	wantsTools := func(s State) bool { return len(model.Last(s.Messages).ToolCalls) > 0 }
	answerable := func(s State) bool { return s.Grade == "yes" || s.Rewrites >= cfg.MaxRewrites }

	for _, edge := range []struct {
		from, to string
		when     graph.Predicate[State]
	}{
		{NodeIndex, NodeAgent, indexed},
		{NodeIndex, graph.END, graph.Not[State](indexed)},
		{NodeAgent, NodeRetrieve, wantsTools},
		{NodeAgent, graph.END, graph.Not[State](wantsTools)},
		{NodeRetrieve, NodeGrade, nil},
		{NodeGrade, NodeGenerate, answerable},
		{NodeGrade, NodeRewrite, graph.Not[State](answerable)},
		{NodeRewrite, NodeAgent, nil},
		{NodeGenerate, graph.END, nil},
	} {
		if err := e.Connect(edge.from, edge.to, edge.when); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (n *nodes) complete(ctx context.Context, spec string, msgs []model.Message) (string, error) {
	llm, err := n.deps.Models.Load(spec)
	if err != nil {
		return "", err
	}
	out, err := llm.Chat(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// arxivQuery asks the query model for keywords. Surrounding quotes are
// removed; quotes inside the query are kept.
func (n *nodes) arxivQuery(ctx context.Context, question string) (string, error) {
	p, err := prompt.Format(n.cfg.ArxivQueryTemplate, prompt.Vars{"query": question})
	if err != nil {
		return "", err
	}
	q, err := n.complete(ctx, n.cfg.QueryModel, []model.Message{model.User(p)})
	if err != nil {
		return "", err
	}
	if len(q) >= 2 && strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`) && strings.Count(q, `"`) == 2 {
		q = q[1 : len(q)-1]
	}
	return q, nil
}

func (n *nodes) index(ctx context.Context, s State) graph.NodeResult[State] {
	query, err := n.arxivQuery(ctx, s.Question())
	if err != nil {
		return graph.Fail[State](NodeIndex, err)
	}
	papers, err := n.deps.Papers.Search(ctx, query, n.cfg.MaxArxivResults)
	if err != nil {
		return graph.Fail[State](NodeIndex, fmt.Errorf("arxiv search %q: %w", query, err))
	}
	n.log.Info("papers found", zap.String("arxiv_query", query), zap.Int("count", len(papers)))
	if len(papers) == 0 {
		return graph.NodeResult[State]{Delta: State{
			ArxivQuery: query,
			Messages:   []model.Message{model.Assistant(NoPapersMessage)},
		}}
	}

	docs := make([]retrieval.Document, len(papers))
	for i, p := range papers {
		docs[i] = p.Document()
	}
	if _, err := n.retriever.Index(ctx, docs); err != nil {
		return graph.Fail[State](NodeIndex, fmt.Errorf("index papers: %w", err))
	}
	return graph.NodeResult[State]{Delta: State{ArxivQuery: query, Papers: len(papers)}}
}

func (n *nodes) agent(ctx context.Context, s State) graph.NodeResult[State] {
	llm, err := n.deps.Models.Load(n.cfg.AgentModel)
	if err != nil {
		return graph.Fail[State](NodeAgent, err)
	}
	out, err := llm.Chat(ctx, s.Messages, tool.Specs(n.tools...))
	if err != nil {
		return graph.Fail[State](NodeAgent, err)
	}
	msg := model.Message{Role: model.RoleAssistant, Content: out.Text, ToolCalls: out.ToolCalls}
	return graph.NodeResult[State]{Delta: State{Messages: []model.Message{msg}}}
}

func (n *nodes) retrieve(ctx context.Context, s State) graph.NodeResult[State] {
	results, err := tool.Execute(ctx, n.tools, model.Last(s.Messages).ToolCalls)
	if err != nil {
		return graph.Fail[State](NodeRetrieve, err)
	}
	return graph.NodeResult[State]{Delta: State{Messages: results}}
}

// retrieved joins the trailing tool results.
func retrieved(msgs []model.Message) string {
	var parts []string
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == model.RoleTool; i-- {
		parts = append([]string{msgs[i].Content}, parts...)
	}
	return strings.Join(parts, "\n\n")
}

func (n *nodes) grade(ctx context.Context, s State) graph.NodeResult[State] {
	p, err := prompt.Format(n.cfg.GradeTemplate, prompt.Vars{"context": retrieved(s.Messages), "question": s.Question()})
	if err != nil {
		return graph.Fail[State](NodeGrade, err)
	}
	llm, err := n.deps.Models.Load(n.cfg.GradeModel)
	if err != nil {
		return graph.Fail[State](NodeGrade, err)
	}
	g, err := model.Structured[Grade](ctx, llm, []model.Message{model.User(p)}, gradeSpec)
	if err != nil {
		return graph.Fail[State](NodeGrade, err)
	}
	verdict := "no"
	if g.Relevant() {
		verdict = "yes"
	}
	n.log.Debug("documents graded", zap.String("grade", verdict), zap.Int("rewrites", s.Rewrites))
	return graph.NodeResult[State]{Delta: State{Grade: verdict}}
}

func (n *nodes) rewrite(ctx context.Context, s State) graph.NodeResult[State] {
	p, err := prompt.Format(n.cfg.RewriteTemplate, prompt.Vars{"question": s.Question()})
	if err != nil {
		return graph.Fail[State](NodeRewrite, err)
	}
	better, err := n.complete(ctx, n.cfg.QueryModel, []model.Message{model.User(p)})
	if err != nil {
		return graph.Fail[State](NodeRewrite, err)
	}
	return graph.NodeResult[State]{Delta: State{
		Messages: []model.Message{model.User(better)},
		Rewrites: s.Rewrites + 1,
	}}
}

func (n *nodes) generate(ctx context.Context, s State) graph.NodeResult[State] {
	p, err := prompt.Format(n.cfg.GenerateTemplate, prompt.Vars{"context": retrieved(s.Messages), "question": s.Question()})
	if err != nil {
		return graph.Fail[State](NodeGenerate, err)
	}
	answer, err := n.complete(ctx, n.cfg.AnalysisModel, []model.Message{model.User(p)})
	if err != nil {
		return graph.Fail[State](NodeGenerate, err)
	}
	return graph.NodeResult[State]{Delta: State{Messages: []model.Message{model.Assistant(answer)}}}
}

// Answer runs the graph for question and returns its final message.
func Answer(ctx context.Context, e *graph.Engine[State], runID, question string) (model.Message, error) {
	final, err := e.Run(ctx, runID, State{Messages: []model.Message{model.User(question)}})
	if err != nil {
		return model.Message{}, err
	}
	return model.Last(final.Messages), nil
}
