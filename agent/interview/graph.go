// Package interview implements the interview graph: an analyst persona
// questions an expert who answers from web and Wikipedia search results,
// and the transcript is written up as a report section.
//
//	ask_question -> search_web, search_wikipedia -> answer_question
//	answer_question -> ask_question | save_interview -> write_section
//
// The package also holds the configuration, prompts and scoring helpers
// shared by the financial, general, market and research subgraphs.
package interview

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
	"github.com/dshills/analyst-agent/internal/prompt"
	"github.com/dshills/analyst-agent/retrieval"
)

// GraphName identifies the interview graph in events and metrics.
const GraphName = "InterviewGraph"

// Node IDs.
const (
	NodeAskQuestion     = "ask_question"
	NodeSearchWeb       = "search_web"
	NodeSearchWikipedia = "search_wikipedia"
	NodeAnswerQuestion  = "answer_question"
	NodeSaveInterview   = "save_interview"
	NodeWriteSection    = "write_section"
)

// closingLine ends the interview when the analyst says it.
const closingLine = "Thank you so much for your help"

// Searcher returns documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Document, error)
}

// Deps are the collaborators of the interview graph. Zero values fall back
// to Tavily and Wikipedia clients, an in-memory store and no-op logging.
type Deps struct {
	Models    model.Loader
	Web       Searcher
	Wikipedia Searcher
	Store     store.Store[State]
	Emitter   emit.Emitter
	Logger    *zap.Logger
}

func (d Deps) withDefaults(cfg Config) Deps {
	if d.Web == nil {
		d.Web = retrieval.NewWebRetriever(cfg.TavilyAPIKey, cfg.WebMaxResults, nil)
	}
	if d.Wikipedia == nil {
		d.Wikipedia = retrieval.NewWikipediaRetriever(cfg.WikipediaMaxDocs, nil)
	}
	if d.Store == nil {
		d.Store = store.NewMemStore[State]()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// SearchQuery is the structured output of the query-writing step.
type SearchQuery struct {
	SearchQuery string `json:"search_query"`
}

var searchQuerySpec = model.ToolSpec{
	Name:        "SearchQuery",
	Description: "Search query for retrieval.",
	Schema: model.ObjectSchema(map[string]any{
		"search_query": model.StringProp("Search query for retrieval."),
	}, "search_query"),
}

// WriteSearchQuery turns a conversation into a search query. An empty
// answer falls back to the last message.
func WriteSearchQuery(ctx context.Context, m model.ChatModel, instructions string, messages []model.Message) (string, error) {
	msgs := append([]model.Message{model.System(instructions)}, messages...)
	q, err := model.Structured[SearchQuery](ctx, m, msgs, searchQuerySpec)
	if err != nil {
		return "", err
	}
	if query := strings.TrimSpace(q.SearchQuery); query != "" {
		return query, nil
	}
	return model.Last(messages).Content, nil
}

type nodes struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New builds the interview graph.
func New(cfg Config, deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Models == nil {
		return nil, errors.New("interview: model loader is required")
	}
	deps = deps.withDefaults(cfg)
	n := &nodes{cfg: cfg, deps: deps, log: deps.Logger.Named("interview")}

	options := append([]graph.Option{graph.WithName(GraphName)}, opts...)
	e := graph.New(Reduce, deps.Store, deps.Emitter, options...)

	for id, fn := range map[string]graph.NodeFunc[State]{
		NodeAskQuestion:     n.askQuestion,
		NodeSearchWeb:       n.search(NodeSearchWeb, deps.Web),
		NodeSearchWikipedia: n.search(NodeSearchWikipedia, deps.Wikipedia),
		NodeAnswerQuestion:  n.answerQuestion,
		NodeSaveInterview:   n.saveInterview,
		NodeWriteSection:    n.writeSection,
	} {
		if err := e.Add(id, fn); err != nil {
			return nil, err
		}
	}
	if err := e.StartAt(NodeAskQuestion); err != nil {
		return nil, err
	}

	done := n.interviewDone
	edges := []struct {
		from, to string
		when     graph.Predicate[State]
	}{
		{NodeAskQuestion, NodeSearchWeb, nil},
		{NodeAskQuestion, NodeSearchWikipedia, nil},
		{NodeSearchWeb, NodeAnswerQuestion, nil},
		{NodeSearchWikipedia, NodeAnswerQuestion, nil},
		{NodeAnswerQuestion, NodeSaveInterview, done},
		{NodeAnswerQuestion, NodeAskQuestion, graph.Not(done)},
		{NodeSaveInterview, NodeWriteSection, nil},
		{NodeWriteSection, graph.END, nil},
	}
	for _, edge := range edges {
		if err := e.Connect(edge.from, edge.to, edge.when); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// interviewDone ends the interview once the expert has answered
// MaxNumTurns times or the analyst has said thank you.
func (n *nodes) interviewDone(s State) bool {
	maxTurns := s.MaxNumTurns
	if maxTurns <= 0 {
		maxTurns = n.cfg.MaxNumTurns
	}
	if maxTurns <= 0 {
		maxTurns = 2
	}
	if expertAnswers(s.Messages) >= maxTurns {
		return true
	}
	if len(s.Messages) < 2 {
		return false
	}
	return strings.Contains(s.Messages[len(s.Messages)-2].Content, closingLine)
}

func (n *nodes) askQuestion(ctx context.Context, s State) graph.NodeResult[State] {
	analyst := s.Analyst.OrDefault()
	sys, err := prompt.Format(n.cfg.QuestionInstructions, prompt.Vars{"goals": analyst.Persona()})
	if err != nil {
		return graph.Fail[State](NodeAskQuestion, err)
	}
	question, err := Complete(ctx, n.deps.Models, n.cfg.QueryModel, append([]model.Message{model.System(sys)}, s.Messages...))
	if err != nil {
		return graph.Fail[State](NodeAskQuestion, err)
	}
	return graph.NodeResult[State]{Delta: State{Messages: []model.Message{model.Assistant(question)}}}
}

func (n *nodes) search(nodeID string, searcher Searcher) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) graph.NodeResult[State] {
		llm, err := n.deps.Models.Load(n.cfg.QueryModel)
		if err != nil {
			return graph.Fail[State](nodeID, err)
		}
		query, err := WriteSearchQuery(ctx, llm, n.cfg.SearchInstructions, s.Messages)
		if err != nil {
			return graph.Fail[State](nodeID, err)
		}

		docs, err := searcher.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return graph.Fail[State](nodeID, ctx.Err())
			}
			n.log.Warn("search failed", zap.String("node", nodeID), zap.String("query", query), zap.Error(err))
			return graph.NodeResult[State]{}
		}
		if len(docs) == 0 {
			return graph.NodeResult[State]{}
		}
		return graph.NodeResult[State]{Delta: State{Context: []string{retrieval.FormatDocs(docs)}}}
	}
}

func (n *nodes) answerQuestion(ctx context.Context, s State) graph.NodeResult[State] {
	analyst := s.Analyst.OrDefault()
	sys, err := prompt.Format(n.cfg.AnswerInstructions, prompt.Vars{
		"goals":   analyst.Persona(),
		"context": strings.Join(s.Context, "\n\n"),
	})
	if err != nil {
		return graph.Fail[State](NodeAnswerQuestion, err)
	}
	answer, err := Complete(ctx, n.deps.Models, n.cfg.ResponseModel, append([]model.Message{model.System(sys)}, s.Messages...))
	if err != nil {
		return graph.Fail[State](NodeAnswerQuestion, err)
	}
	return graph.NodeResult[State]{Delta: State{Messages: []model.Message{model.NamedAssistant(ExpertName, answer)}}}
}

func (n *nodes) saveInterview(_ context.Context, s State) graph.NodeResult[State] {
	return graph.NodeResult[State]{Delta: State{Interview: model.BufferString(s.Messages)}}
}

func (n *nodes) writeSection(ctx context.Context, s State) graph.NodeResult[State] {
	analyst := s.Analyst.OrDefault()
	sys, err := prompt.Format(n.cfg.SectionWriterInstructions, prompt.Vars{"focus": analyst.Description})
	if err != nil {
		return graph.Fail[State](NodeWriteSection, err)
	}
	section, err := Complete(ctx, n.deps.Models, n.cfg.ResponseModel, []model.Message{
		model.System(sys),
		model.User("Use this source to write your section: " + strings.Join(s.Context, "\n\n")),
	})
	if err != nil {
		return graph.Fail[State](NodeWriteSection, err)
	}
	return graph.NodeResult[State]{Delta: State{Sections: []string{section}}}
}

// Sections runs a fresh interview and returns the written sections.
func Sections(ctx context.Context, e *graph.Engine[State], runID string, analyst Analyst, topic string, maxTurns int) ([]string, error) {
	initial := State{Analyst: analyst, MaxNumTurns: maxTurns}
	if topic != "" {
		initial.Messages = []model.Message{model.User(topic)}
	}
	final, err := e.Run(ctx, runID, initial)
	if err != nil {
		return nil, err
	}
	return final.Sections, nil
}
