// Package general answers general knowledge questions from web and
// Wikipedia search results.
//
//	search_web, search_wikipedia -> combine_results -> analyze_results -> write_article
package general

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
	"github.com/dshills/analyst-agent/retrieval"
)

// GraphName identifies the general graph in events and metrics.
const GraphName = "GeneralGraph"

// Node IDs.
const (
	NodeSearchWeb       = "search_web"
	NodeSearchWikipedia = "search_wikipedia"
	NodeCombineResults  = "combine_results"
	NodeAnalyzeResults  = "analyze_results"
	NodeWriteArticle    = "write_article"
)

// Analysis is the model's reading of the search results.
type Analysis struct {
	KeyThemes         []string           `json:"key_themes"`
	Facts             []string           `json:"facts"`
	Conflicts         []string           `json:"conflicts"`
	SourceReliability map[string]float64 `json:"source_reliability"`
	InformationGaps   []string           `json:"information_gaps"`
	AnalysisSummary   string             `json:"analysis_summary"`
}

// ParseAnalysis decodes a JSON analysis. Text that holds no valid analysis
// becomes the summary of an otherwise empty one.
func ParseAnalysis(text string) Analysis {
	var a Analysis
	if raw := model.ExtractJSON(text); raw != "" && json.Unmarshal([]byte(raw), &a) == nil {
		return a
	}
	return Analysis{
		KeyThemes:         []string{},
		Facts:             []string{},
		Conflicts:         []string{},
		SourceReliability: map[string]float64{},
		InformationGaps:   []string{},
		AnalysisSummary:   text,
	}
}

// State is the general graph state.
type State struct {
	Messages    []model.Message      `json:"messages"`
	WebResults  []retrieval.Document `json:"web_results,omitempty"`
	WikiResults []retrieval.Document `json:"wiki_results,omitempty"`
	Context     []retrieval.Document `json:"context,omitempty"`
	Analysis    *Analysis            `json:"analysis,omitempty"`
}

// Reduce merges a node delta. Messages accumulate; result lists are
// replaced when set.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	if delta.WebResults != nil {
		prev.WebResults = delta.WebResults
	}
	if delta.WikiResults != nil {
		prev.WikiResults = delta.WikiResults
	}
	if delta.Context != nil {
		prev.Context = delta.Context
	}
	if delta.Analysis != nil {
		prev.Analysis = delta.Analysis
	}
	return prev
}

// Deps are the collaborators of the general graph. Nil searchers fall back
// to Tavily and Wikipedia clients.
type Deps struct {
	Models    model.Loader
	Web       interview.Searcher
	Wikipedia interview.Searcher
	Store     store.Store[State]
	Emitter   emit.Emitter
	Logger    *zap.Logger
}

type nodes struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New builds the general graph.
func New(cfg Config, deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Models == nil {
		return nil, errors.New("general: model loader is required")
	}
	if deps.Web == nil {
		deps.Web = retrieval.NewWebRetriever(cfg.TavilyAPIKey, cfg.WebMaxResults, nil)
	}
	if deps.Wikipedia == nil {
		deps.Wikipedia = retrieval.NewWikipediaRetriever(cfg.WikipediaMaxDocs, nil)
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	n := &nodes{cfg: cfg, deps: deps, log: deps.Logger.Named("general")}

	e := graph.New(Reduce, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(GraphName)}, opts...)...)
	if err := e.Add(NodeSearchWeb, n.search(NodeSearchWeb, deps.Web, func(docs []retrieval.Document) State {
		return State{WebResults: docs}
	})); err != nil {
		return nil, err
	}
	if err := e.Add(NodeSearchWikipedia, n.search(NodeSearchWikipedia, deps.Wikipedia, func(docs []retrieval.Document) State {
		return State{WikiResults: docs}
	})); err != nil {
		return nil, err
	}
	if err := e.Add(NodeCombineResults, graph.NodeFunc[State](combineResults)); err != nil {
		return nil, err
	}
	if err := e.Add(NodeAnalyzeResults, graph.NodeFunc[State](n.analyzeResults)); err != nil {
		return nil, err
	}
	if err := e.Add(NodeWriteArticle, graph.NodeFunc[State](n.writeArticle)); err != nil {
		return nil, err
	}
	if err := e.StartAt(NodeSearchWeb, NodeSearchWikipedia); err != nil {
		return nil, err
	}
	for _, edge := range [][2]string{
		{NodeSearchWeb, NodeCombineResults},
		{NodeSearchWikipedia, NodeCombineResults},
		{NodeCombineResults, NodeAnalyzeResults},
		{NodeAnalyzeResults, NodeWriteArticle},
		{NodeWriteArticle, graph.END},
	} {
		if err := e.Connect(edge[0], edge[1], nil); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func question(s State) string {
	return model.Last(s.Messages).Content
}

func (n *nodes) search(id string, searcher interview.Searcher, wrap func([]retrieval.Document) State) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) graph.NodeResult[State] {
		docs, err := searcher.Search(ctx, question(s))
		if err != nil {
			if ctx.Err() != nil {
				return graph.Fail[State](id, ctx.Err())
			}
			n.log.Warn("search failed", zap.String("node", id), zap.Error(err))
			docs = nil
		}
		if docs == nil {
			docs = []retrieval.Document{}
		}
		return graph.NodeResult[State]{Delta: wrap(docs)}
	}
}

func combineResults(_ context.Context, s State) graph.NodeResult[State] {
	all := make([]retrieval.Document, 0, len(s.WebResults)+len(s.WikiResults))
	all = append(all, s.WebResults...)
	all = append(all, s.WikiResults...)
	return graph.NodeResult[State]{Delta: State{Context: all}}
}

type analysisSource struct {
	Content string `json:"content"`
	URL     string `json:"url"`
	Type    string `json:"type"`
}

type analysisInput struct {
	Question string           `json:"question"`
	Sources  []analysisSource `json:"sources"`
}

func sourceURL(d retrieval.Document) string {
	if u := d.Meta("url"); u != "" {
		return u
	}
	return d.Meta("source")
}

func (n *nodes) analyzeResults(ctx context.Context, s State) graph.NodeResult[State] {
	in := analysisInput{Question: question(s), Sources: []analysisSource{}}
	for _, d := range s.Context {
		url := sourceURL(d)
		kind := "web"
		if strings.Contains(strings.ToLower(url), "wikipedia") {
			kind = "wikipedia"
		}
		in.Sources = append(in.Sources, analysisSource{Content: d.PageContent, URL: url, Type: kind})
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return graph.Fail[State](NodeAnalyzeResults, err)
	}
	text, err := interview.Complete(ctx, n.deps.Models, n.cfg.AnalysisModel, []model.Message{
		model.System(n.cfg.AnalysisInstructions),
		model.User(string(payload)),
	})
	if err != nil {
		return graph.Fail[State](NodeAnalyzeResults, err)
	}
	analysis := ParseAnalysis(text)
	return graph.NodeResult[State]{Delta: State{Analysis: &analysis}}
}

// ArticleData is the JSON document the article model writes from.
type ArticleData struct {
	Question        string    `json:"question"`
	Context         []string  `json:"context"`
	Sources         []string  `json:"sources"`
	ConfidenceScore float64   `json:"confidence_score"`
	Analysis        *Analysis `json:"analysis"`
}

func (n *nodes) writeArticle(ctx context.Context, s State) graph.NodeResult[State] {
	data := ArticleData{
		Question: question(s),
		Context:  make([]string, len(s.Context)),
		Sources:  make([]string, len(s.Context)),
		Analysis: s.Analysis,
	}
	scores := make([]float64, len(s.Context))
	for i, d := range s.Context {
		data.Context[i] = d.PageContent
		data.Sources[i] = sourceURL(d)
		scores[i] = n.cfg.SourceConfidence
	}
	data.ConfidenceScore = interview.CalculateConfidenceScore(scores...)

	payload, err := json.Marshal(data)
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}
	text, err := interview.Complete(ctx, n.deps.Models, n.cfg.ArticleModel, []model.Message{
		model.System(n.cfg.GeneralArticleInstructions),
		model.User(string(payload)),
	})
	if err != nil {
		return graph.Fail[State](NodeWriteArticle, err)
	}
	return graph.NodeResult[State]{Delta: State{Messages: []model.Message{model.Assistant(text)}}}
}

// Answer runs the graph on a conversation and returns the messages it
// added (the article).
func Answer(ctx context.Context, e *graph.Engine[State], runID string, messages []model.Message) ([]model.Message, error) {
	final, err := e.Run(ctx, runID, State{Messages: messages})
	if err != nil {
		return nil, err
	}
	return final.Messages[len(messages):], nil
}
