// Package market writes a market analysis report from trend and sentiment
// analyses, and has it reviewed before it is returned.
//
//	analyze_trends -> analyze_sentiment -> write_report -> quality_check
//	quality_check -> write_report (rejected, revisions left) | END
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
	"github.com/dshills/analyst-agent/internal/prompt"
)

// GraphName identifies the market graph in events and metrics.
const GraphName = "MarketGraph"

// Node IDs.
const (
	NodeAnalyzeTrends    = "analyze_trends"
	NodeAnalyzeSentiment = "analyze_sentiment"
	NodeWriteReport      = "write_report"
	NodeQualityCheck     = "quality_check"
)

// Review is the verdict of the quality check.
type Review struct {
	Approved    bool     `json:"approved"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions"`
}

// ParseReview decodes a quality check answer. An answer without a JSON
// verdict approves the report.
func ParseReview(text string) Review {
	var r Review
	if raw := model.ExtractJSON(text); raw != "" && json.Unmarshal([]byte(raw), &r) == nil {
		return r
	}
	return Review{Approved: true, Reason: strings.TrimSpace(text)}
}

// State is the market graph state. Messages accumulate; the rest is
// replaced when set.
type State struct {
	Messages        []model.Message `json:"messages"`
	MarketTrends    string          `json:"market_trends,omitempty"`
	MarketSentiment string          `json:"market_sentiment,omitempty"`
	Report          string          `json:"report,omitempty"`
	Review          *Review         `json:"review,omitempty"`
	Revisions       int             `json:"revisions,omitempty"`
}

// Reduce merges a node delta into the market state.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	if delta.MarketTrends != "" {
		prev.MarketTrends = delta.MarketTrends
	}
	if delta.MarketSentiment != "" {
		prev.MarketSentiment = delta.MarketSentiment
	}
	if delta.Report != "" {
		prev.Report = delta.Report
	}
	if delta.Review != nil {
		prev.Review = delta.Review
	}
	if delta.Revisions > prev.Revisions {
		prev.Revisions = delta.Revisions
	}
	return prev
}

// Deps are the collaborators of the market graph.
type Deps struct {
	Models  model.Loader
	Store   store.Store[State]
	Emitter emit.Emitter
	Logger  *zap.Logger
	Now     func() time.Time
}

type nodes struct {
	cfg  Config
	deps Deps
	date string
	log  *zap.Logger
}

// New builds the market graph. The report date is fixed when the graph is
// built.
func New(cfg Config, deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Models == nil {
		return nil, errors.New("market: model loader is required")
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	n := &nodes{cfg: cfg, deps: deps, date: cfg.date(deps.Now), log: deps.Logger.Named("market")}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := graph.New(Reduce, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(GraphName)}, opts...)...)
	for id, fn := range map[string]graph.NodeFunc[State]{
		NodeAnalyzeTrends:    n.analyzeTrends,
		NodeAnalyzeSentiment: n.analyzeSentiment,
		NodeWriteReport:      n.writeReport,
		NodeQualityCheck:     n.qualityCheck,
	} {
		if err := e.Add(id, fn); err != nil {
			return nil, err
		}
	}
	if err := e.StartAt(NodeAnalyzeTrends); err != nil {
		return nil, err
	}
	for _, edge := range [][2]string{
		{NodeAnalyzeTrends, NodeAnalyzeSentiment},
		{NodeAnalyzeSentiment, NodeWriteReport},
		{NodeWriteReport, NodeQualityCheck},
	} {
		if err := e.Connect(edge[0], edge[1], nil); err != nil {
			return nil, err
		}
	}
	needsRevision := func(s State) bool {
		return s.Review != nil && !s.Review.Approved && s.Revisions <= cfg.MaxRevisions
	}
	if err := e.Connect(NodeQualityCheck, NodeWriteReport, needsRevision); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeQualityCheck, graph.END, graph.Not[State](needsRevision)); err != nil {
		return nil, err
	}
	return e, nil
}

func (n *nodes) format(tmpl string) (string, error) {
	return prompt.Format(tmpl, prompt.Vars{"current_date": n.date})
}

func question(s State) string {
	return model.Last(s.Messages).Content
}

func (n *nodes) analyze(ctx context.Context, tmpl string, s State) (string, error) {
	system, err := n.format(tmpl)
	if err != nil {
		return "", err
	}
	return interview.Complete(ctx, n.deps.Models, n.cfg.TrendModel, []model.Message{
		model.System(system),
		model.User(question(s)),
	})
}

func (n *nodes) analyzeTrends(ctx context.Context, s State) graph.NodeResult[State] {
	text, err := n.analyze(ctx, n.cfg.TrendsTemplate, s)
	if err != nil {
		return graph.Fail[State](NodeAnalyzeTrends, err)
	}
	return graph.NodeResult[State]{Delta: State{MarketTrends: text}}
}

func (n *nodes) analyzeSentiment(ctx context.Context, s State) graph.NodeResult[State] {
	text, err := n.analyze(ctx, n.cfg.SentimentTemplate, s)
	if err != nil {
		return graph.Fail[State](NodeAnalyzeSentiment, err)
	}
	return graph.NodeResult[State]{Delta: State{MarketSentiment: text}}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func (n *nodes) writeReport(ctx context.Context, s State) graph.NodeResult[State] {
	system, err := n.format(n.cfg.ReportTemplate)
	if err != nil {
		return graph.Fail[State](NodeWriteReport, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\nQuestion: %s\n\nMarket Trends Analysis:\n%s\n\nMarket Sentiment Analysis:\n%s\n",
		question(s),
		orDefault(s.MarketTrends, "No market trends analysis available."),
		orDefault(s.MarketSentiment, "No market sentiment analysis available."))
	if s.Review != nil && !s.Review.Approved {
		fmt.Fprintf(&b, "\nA reviewer rejected the previous draft: %s\n", s.Review.Reason)
		for _, suggestion := range s.Review.Suggestions {
			fmt.Fprintf(&b, "- %s\n", suggestion)
		}
		fmt.Fprintf(&b, "\nPrevious draft:\n%s\n", s.Report)
	}

	report, err := interview.Complete(ctx, n.deps.Models, n.cfg.AnalysisModel, []model.Message{
		model.System(system),
		model.User(b.String()),
	})
	if err != nil {
		return graph.Fail[State](NodeWriteReport, err)
	}
	return graph.NodeResult[State]{Delta: State{Report: report}}
}

func (n *nodes) qualityCheck(ctx context.Context, s State) graph.NodeResult[State] {
	text, err := interview.Complete(ctx, n.deps.Models, n.cfg.QualityModel, []model.Message{
		model.System(n.cfg.QualityControlTemplate),
		model.User(fmt.Sprintf("Query: %s\n\nResearch:\n%s", question(s), s.Report)),
	})
	if err != nil {
		return graph.Fail[State](NodeQualityCheck, err)
	}
	review := ParseReview(text)
	delta := State{Review: &review}
	if !review.Approved {
		delta.Revisions = s.Revisions + 1
		if delta.Revisions <= n.cfg.MaxRevisions {
			n.log.Info("report rejected", zap.String("reason", review.Reason), zap.Int("revision", delta.Revisions))
			return graph.NodeResult[State]{Delta: delta}
		}
		n.log.Warn("report rejected, revisions exhausted", zap.String("reason", review.Reason))
	}
	delta.Messages = []model.Message{model.Assistant(s.Report)}
	return graph.NodeResult[State]{Delta: delta}
}

// Answer runs the graph on a conversation and returns the messages it
// added (the report).
func Answer(ctx context.Context, e *graph.Engine[State], runID string, messages []model.Message) ([]model.Message, error) {
	final, err := e.Run(ctx, runID, State{Messages: messages})
	if err != nil {
		return nil, err
	}
	return final.Messages[len(messages):], nil
}
