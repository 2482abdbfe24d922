// Package analyst implements the analyst graph. It drafts a team of
// analyst personas for a topic and loops through human review until the
// reviewer approves them.
package analyst

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
	"github.com/dshills/analyst-agent/internal/prompt"
)

// GraphName identifies the analyst graph in events and metrics.
const GraphName = "AnalystGraph"

// Node IDs.
const (
	NodeCreateAnalysts = "create_analysts"
	NodeHumanReview    = "human_review_node"
)

// Approve is the feedback that ends the review loop.
const Approve = "approve"

// State is the analyst graph state.
type State struct {
	Topic                string              `json:"topic"`
	MaxAnalysts          int                 `json:"max_analysts"`
	HumanAnalystFeedback string              `json:"human_analyst_feedback,omitempty"`
	Analysts             []interview.Analyst `json:"analysts,omitempty"`

	// feedbackSet marks a delta from the review node, whose feedback
	// replaces the previous one even when empty.
	feedbackSet bool
}

// Reduce replaces every field the delta sets.
func Reduce(prev, delta State) State {
	if delta.Topic != "" {
		prev.Topic = delta.Topic
	}
	if delta.MaxAnalysts != 0 {
		prev.MaxAnalysts = delta.MaxAnalysts
	}
	if delta.feedbackSet || delta.HumanAnalystFeedback != "" {
		prev.HumanAnalystFeedback = delta.HumanAnalystFeedback
	}
	if delta.Analysts != nil {
		prev.Analysts = delta.Analysts
	}
	return prev
}

// Approved reports whether the reviewer accepted the analysts. Missing
// feedback is not an approval.
func Approved(s State) bool {
	return strings.EqualFold(strings.TrimSpace(s.HumanAnalystFeedback), Approve)
}

// Perspectives is the structured output of create_analysts.
type Perspectives struct {
	Analysts []interview.Analyst `json:"analysts"`
}

var perspectivesSpec = model.ToolSpec{
	Name:        "Perspectives",
	Description: "Comprehensive list of analysts with their roles and affiliations.",
	Schema: model.ObjectSchema(map[string]any{
		"analysts": model.ArrayProp("Comprehensive list of analysts with their roles and affiliations.", model.ObjectSchema(map[string]any{
			"affiliation": model.StringProp("Primary affiliation of the analyst."),
			"name":        model.StringProp("Name of the analyst."),
			"role":        model.StringProp("Role of the analyst in the context of the topic."),
			"description": model.StringProp("Description of the analyst focus, concerns, and motives."),
		}, "affiliation", "name", "role", "description")),
	}, "analysts"),
}

// ReviewRequest is the interrupt payload shown to the reviewer.
type ReviewRequest struct {
	GeneratedAnalysts []string `json:"generated_analysts"`
	Instruction       string   `json:"instruction"`
}

// Review is a structured resume value. A plain string resume value is
// treated as Feedback.
type Review struct {
	Feedback        string              `json:"feedback,omitempty"`
	UpdatedAnalysts []interview.Analyst `json:"updated_analysts,omitempty"`
}

// Deps are the collaborators of the analyst graph. Store must outlive the
// interrupt for Resume to work; it defaults to an in-memory store.
type Deps struct {
	Models  model.Loader
	Store   store.Store[State]
	Emitter emit.Emitter
	Logger  *zap.Logger
}

type nodes struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New builds the analyst graph.
func New(cfg Config, deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Models == nil {
		return nil, errors.New("analyst: model loader is required")
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	n := &nodes{cfg: cfg, deps: deps, log: deps.Logger.Named("analyst")}

	e := graph.New(Reduce, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(GraphName)}, opts...)...)
	if err := e.Add(NodeCreateAnalysts, graph.NodeFunc[State](n.createAnalysts)); err != nil {
		return nil, err
	}
	if err := e.Add(NodeHumanReview, graph.NodeFunc[State](n.humanReview)); err != nil {
		return nil, err
	}
	if err := e.StartAt(NodeCreateAnalysts); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeCreateAnalysts, NodeHumanReview, nil); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeHumanReview, graph.END, Approved); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeHumanReview, NodeCreateAnalysts, graph.Not[State](Approved)); err != nil {
		return nil, err
	}
	return e, nil
}

func (n *nodes) createAnalysts(ctx context.Context, s State) graph.NodeResult[State] {
	maxAnalysts := s.MaxAnalysts
	if maxAnalysts <= 0 {
		maxAnalysts = DefaultMaxAnalysts
	}
	sys, err := prompt.Format(n.cfg.AnalystInstructions, prompt.Vars{
		"topic":                  s.Topic,
		"human_analyst_feedback": s.HumanAnalystFeedback,
		"max_analysts":           maxAnalysts,
	})
	if err != nil {
		return graph.Fail[State](NodeCreateAnalysts, err)
	}

	llm, err := n.deps.Models.Load(n.cfg.QueryModel)
	if err != nil {
		return graph.Fail[State](NodeCreateAnalysts, err)
	}
	p, err := model.Structured[Perspectives](ctx, llm, []model.Message{
		model.System(sys),
		model.User("Generate the set of analysts."),
	}, perspectivesSpec)
	if err != nil {
		return graph.Fail[State](NodeCreateAnalysts, err)
	}

	analysts := make([]interview.Analyst, 0, len(p.Analysts))
	for _, a := range p.Analysts {
		analysts = append(analysts, a.OrDefault())
	}
	if len(analysts) > maxAnalysts {
		analysts = analysts[:maxAnalysts]
	}
	n.log.Debug("analysts created", zap.String("topic", s.Topic), zap.Int("count", len(analysts)))
	return graph.NodeResult[State]{Delta: State{Analysts: analysts}}
}

func (n *nodes) humanReview(ctx context.Context, s State) graph.NodeResult[State] {
	raw, ok := graph.ResumeString(ctx)
	if !ok {
		personas := make([]string, len(s.Analysts))
		for i, a := range s.Analysts {
			personas[i] = a.Persona()
		}
		return graph.Pause[State](ReviewRequest{GeneratedAnalysts: personas, Instruction: ReviewInstruction})
	}

	return graph.NodeResult[State]{Delta: reviewDelta(ParseReview(raw))}
}

func reviewDelta(review Review) State {
	delta := State{HumanAnalystFeedback: review.Feedback, feedbackSet: true}
	if len(review.UpdatedAnalysts) > 0 {
		delta.Analysts = review.UpdatedAnalysts
	}
	return delta
}

// ParseReview interprets a resume value. A JSON object is decoded as a
// Review; an updated analyst list without feedback counts as approval.
// Anything else is free-text feedback.
func ParseReview(raw string) Review {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var r Review
		if err := json.Unmarshal([]byte(trimmed), &r); err == nil {
			if r.Feedback == "" && len(r.UpdatedAnalysts) > 0 {
				r.Feedback = Approve
			}
			return r
		}
	}
	return Review{Feedback: trimmed}
}
