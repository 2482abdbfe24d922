package agent

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
)

// RouterName identifies the router graph in events and metrics.
const RouterName = "Router"

// Router node IDs.
const (
	NodeClassify        = "classify_question"
	NodeHandleFinancial = "handle_financial_question"
	NodeHandleGeneral   = "handle_general_question"
)

// Question categories returned by the classifier.
const (
	CategoryFinancial = "financial_question"
	CategoryGeneral   = "general_question"
)

// Handler answers a conversation and returns the messages it adds.
// financial.Answer and general.Answer bound to their engines fit it.
type Handler func(ctx context.Context, runID string, messages []model.Message) ([]model.Message, error)

// RouterState is the state of the router graph.
type RouterState struct {
	Messages []model.Message `json:"messages"`
	Category string          `json:"category,omitempty"`
}

// ReduceRouter merges a router delta.
func ReduceRouter(prev, delta RouterState) RouterState {
	prev.Messages = append(prev.Messages, delta.Messages...)
	if delta.Category != "" {
		prev.Category = delta.Category
	}
	return prev
}

// RouterDeps are the collaborators of the router graph.
type RouterDeps struct {
	Models    model.Loader
	Financial Handler
	General   Handler
	Store     store.Store[RouterState]
	Emitter   emit.Emitter
	Logger    *zap.Logger
}

// Classify maps a classifier answer to a category. Anything that does not
// name the financial category is general.
func Classify(answer string) string {
	if strings.Contains(strings.ToLower(answer), CategoryFinancial) {
		return CategoryFinancial
	}
	return CategoryGeneral
}

// NewRouter builds the router graph.
func NewRouter(cfg interview.Config, deps RouterDeps, opts ...graph.Option) (*graph.Engine[RouterState], error) {
	switch {
	case deps.Models == nil:
		return nil, errors.New("router: model loader is required")
	case deps.Financial == nil || deps.General == nil:
		return nil, errors.New("router: financial and general handlers are required")
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[RouterState]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	log := deps.Logger.Named("router")

	classify := func(ctx context.Context, s RouterState) graph.NodeResult[RouterState] {
		answer, err := interview.Complete(ctx, deps.Models, cfg.QueryModel, []model.Message{
			model.System(cfg.ClassificationInstructions),
			model.User(model.Last(s.Messages).Content),
		})
		if err != nil {
			return graph.Fail[RouterState](NodeClassify, err)
		}
		category := Classify(answer)
		log.Info("question classified", zap.String("category", category))
		return graph.NodeResult[RouterState]{Delta: RouterState{Category: category}}
	}
	handle := func(id string, h Handler) graph.NodeFunc[RouterState] {
		return func(ctx context.Context, s RouterState) graph.NodeResult[RouterState] {
			added, err := h(ctx, graph.RunIDFromContext(ctx)+"/"+id, s.Messages)
			if err != nil {
				return graph.Fail[RouterState](id, err)
			}
			return graph.NodeResult[RouterState]{Delta: RouterState{Messages: added}}
		}
	}

	e := graph.New(ReduceRouter, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(RouterName)}, opts...)...)
	if err := e.Add(NodeClassify, graph.NodeFunc[RouterState](classify)); err != nil {
		return nil, err
	}
	if err := e.Add(NodeHandleFinancial, handle(NodeHandleFinancial, deps.Financial)); err != nil {
		return nil, err
	}
	if err := e.Add(NodeHandleGeneral, handle(NodeHandleGeneral, deps.General)); err != nil {
		return nil, err
	}
	if err := e.StartAt(NodeClassify); err != nil {
		return nil, err
	}
	financial := func(s RouterState) bool { return s.Category == CategoryFinancial }
	for _, edge := range []struct {
		from, to string
		when     graph.Predicate[RouterState]
	}{
		{NodeClassify, NodeHandleFinancial, financial},
		{NodeClassify, NodeHandleGeneral, graph.Not[RouterState](financial)},
		{NodeHandleFinancial, graph.END, nil},
		{NodeHandleGeneral, graph.END, nil},
	} {
		if err := e.Connect(edge.from, edge.to, edge.when); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Ask routes question through the router and returns the answer.
func Ask(ctx context.Context, e *graph.Engine[RouterState], runID, question string) (model.Message, string, error) {
	final, err := e.Run(ctx, runID, RouterState{Messages: []model.Message{model.User(question)}})
	if err != nil {
		return model.Message{}, "", err
	}
	return model.Last(final.Messages), final.Category, nil
}
