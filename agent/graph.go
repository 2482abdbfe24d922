// Package agent composes the analyst, interview and question-answering
// graphs into the entry points served by the CLI and HTTP API:
//
//   - New builds the top-level graph, which interviews an expert about the
//     last message and returns the written sections.
//   - NewRouter classifies a question and hands it to the financial or
//     general subgraph.
//   - Pipeline drafts analysts, waits for their approval and interviews
//     on behalf of each of them concurrently.
package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/graph/store"
)

// GraphName identifies the top-level graph in events and metrics.
const GraphName = "New Graph"

// NodeConductInterview is the only node of the top-level graph.
const NodeConductInterview = "conduct_interview"

// State is the top-level graph state. Both fields accumulate.
type State struct {
	Messages []model.Message `json:"messages"`
	Sections []string        `json:"sections,omitempty"`
}

// Reduce merges a node delta into the top-level state.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	prev.Sections = append(prev.Sections, delta.Sections...)
	return prev
}

// Deps are the collaborators of the top-level graph. Analyst is the persona
// conducting the interview; the zero value uses the default analyst.
type Deps struct {
	Interviews  *graph.Engine[interview.State]
	Analyst     interview.Analyst
	MaxNumTurns int
	Store       store.Store[State]
	Emitter     emit.Emitter
	Logger      *zap.Logger
}

// New builds the top-level graph.
func New(deps Deps, opts ...graph.Option) (*graph.Engine[State], error) {
	if deps.Interviews == nil {
		return nil, errors.New("agent: interview graph is required")
	}
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	log := deps.Logger.Named("agent")
	analyst := deps.Analyst.OrDefault()

	conduct := func(ctx context.Context, s State) graph.NodeResult[State] {
		topic := model.Last(s.Messages).Content
		runID := graph.RunIDFromContext(ctx) + "/interview"
		log.Info("conducting interview", zap.String("run_id", runID), zap.String("analyst", analyst.Name))
		sections, err := interview.Sections(ctx, deps.Interviews, runID, analyst, topic, deps.MaxNumTurns)
		if err != nil {
			return graph.Fail[State](NodeConductInterview, err)
		}
		return graph.NodeResult[State]{Delta: State{Sections: sections}}
	}

	e := graph.New(Reduce, deps.Store, deps.Emitter, append([]graph.Option{graph.WithName(GraphName)}, opts...)...)
	if err := e.Add(NodeConductInterview, graph.NodeFunc[State](conduct)); err != nil {
		return nil, err
	}
	if err := e.StartAt(NodeConductInterview); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeConductInterview, graph.END, nil); err != nil {
		return nil, err
	}
	return e, nil
}
