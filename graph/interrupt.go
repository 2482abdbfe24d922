package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/analyst-agent/graph/store"
)

// pauseError is returned by a node (via Pause) to suspend the run and wait
// for human input.
type pauseError struct {
	payload any
}

func (p *pauseError) Error() string { return "node requested interrupt" }

// Pause returns a NodeResult that suspends the run at the current node.
// The payload is handed to the caller through InterruptError and stored
// with the checkpoint. When the run is resumed the node executes again and
// ResumeValue reports the value supplied to Engine.Resume.
//
//	func (n *reviewNode) Run(ctx context.Context, s State) graph.NodeResult[State] {
//	    feedback, ok := graph.ResumeValue(ctx)
//	    if !ok {
//	        return graph.Pause[State](map[string]any{"draft": s.Draft})
//	    }
//	    ...
//	}
func Pause[S any](payload any) NodeResult[S] {
	return NodeResult[S]{Err: &pauseError{payload: payload}}
}

func isPause(err error) (*pauseError, bool) {
	p, ok := err.(*pauseError)
	return p, ok
}

// PendingInterrupt describes one node waiting for human input.
type PendingInterrupt = store.Interrupt

// InterruptError is returned by Run and Resume when the run paused for human
// input. The run can be continued with Engine.Resume(ctx, RunID, value).
type InterruptError struct {
	RunID      string
	Step       int
	Interrupts []PendingInterrupt
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	nodes := make([]string, 0, len(e.Interrupts))
	for _, in := range e.Interrupts {
		nodes = append(nodes, in.NodeID)
	}
	return fmt.Sprintf("run %s interrupted at step %d (%s)", e.RunID, e.Step, strings.Join(nodes, ", "))
}

type ctxKey int

const (
	resumeKey ctxKey = iota
	runIDKey
	nodeIDKey
)

type resumeValue struct {
	value any
}

func withResume(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, resumeKey, resumeValue{value: v})
}

// ResumeValue returns the value passed to Engine.Resume when the calling node
// is the one that paused the run. ok is false on a normal execution.
func ResumeValue(ctx context.Context) (any, bool) {
	rv, ok := ctx.Value(resumeKey).(resumeValue)
	if !ok {
		return nil, false
	}
	return rv.value, true
}

// ResumeString returns the resume value as a string. Non-string values are
// rendered as JSON.
func ResumeString(ctx context.Context) (string, bool) {
	v, ok := ResumeValue(ctx)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s, true
		}
		return string(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return string(b), true
	}
}

// RunIDFromContext returns the run ID of the executing graph, if any.
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runIDKey).(string)
	return s
}

// NodeIDFromContext returns the ID of the executing node, if any.
func NodeIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(nodeIDKey).(string)
	return s
}
