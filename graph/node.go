package graph

import "context"

// Node represents a processing unit in the workflow graph.
// It receives state of type S, performs computation, and returns a NodeResult.
//
// A node can read the current state, call models, retrievers or tools,
// return a partial state update (Delta), and optionally override
// edge-based routing via Route.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult represents the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged into the run state with the engine's reducer.
	Delta S

	// Route overrides edge routing when set.
	// The zero value means "follow the outgoing edges".
	Route Next

	// Err halts the run unless it is a pause created by Pause, which the
	// engine surfaces as an *InterruptError.
	Err error
}

// Next specifies the next step(s) in workflow execution after a node completes.
//
// It supports four routing modes:
//   - Edges: zero value, outgoing edges are evaluated
//   - Terminal: this branch ends (Terminal = true)
//   - Single: go to a specific node (To = "nodeID")
//   - Fan-out: go to several nodes in the next superstep (Many)
type Next struct {
	To       string
	Many     []string
	Terminal bool
}

// IsZero reports whether the node left routing to the graph edges.
func (n Next) IsZero() bool {
	return n.To == "" && len(n.Many) == 0 && !n.Terminal
}

// Stop returns a Next that terminates the current branch.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// GotoMany returns a Next that fans out to every listed node.
func GotoMany(nodeIDs ...string) Next {
	return Next{Many: nodeIDs}
}

// NodeFunc is a function adapter that implements the Node interface.
//
// Example:
//
//	summarize := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Summary: "done"}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError represents an error that occurred during node execution.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// Fail is a convenience for nodes that want to return an error result.
func Fail[S any](nodeID string, err error) NodeResult[S] {
	return NodeResult[S]{Err: &NodeError{NodeID: nodeID, Code: "NODE_FAILED", Cause: err}}
}
