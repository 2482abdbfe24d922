// Package graph provides a stateful, graph-structured workflow engine for
// LLM agents: nodes exchange partial state updates that a reducer merges,
// edges (optionally conditional) decide what runs next, and branches that
// fan out run concurrently in supersteps.
package graph

// END is the pseudo-node that terminates a branch when used as an edge target.
const END = "__end__"

// Edge represents a connection between two nodes in the workflow graph.
//
// Edges can be:
//   - Unconditional: always traversed (When = nil).
//   - Conditional: traversed only when When(state) returns true.
//
// All matching edges leaving a node fire, so two unconditional edges from the
// same node fan out into parallel branches. Nodes can override edges by
// returning an explicit Route.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID or END.
	To string

	// When is an optional predicate evaluated against the merged state.
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge is traversed.
// Predicates should be pure functions.
type Predicate[S any] func(state S) bool

// Not negates a predicate.
func Not[S any](p Predicate[S]) Predicate[S] {
	return func(s S) bool { return !p(s) }
}
