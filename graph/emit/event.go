package emit

import "time"

// Event names emitted by the engine.
const (
	MsgRunStart    = "run_start"
	MsgRunComplete = "run_complete"
	MsgRunFailed   = "run_failed"
	MsgRunResumed  = "run_resumed"
	MsgNodeStart   = "node_start"
	MsgNodeEnd     = "node_end"
	MsgNodeError   = "node_error"
	MsgNodeRetry   = "node_retry"
	MsgRouting     = "routing_decision"
	MsgInterrupt   = "interrupt"
	MsgCheckpoint  = "checkpoint_saved"
)

// Event is an observability record produced while a graph runs.
type Event struct {
	// RunID identifies the workflow execution.
	RunID string `json:"run_id"`

	// Graph is the name of the graph that produced the event.
	Graph string `json:"graph,omitempty"`

	// Step is the superstep number (1 based, 0 for run-level events).
	Step int `json:"step"`

	// NodeID is empty for run-level events.
	NodeID string `json:"node_id,omitempty"`

	// Msg is one of the Msg* constants.
	Msg string `json:"msg"`

	Time time.Time `json:"time"`

	// Meta carries event specific details such as duration_ms, error,
	// next (routing) or attempt (retries).
	Meta map[string]any `json:"meta,omitempty"`
}
