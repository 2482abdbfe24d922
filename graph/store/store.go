// Package store provides persistence for graph runs: step history and the
// checkpoints used to resume interrupted or crashed runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")

// Store persists workflow state. Implementations must be safe for
// concurrent use and serialize S as JSON.
type Store[S any] interface {
	// SaveStep records the state after a superstep. nodeID lists the nodes
	// that ran in the step (comma separated). Saving the same (runID, step)
	// twice replaces the record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state of the highest step of a run.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// ListSteps returns the step history of a run in ascending order.
	ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error)

	// SaveCheckpoint inserts or replaces the checkpoint with cp.ID.
	SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error

	// LoadCheckpoint returns the checkpoint with the given ID.
	LoadCheckpoint(ctx context.Context, id string) (Checkpoint[S], error)

	// DeleteCheckpoint removes a checkpoint. Deleting a missing checkpoint
	// returns ErrNotFound.
	DeleteCheckpoint(ctx context.Context, id string) error
}

// StepRecord is one entry of a run's history.
type StepRecord[S any] struct {
	Step   int    `json:"step"`
	NodeID string `json:"node_id"`
	State  S      `json:"state"`
}

// Status is the lifecycle state recorded in a checkpoint.
type Status string

const (
	StatusRunning     Status = "running"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Interrupt records a node that paused the run waiting for input.
type Interrupt struct {
	NodeID  string          `json:"node_id"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the interrupt payload into v.
func (i Interrupt) Decode(v any) error {
	return json.Unmarshal(i.Payload, v)
}

// Checkpoint is everything needed to continue a run: the merged state, the
// nodes scheduled for the next superstep, and any pending interrupts.
type Checkpoint[S any] struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Step       int         `json:"step"`
	State      S           `json:"state"`
	Frontier   []string    `json:"frontier"`
	Status     Status      `json:"status"`
	Interrupts []Interrupt `json:"interrupts,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
