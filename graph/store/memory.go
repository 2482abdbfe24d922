package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-process use.
//
// States are stored as JSON so that callers cannot mutate persisted
// history through shared slices or maps. With WithMaxFinishedRuns the
// store forgets the oldest completed or failed runs; interrupted runs and
// labelled checkpoints are kept.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]memStep // runID -> steps
	checkpoints map[string]json.RawMessage

	maxFinished int
	finished    []string // oldest first
}

// MemOption configures a MemStore.
type MemOption func(*memOptions)

type memOptions struct {
	maxFinished int
}

// WithMaxFinishedRuns bounds how many completed or failed runs are kept.
// Zero keeps every run.
func WithMaxFinishedRuns(n int) MemOption {
	return func(o *memOptions) { o.maxFinished = n }
}

type memStep struct {
	step   int
	nodeID string
	state  json.RawMessage
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any](opts ...MemOption) *MemStore[S] {
	var o memOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &MemStore[S]{
		steps:       make(map[string][]memStep),
		checkpoints: make(map[string]json.RawMessage),
		maxFinished: o.maxFinished,
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	steps := m.steps[runID]
	for i := range steps {
		if steps[i].step == step {
			steps[i] = memStep{step: step, nodeID: nodeID, state: data}
			return nil
		}
	}
	steps = append(steps, memStep{step: step, nodeID: nodeID, state: data})
	sort.Slice(steps, func(i, j int) bool { return steps[i].step < steps[j].step })
	m.steps[runID] = steps
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (S, int, error) {
	var zero S

	m.mu.RLock()
	steps := m.steps[runID]
	if len(steps) == 0 {
		m.mu.RUnlock()
		return zero, 0, ErrNotFound
	}
	last := steps[len(steps)-1]
	m.mu.RUnlock()

	var state S
	if err := json.Unmarshal(last.state, &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, last.step, nil
}

// ListSteps implements Store.
func (m *MemStore[S]) ListSteps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	steps := append([]memStep(nil), m.steps[runID]...)
	m.mu.RUnlock()

	if len(steps) == 0 {
		return nil, ErrNotFound
	}
	out := make([]StepRecord[S], 0, len(steps))
	for _, s := range steps {
		var state S
		if err := json.Unmarshal(s.state, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %d: %w", s.step, err)
		}
		out = append(out, StepRecord[S]{Step: s.step, NodeID: s.nodeID, State: state})
	}
	return out, nil
}

// SaveCheckpoint implements Store.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cp Checkpoint[S]) error {
	if cp.ID == "" {
		return fmt.Errorf("checkpoint ID cannot be empty")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ID] = data
	if cp.ID == cp.RunID {
		m.track(cp.RunID, cp.Status == StatusCompleted || cp.Status == StatusFailed)
	}
	return nil
}

// track moves runID to the newest end of the finished list, or out of it
// when the run is live again, then evicts past the limit. Callers hold mu.
func (m *MemStore[S]) track(runID string, finished bool) {
	if m.maxFinished <= 0 {
		return
	}
	for i, id := range m.finished {
		if id == runID {
			m.finished = append(m.finished[:i], m.finished[i+1:]...)
			break
		}
	}
	if !finished {
		return
	}
	m.finished = append(m.finished, runID)
	for len(m.finished) > m.maxFinished {
		oldest := m.finished[0]
		m.finished = m.finished[1:]
		delete(m.steps, oldest)
		delete(m.checkpoints, oldest)
	}
}

// Len returns the number of runs with stored steps.
func (m *MemStore[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps)
}

// LoadCheckpoint implements Store.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, id string) (Checkpoint[S], error) {
	m.mu.RLock()
	data, ok := m.checkpoints[id]
	m.mu.RUnlock()

	var cp Checkpoint[S]
	if !ok {
		return cp, ErrNotFound
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// DeleteCheckpoint implements Store.
func (m *MemStore[S]) DeleteCheckpoint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkpoints[id]; !ok {
		return ErrNotFound
	}
	delete(m.checkpoints, id)
	return nil
}
