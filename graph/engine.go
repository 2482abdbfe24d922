package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/store"
)

// Engine executes a workflow graph over state S.
//
// Execution proceeds in supersteps. The frontier (the set of nodes scheduled
// for the step) runs concurrently, each node on its own copy of the state.
// When every node of the step has finished, their deltas are merged through
// the reducer in frontier order, routes are resolved against the merged
// state, and the state is persisted before the next step starts. A node
// reached by several branches in the same step runs once, which is how
// parallel branches join.
//
// Build the graph with Add, StartAt and Connect, then call Run. Engines are
// safe for concurrent runs once built.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer  Reducer[S]
	nodes    map[string]Node[S]
	policies map[string]NodePolicy
	edges    []Edge[S]
	start    []string

	store   store.Store[S]
	emitter emit.Emitter

	opts   Options
	optErr error
}

// New creates an engine. A nil emitter discards events.
//
//	engine := graph.New(reduce, store.NewMemStore[State](), emit.NewLogEmitter(logger),
//	    graph.WithName("interview"),
//	    graph.WithMaxSteps(40),
//	)
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, options ...Option) *Engine[S] {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	e := &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]NodePolicy),
		store:    st,
		emitter:  emitter,
	}
	for _, opt := range options {
		if err := opt(&e.opts); err != nil && e.optErr == nil {
			e.optErr = err
		}
	}
	return e
}

// Name returns the configured graph name.
func (e *Engine[S]) Name() string { return e.opts.Name }

// Add registers a node under nodeID.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	return e.AddWithPolicy(nodeID, node, NodePolicy{})
}

// AddWithPolicy registers a node with its own timeout and retry policy.
func (e *Engine[S]) AddWithPolicy(nodeID string, node Node[S], policy NodePolicy) error {
	if nodeID == "" || nodeID == END {
		return &EngineError{Message: fmt.Sprintf("invalid node ID %q", nodeID), Code: CodeInvalidNode}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil: " + nodeID, Code: CodeInvalidNode}
	}
	if policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			return &EngineError{Message: "invalid retry policy for node " + nodeID, Code: CodeInvalidOption, Cause: err}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: CodeDuplicateNode}
	}
	e.nodes[nodeID] = node
	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the entry node(s). Several entry nodes run in parallel in the
// first superstep.
func (e *Engine[S]) StartAt(nodeIDs ...string) error {
	if len(nodeIDs) == 0 {
		return &EngineError{Message: "at least one start node is required", Code: CodeNoStartNode}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range nodeIDs {
		if _, ok := e.nodes[id]; !ok {
			return &EngineError{Message: "start node not found: " + id, Code: CodeNodeNotFound}
		}
	}
	e.start = append([]string(nil), nodeIDs...)
	return nil
}

// Connect adds an edge. to may be END. A nil predicate makes the edge
// unconditional. Every matching edge leaving a node fires.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.nodes[from]; !ok {
		return &EngineError{Message: "edge source not found: " + from, Code: CodeNodeNotFound}
	}
	if _, ok := e.nodes[to]; !ok && to != END {
		return &EngineError{Message: "edge target not found: " + to, Code: CodeNodeNotFound}
	}
	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

func (e *Engine[S]) validate() error {
	if e.optErr != nil {
		return e.optErr
	}
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeStoreError}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.start) == 0 {
		return &EngineError{Message: "start node not set (call StartAt)", Code: CodeNoStartNode}
	}
	return nil
}

// Run executes the graph from its start node(s) until every branch ends.
//
// If a node pauses (see Pause) Run returns the state merged so far together
// with an *InterruptError; continue with Resume.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	if err := e.validate(); err != nil {
		return initial, err
	}
	e.emit(runID, 0, "", emit.MsgRunStart, nil)

	e.mu.RLock()
	start := append([]string(nil), e.start...)
	e.mu.RUnlock()

	return e.execute(ctx, runID, initial, start, 0, nil)
}

// Resume continues a run paused by an interrupt. value is delivered to the
// paused node(s) through ResumeValue.
func (e *Engine[S]) Resume(ctx context.Context, runID string, value any) (S, error) {
	var zero S
	if err := e.validate(); err != nil {
		return zero, err
	}

	cp, err := e.loadCheckpoint(ctx, runID)
	if err != nil {
		return zero, err
	}
	if cp.Status != store.StatusInterrupted {
		return cp.State, &EngineError{
			Message: fmt.Sprintf("run %s is %s, not interrupted", runID, cp.Status),
			Code:    CodeNotInterrupted,
		}
	}

	e.emit(runID, cp.Step, "", emit.MsgRunResumed, map[string]any{"frontier": cp.Frontier})
	return e.execute(ctx, runID, cp.State, cp.Frontier, cp.Step, newResumeInput(cp.Interrupts, value))
}

// Checkpoint returns the latest checkpoint of a run.
func (e *Engine[S]) Checkpoint(ctx context.Context, runID string) (store.Checkpoint[S], error) {
	return e.loadCheckpoint(ctx, runID)
}

func (e *Engine[S]) loadCheckpoint(ctx context.Context, id string) (store.Checkpoint[S], error) {
	cp, err := e.store.LoadCheckpoint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return cp, &EngineError{Message: "no checkpoint for " + id, Code: CodeRunNotFound, Cause: err}
	}
	if err != nil {
		return cp, &EngineError{Message: "failed to load checkpoint", Code: CodeStoreError, Cause: err}
	}
	return cp, nil
}

type resumeInput struct {
	nodes map[string]bool
	value any
}

func newResumeInput(interrupts []store.Interrupt, value any) *resumeInput {
	ri := &resumeInput{nodes: make(map[string]bool, len(interrupts)), value: value}
	for _, in := range interrupts {
		ri.nodes[in.NodeID] = true
	}
	return ri
}

type outcome[S any] struct {
	nodeID string
	result NodeResult[S]
	pause  *store.Interrupt
}

func (e *Engine[S]) execute(ctx context.Context, runID string, state S, frontier []string, step int, resume *resumeInput) (S, error) {
	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}
	ctx = context.WithValue(ctx, runIDKey, runID)

	for len(frontier) > 0 {
		before := state
		step++
		if err := ctx.Err(); err != nil {
			return state, e.fail(ctx, runID, step, before, frontier, err)
		}
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return state, e.fail(ctx, runID, step, before, frontier, &EngineError{
				Message: fmt.Sprintf("exceeded maximum steps (%d)", e.opts.MaxSteps),
				Code:    CodeMaxStepsExceeded,
				Cause:   ErrMaxStepsExceeded,
			})
		}
		e.opts.Metrics.UpdateFrontierSize(len(frontier))

		outcomes, err := e.superstep(ctx, runID, step, state, frontier, resume)
		resume = nil
		if err != nil {
			return state, e.fail(ctx, runID, step, before, frontier, err)
		}

		var paused []store.Interrupt
		for _, o := range outcomes {
			if o.pause != nil {
				paused = append(paused, *o.pause)
				continue
			}
			state = e.reducer(state, o.result.Delta)
		}

		var next []string
		seen := make(map[string]bool)
		add := func(ids ...string) {
			for _, id := range ids {
				if !seen[id] {
					seen[id] = true
					next = append(next, id)
				}
			}
		}
		for _, in := range paused {
			add(in.NodeID)
		}
		for _, o := range outcomes {
			if o.pause != nil {
				continue
			}
			targets, err := e.route(o.nodeID, o.result.Route, state)
			if err != nil {
				return state, e.fail(ctx, runID, step, before, frontier, err)
			}
			add(targets...)
		}
		e.emit(runID, step, "", emit.MsgRouting, map[string]any{"next": next})

		if err := e.store.SaveStep(ctx, runID, step, strings.Join(frontier, ","), state); err != nil {
			return state, e.fail(ctx, runID, step, before, frontier, &EngineError{Message: "failed to save step", Code: CodeStoreError, Cause: err})
		}

		cp := store.Checkpoint[S]{
			ID:        runID,
			RunID:     runID,
			Step:      step,
			State:     state,
			Frontier:  next,
			Status:    store.StatusRunning,
			UpdatedAt: time.Now().UTC(),
		}
		switch {
		case len(paused) > 0:
			cp.Status = store.StatusInterrupted
			cp.Interrupts = paused
		case len(next) == 0:
			cp.Status = store.StatusCompleted
		}
		if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
			return state, e.fail(ctx, runID, step, before, frontier, &EngineError{Message: "failed to save checkpoint", Code: CodeStoreError, Cause: err})
		}

		if len(paused) > 0 {
			for _, in := range paused {
				e.opts.Metrics.RecordInterrupt(e.opts.Name, in.NodeID)
				e.emit(runID, step, in.NodeID, emit.MsgInterrupt, map[string]any{"payload": string(in.Payload)})
			}
			e.opts.Metrics.RecordRun(e.opts.Name, "interrupted")
			return state, &InterruptError{RunID: runID, Step: step, Interrupts: paused}
		}
		frontier = next
	}

	meta := map[string]any{"steps": step}
	if e.opts.CostTracker != nil {
		meta["total_cost_usd"] = e.opts.CostTracker.TotalCost()
	}
	e.opts.Metrics.RecordRun(e.opts.Name, "completed")
	e.emit(runID, step, "", emit.MsgRunComplete, meta)
	return state, nil
}

// failedCheckpointTimeout bounds the checkpoint write of a failing run,
// whose own context may already be done.
const failedCheckpointTimeout = 5 * time.Second

// fail records a failed checkpoint holding the state before the failing
// step and that step's frontier, so ResumeFromCheckpoint can retry it.
func (e *Engine[S]) fail(ctx context.Context, runID string, step int, before S, frontier []string, err error) error {
	meta := map[string]any{"error": err.Error()}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failedCheckpointTimeout)
	defer cancel()
	cp := store.Checkpoint[S]{
		ID:        runID,
		RunID:     runID,
		Step:      step - 1,
		State:     before,
		Frontier:  frontier,
		Status:    store.StatusFailed,
		UpdatedAt: time.Now().UTC(),
	}
	if serr := e.store.SaveCheckpoint(saveCtx, cp); serr != nil {
		meta["checkpoint_error"] = serr.Error()
	}

	e.opts.Metrics.RecordRun(e.opts.Name, "failed")
	e.emit(runID, step, "", emit.MsgRunFailed, meta)
	return err
}

// superstep runs every frontier node concurrently and returns their
// outcomes in frontier order.
func (e *Engine[S]) superstep(ctx context.Context, runID string, step int, state S, frontier []string, resume *resumeInput) ([]outcome[S], error) {
	outcomes := make([]outcome[S], len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxConcurrentNodes > 0 {
		g.SetLimit(e.opts.MaxConcurrentNodes)
	}

	for i, id := range frontier {
		input := state
		if len(frontier) > 1 {
			copied, err := deepCopy(state)
			if err != nil {
				return nil, &EngineError{Message: "failed to copy state for " + id, Code: CodeStateCopy, Cause: err}
			}
			input = copied
		}

		nctx := context.WithValue(gctx, nodeIDKey, id)
		if resume != nil && resume.nodes[id] {
			nctx = withResume(nctx, resume.value)
		}

		g.Go(func() error {
			res := e.runNode(nctx, runID, step, id, input)
			if p, ok := isPause(res.Err); ok {
				payload, err := json.Marshal(p.payload)
				if err != nil {
					return &NodeError{NodeID: id, Code: "INVALID_INTERRUPT", Message: "interrupt payload is not JSON serializable", Cause: err}
				}
				outcomes[i] = outcome[S]{nodeID: id, pause: &store.Interrupt{NodeID: id, Payload: payload}}
				return nil
			}
			if res.Err != nil {
				return res.Err
			}
			outcomes[i] = outcome[S]{nodeID: id, result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runNode executes one node with its timeout and retry policy.
func (e *Engine[S]) runNode(ctx context.Context, runID string, step int, nodeID string, state S) NodeResult[S] {
	e.mu.RLock()
	node, ok := e.nodes[nodeID]
	policy := e.policies[nodeID]
	e.mu.RUnlock()

	if !ok {
		return NodeResult[S]{Err: &EngineError{Message: "node not found: " + nodeID, Code: CodeNodeNotFound}}
	}

	retry := policy.RetryPolicy
	if retry == nil {
		retry = e.opts.DefaultRetryPolicy
	}
	maxAttempts := 1
	if retry != nil {
		maxAttempts = retry.MaxAttempts
	}
	timeout := getNodeTimeout(policy, e.opts.DefaultNodeTimeout)

	for attempt := 0; ; attempt++ {
		e.emit(runID, step, nodeID, emit.MsgNodeStart, map[string]any{"attempt": attempt + 1})

		start := time.Now()
		e.opts.Metrics.nodeStarted()
		res := e.runAttempt(ctx, nodeID, node, state, timeout)
		e.opts.Metrics.nodeFinished()
		elapsed := time.Since(start)

		if _, paused := isPause(res.Err); paused {
			e.opts.Metrics.RecordStepLatency(e.opts.Name, nodeID, elapsed, "interrupted")
			e.emit(runID, step, nodeID, emit.MsgNodeEnd, map[string]any{"duration_ms": elapsed.Milliseconds(), "interrupted": true})
			return res
		}
		if res.Err == nil {
			e.opts.Metrics.RecordStepLatency(e.opts.Name, nodeID, elapsed, "success")
			e.emit(runID, step, nodeID, emit.MsgNodeEnd, map[string]any{"duration_ms": elapsed.Milliseconds()})
			return res
		}

		status := "error"
		if HasCode(res.Err, CodeNodeTimeout) {
			status = "timeout"
		}
		e.opts.Metrics.RecordStepLatency(e.opts.Name, nodeID, elapsed, status)
		e.emit(runID, step, nodeID, emit.MsgNodeError, map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"attempt":     attempt + 1,
			"error":       res.Err.Error(),
		})

		if attempt+1 >= maxAttempts || !retry.retryable(res.Err) {
			res.Err = wrapNodeError(nodeID, res.Err)
			return res
		}

		delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, nil)
		e.opts.Metrics.IncrementRetries(e.opts.Name, nodeID, status)
		e.emit(runID, step, nodeID, emit.MsgNodeRetry, map[string]any{"attempt": attempt + 2, "delay_ms": delay.Milliseconds()})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = wrapNodeError(nodeID, ctx.Err())
			return res
		case <-timer.C:
		}
	}
}

// runAttempt runs the node once under the per-node timeout, converting
// panics into errors.
func (e *Engine[S]) runAttempt(parent context.Context, nodeID string, node Node[S], state S, timeout time.Duration) (res NodeResult[S]) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = NodeResult[S]{Err: &NodeError{NodeID: nodeID, Code: "NODE_PANIC", Message: fmt.Sprintf("panic: %v", r)}}
		}
	}()

	res = node.Run(ctx, state)

	if timeout > 0 && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Err = &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    CodeNodeTimeout,
			Cause:   context.DeadlineExceeded,
		}
	}
	return res
}

func wrapNodeError(nodeID string, err error) error {
	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}
	code := "NODE_FAILED"
	if HasCode(err, CodeNodeTimeout) {
		code = CodeNodeTimeout
	}
	return &NodeError{NodeID: nodeID, Code: code, Cause: err}
}

// route resolves the successors of a completed node.
func (e *Engine[S]) route(from string, next Next, state S) ([]string, error) {
	switch {
	case next.Terminal:
		return nil, nil
	case next.To != "":
		return e.targets([]string{next.To})
	case len(next.Many) > 0:
		return e.targets(next.Many)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []string
	matched := false
	for _, edge := range e.edges {
		if edge.From != from {
			continue
		}
		if edge.When != nil && !edge.When(state) {
			continue
		}
		matched = true
		if edge.To != END {
			out = append(out, edge.To)
		}
	}
	if !matched {
		return nil, &EngineError{Message: "no valid route from node " + from, Code: CodeNoRoute, Cause: ErrNoRoute}
	}
	return out, nil
}

func (e *Engine[S]) targets(ids []string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == END {
			continue
		}
		if _, ok := e.nodes[id]; !ok {
			return nil, &EngineError{Message: "route target not found: " + id, Code: CodeNodeNotFound}
		}
		out = append(out, id)
	}
	return out, nil
}

func (e *Engine[S]) emit(runID string, step int, nodeID, msg string, meta map[string]any) {
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Graph:  e.opts.Name,
		Step:   step,
		NodeID: nodeID,
		Msg:    msg,
		Time:   time.Now(),
		Meta:   meta,
	})
}
