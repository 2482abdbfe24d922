package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/store"
)

// SaveCheckpoint copies the current checkpoint of runID under label so the
// run can later be branched from this point with ResumeFromCheckpoint.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID, label string) error {
	if label == "" || label == runID {
		return &EngineError{Message: fmt.Sprintf("invalid checkpoint label %q", label), Code: CodeInvalidOption}
	}
	cp, err := e.loadCheckpoint(ctx, runID)
	if err != nil {
		return err
	}
	cp.ID = label
	cp.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return &EngineError{Message: "failed to save checkpoint", Code: CodeStoreError, Cause: err}
	}
	e.emit(runID, cp.Step, "", emit.MsgCheckpoint, map[string]any{"label": label})
	return nil
}

// ResumeFromCheckpoint starts a new run, newRunID, from a labelled
// checkpoint. If the checkpoint was taken while the run was paused, value is
// delivered to the paused nodes as with Resume.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, label, newRunID string, value any) (S, error) {
	var zero S
	if err := e.validate(); err != nil {
		return zero, err
	}
	cp, err := e.loadCheckpoint(ctx, label)
	if err != nil {
		return zero, err
	}
	if cp.Status == store.StatusCompleted || len(cp.Frontier) == 0 {
		return cp.State, nil
	}

	var resume *resumeInput
	if cp.Status == store.StatusInterrupted {
		resume = newResumeInput(cp.Interrupts, value)
	}
	e.emit(newRunID, cp.Step, "", emit.MsgRunResumed, map[string]any{"from_checkpoint": label})
	return e.execute(ctx, newRunID, cp.State, cp.Frontier, cp.Step, resume)
}
