// Package tool defines callable tools that a chat model can invoke, plus the
// HTTP client shared by tools that call web APIs.
package tool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/analyst-agent/graph/model"
)

// Tool is an operation a model can request through a tool call.
//
// Spec describes the tool to the model. Call receives the decoded arguments
// and returns the text handed back to the model.
type Tool interface {
	Spec() model.ToolSpec
	Call(ctx context.Context, input map[string]any) (string, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolSpec model.ToolSpec
	Fn       func(ctx context.Context, input map[string]any) (string, error)
}

// New returns a Tool backed by fn.
func New(spec model.ToolSpec, fn func(ctx context.Context, input map[string]any) (string, error)) *Func {
	return &Func{ToolSpec: spec, Fn: fn}
}

// Spec implements Tool.
func (f *Func) Spec() model.ToolSpec { return f.ToolSpec }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, input map[string]any) (string, error) {
	return f.Fn(ctx, input)
}

// Specs returns the model-facing descriptions of tools.
func Specs(tools ...Tool) []model.ToolSpec {
	specs := make([]model.ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = t.Spec()
	}
	return specs
}

// Execute runs every call concurrently against the matching tool and
// returns one tool result message per call, in call order. A failing tool
// produces an error message for the model instead of failing the batch;
// only context cancellation is returned as an error.
func Execute(ctx context.Context, tools []Tool, calls []model.ToolCall) ([]model.Message, error) {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Spec().Name] = t
	}

	results := make([]model.Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			t, ok := byName[call.Name]
			if !ok {
				results[i] = model.ToolResult(call.ID, call.Name, fmt.Sprintf("Error: unknown tool %q", call.Name))
				return nil
			}
			out, err := t.Call(gctx, call.Input)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				out = "Error: " + err.Error()
			}
			results[i] = model.ToolResult(call.ID, call.Name, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
