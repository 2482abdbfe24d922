package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/analyst-agent/agent/analyst"
	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/graph"
)

// Draft is the analyst team of a pipeline run. While Pending is true the
// run waits for Review.
type Draft struct {
	RunID    string                 `json:"run_id"`
	Analysts []interview.Analyst    `json:"analysts"`
	Pending  bool                   `json:"pending"`
	Review   *analyst.ReviewRequest `json:"review,omitempty"`
}

// Section is the report section written for one analyst.
type Section struct {
	Analyst  interview.Analyst `json:"analyst"`
	Sections []string          `json:"sections"`
}

// Reviewer answers an analyst review request with "approve", free-text
// feedback or an analyst.Review.
type Reviewer func(ctx context.Context, draft Draft) (any, error)

// Pipeline drafts analysts with the analyst graph and interviews on behalf
// of each approved analyst.
type Pipeline struct {
	Analysts   *graph.Engine[analyst.State]
	Interviews *graph.Engine[interview.State]
	// MaxNumTurns per interview; zero uses the interview default.
	MaxNumTurns int
	// Concurrency bounds parallel interviews; zero or less is unbounded.
	Concurrency int
	Logger      *zap.Logger
}

func (p *Pipeline) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// draft turns the outcome of an analyst graph call into a Draft.
func draft(runID string, s analyst.State, err error) (Draft, error) {
	d := Draft{RunID: runID, Analysts: s.Analysts}
	var ie *graph.InterruptError
	if errors.As(err, &ie) {
		d.Pending = true
		for _, in := range ie.Interrupts {
			if in.NodeID != analyst.NodeHumanReview {
				continue
			}
			var req analyst.ReviewRequest
			if decodeErr := in.Decode(&req); decodeErr != nil {
				return d, fmt.Errorf("decode review request: %w", decodeErr)
			}
			d.Review = &req
		}
		return d, nil
	}
	return d, err
}

// Plan drafts up to maxAnalysts analysts for topic and pauses for review.
func (p *Pipeline) Plan(ctx context.Context, runID, topic string, maxAnalysts int) (Draft, error) {
	s, err := p.Analysts.Run(ctx, runID, analyst.State{Topic: topic, MaxAnalysts: maxAnalysts})
	return draft(runID, s, err)
}

// Review resumes a paused run with feedback. The returned draft is pending
// again unless the feedback approved the team.
func (p *Pipeline) Review(ctx context.Context, runID string, feedback any) (Draft, error) {
	s, err := p.Analysts.Resume(ctx, runID, feedback)
	return draft(runID, s, err)
}

// Interview runs one interview per analyst concurrently. Results keep the
// order of analysts; the first failure cancels the rest.
func (p *Pipeline) Interview(ctx context.Context, runID, topic string, analysts []interview.Analyst) ([]Section, error) {
	out := make([]Section, len(analysts))
	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, a := range analysts {
		g.Go(func() error {
			id := fmt.Sprintf("%s/interview-%d", runID, i)
			p.log().Info("interview started", zap.String("run_id", id), zap.String("analyst", a.Name))
			sections, err := interview.Sections(gctx, p.Interviews, id, a, topic, p.MaxNumTurns)
			if err != nil {
				return fmt.Errorf("interview with %s: %w", a.Name, err)
			}
			out[i] = Section{Analyst: a, Sections: sections}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Run drafts analysts, asks review until the team is approved, and
// interviews on behalf of each analyst.
func (p *Pipeline) Run(ctx context.Context, runID, topic string, maxAnalysts int, review Reviewer) ([]Section, error) {
	d, err := p.Plan(ctx, runID, topic, maxAnalysts)
	for err == nil && d.Pending {
		var feedback any
		feedback, err = review(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("review analysts: %w", err)
		}
		d, err = p.Review(ctx, runID, feedback)
	}
	if err != nil {
		return nil, err
	}
	return p.Interview(ctx, runID, topic, d.Analysts)
}
