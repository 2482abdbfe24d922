package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent"
	"github.com/dshills/analyst-agent/agent/analyst"
	"github.com/dshills/analyst-agent/agent/interview/market"
	"github.com/dshills/analyst-agent/agent/interview/research"
	"github.com/dshills/analyst-agent/graph/model"
	"github.com/dshills/analyst-agent/internal/app"
	"github.com/dshills/analyst-agent/internal/server"
)

func runIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// lineReviewer shows each draft on out and reads one line of feedback from
// in. An empty line or end of input approves the team.
func lineReviewer(in io.Reader, out io.Writer) agent.Reviewer {
	scanner := bufio.NewScanner(in)
	return func(_ context.Context, d agent.Draft) (any, error) {
		if d.Review != nil {
			fmt.Fprintln(out, d.Review.Instruction)
			for _, persona := range d.Review.GeneratedAnalysts {
				fmt.Fprintf(out, "\n%s\n", persona)
			}
		}
		fmt.Fprint(out, "\nFeedback (empty to approve): ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return analyst.Approve, nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return analyst.Approve, nil
		}
		return line, nil
	}
}

func newAnalystsCmd(flags *globalFlags) *cobra.Command {
	var (
		topic       string
		maxAnalysts int
		runID       string
	)
	cmd := &cobra.Command{
		Use:   "analysts",
		Short: "Draft analyst personas for a topic and review them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				id := runIDOrNew(runID)
				review := lineReviewer(cmd.InOrStdin(), cmd.ErrOrStderr())
				d, err := a.Pipeline.Plan(ctx, id, topic, maxAnalysts)
				for err == nil && d.Pending {
					var feedback any
					if feedback, err = review(ctx, d); err != nil {
						return err
					}
					d, err = a.Pipeline.Review(ctx, id, feedback)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d.Analysts)
			})
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "research topic")
	cmd.Flags().IntVarP(&maxAnalysts, "max-analysts", "n", analyst.DefaultMaxAnalysts, "number of analysts to draft")
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (default random)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newInterviewCmd(flags *globalFlags) *cobra.Command {
	var topic, runID string
	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Interview an expert on a topic with the default analyst",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				final, err := a.Agent.Run(ctx, runIDOrNew(runID), agent.State{Messages: []model.Message{model.User(topic)}})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(final.Sections, "\n\n"))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "interview topic")
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (default random)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

// questionCmd builds a command that answers its arguments joined as one
// question.
func questionCmd(flags *globalFlags, use, short string, answer func(ctx context.Context, a *app.App, runID, q string) (string, error)) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   use + " <question>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.TrimSpace(strings.Join(args, " "))
			if q == "" {
				return errors.New("question is empty")
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				text, err := answer(ctx, a, runIDOrNew(runID), q)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (default random)")
	return cmd
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	return questionCmd(flags, "ask", "Route a question to the financial or general graph",
		func(ctx context.Context, a *app.App, runID, q string) (string, error) {
			msg, category, err := agent.Ask(ctx, a.Router, runID, q)
			if err != nil {
				return "", err
			}
			a.Logger.Debug("question answered", zap.String("category", category))
			return msg.Content, nil
		})
}

func newMarketCmd(flags *globalFlags) *cobra.Command {
	return questionCmd(flags, "market", "Write a market analysis report",
		func(ctx context.Context, a *app.App, runID, q string) (string, error) {
			msgs, err := market.Answer(ctx, a.Market, runID, []model.Message{model.User(q)})
			if err != nil {
				return "", err
			}
			return model.Last(msgs).Content, nil
		})
}

func newResearchCmd(flags *globalFlags) *cobra.Command {
	return questionCmd(flags, "research", "Answer a question from arXiv papers",
		func(ctx context.Context, a *app.App, runID, q string) (string, error) {
			msg, err := research.Answer(ctx, a.Research, runID, q)
			if err != nil {
				return "", err
			}
			return msg.Content, nil
		})
}

func newPipelineCmd(flags *globalFlags) *cobra.Command {
	var (
		topic       string
		maxAnalysts int
		runID       string
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Draft analysts, review them, then interview on behalf of each",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				sections, err := a.Pipeline.Run(ctx, runIDOrNew(runID), topic, maxAnalysts,
					lineReviewer(cmd.InOrStdin(), cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sections)
			})
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "research topic")
	cmd.Flags().IntVarP(&maxAnalysts, "max-analysts", "n", analyst.DefaultMaxAnalysts, "number of analysts to draft")
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (default random)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				return server.New(a).ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from configuration)")
	return cmd
}
