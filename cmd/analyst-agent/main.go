// Command analyst-agent runs the analyst, interview and question-answering
// graphs from the command line or as an HTTP service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/internal/app"
	"github.com/dshills/analyst-agent/internal/config"
	"github.com/dshills/analyst-agent/internal/logging"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "analyst-agent",
		Short: "Analyst and interview agent graphs",
		Long: `analyst-agent drafts analyst personas for a research topic, interviews
experts on their behalf and answers financial, market and research questions.

Configuration is read from .env files, an optional YAML file and the
environment, in that order.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "env files to load (default .env, .env.local)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newAnalystsCmd(flags),
		newInterviewCmd(flags),
		newAskCmd(flags),
		newMarketCmd(flags),
		newResearchCmd(flags),
		newPipelineCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// open loads the configuration and builds the application. The caller
// closes the result.
func open(ctx context.Context, flags *globalFlags) (*app.App, error) {
	cfg, err := config.Load(flags.configPath, flags.envFiles...)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Overrides{Logger: logger})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// withApp runs fn with a freshly built application and releases it
// afterwards.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := open(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("shutdown", zap.Error(err))
		}
		_ = a.Logger.Sync()
	}()
	return fn(ctx, a)
}
