// Package cli implements the tripwise command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/logging"
)

// options are the global flags.
type options struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tripwise",
		Short: "A conversational travel planner",
		Long: `tripwise answers travel questions and builds day-by-day plans with a
tool-calling language model. Tools look up weather, places, exchange rates
and budgets; conversations are kept per session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newChatCommand(opts),
		newAskCommand(opts),
		newMCPCommand(opts),
		newToolsCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+errors.FormatUserMessage(err))
		return 1
	}
	return 0
}

func (o *options) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func (o *options) logger(cfg *config.Config) (*zap.SugaredLogger, error) {
	return logging.New(o.verbose || cfg.Log.Verbose)
}

// runtime loads config and wires a Runtime. quiet drops logging unless
// --verbose is set, for commands that own the terminal.
func (o *options) runtime(ctx context.Context, quiet bool) (*Runtime, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop().Sugar()
	if !quiet || o.verbose {
		if logger, err = o.logger(cfg); err != nil {
			return nil, err
		}
	}
	return NewRuntime(ctx, cfg, logger)
}
