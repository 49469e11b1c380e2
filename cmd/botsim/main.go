// Command botsim drives the bot evaluation pipeline: parse a bot
// definition, synthesize probing goals, simulate conversations against the
// live bot, and analyze the outcomes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"botsim/internal/config"
	"botsim/internal/errors"
	"botsim/internal/logging"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Exit codes: 2 missing or invalid configuration, 3 missing reviewed
// artifact, 4 transport failure exceeded retries, 1 anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsMissingArtifact(err):
		return 3
	case errors.IsConfig(err):
		return 2
	case errors.IsTransport(err):
		return 4
	default:
		return 1
	}
}

type rootFlags struct {
	configPath string
	sessionDir string
	verbose    bool
}

func (f *rootFlags) logger() logging.Logger {
	level := logging.LevelInfo
	if f.verbose {
		level = logging.LevelDebug
	}
	return logging.New(os.Stderr, level, "botsim")
}

// load reads the run configuration, letting --session-dir override the
// file.
func (f *rootFlags) load() (*config.Run, error) {
	run, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.sessionDir != "" {
		run.SessionDir = f.sessionDir
	}
	return run, nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "botsim",
		Short:         "Simulation-based evaluation and remediation for task bots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "botsim.yaml", "run configuration file")
	root.PersistentFlags().StringVar(&flags.sessionDir, "session-dir", "", "session directory (overrides config)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newPrepareCmd(flags),
		newParseCmd(flags),
		newParaphraseCmd(flags),
		newGoalsCmd(flags),
		newSimulateCmd(flags),
		newRemediateCmd(flags),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(exitCode(err))
	}
}
