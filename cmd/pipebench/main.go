package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/torosent/pipebench/internal/config"
)

const (
	workerCommand = "worker"
	exitUsage     = 2
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, config.ErrUsage) {
			os.Exit(exitUsage)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == workerCommand {
		// Interrupts reach the whole process group; only the coordinator acts
		// on them. Ignored before flag parsing so a Ctrl-C during startup
		// cannot kill the worker.
		signal.Ignore(os.Interrupt)
	}
	return execute(context.Background(), args, os.Stdout, os.Stderr)
}

// execute runs the command line against the given streams. Invoked with no
// arguments it prints usage and returns config.ErrUsage.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	if len(args) == 0 {
		_ = root.Help()
		return config.ErrUsage
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "pipebench [flags] URL",
		Short: "Multi-process HTTP GET load generator",
		Long: `pipebench spawns worker processes that each run concurrent GET request
cycles against one URL. Workers stream batched statistics back over pipes and
the coordinator shows a live summary until interrupted with Ctrl-C.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().FromFlags(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return runCoordinator(cmd.Context(), cfg, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root)
	root.AddCommand(newWorkerCommand(stderr))
	return root
}
