package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/config"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
)

// #region exit-codes
const (
	exitIgnition     = 0
	exitFailure      = 1 // startup failure or no cell produced observables
	exitNoAcceptance = 3
)

// ExitError carries the process exit code out of a cobra command.
type ExitError struct {
	Code    int
	Wrapped error
}

func (e *ExitError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("exit %d: %v", e.Code, e.Wrapped)
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Wrapped
}

// exitCode maps a finished sweep onto the process exit code.
func exitCode(outcome decision.Outcome, err error) int {
	switch {
	case err != nil:
		return exitFailure
	case outcome == decision.OutcomeIgnition:
		return exitIgnition
	case outcome == decision.OutcomeNoAcceptance:
		return exitNoAcceptance
	default:
		return exitFailure
	}
}

// #endregion exit-codes

// #region commands
var (
	configPath  string
	dryRun      bool
	metricsFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sweep",
		Short:         "Run the (alpha, K) ignition sweep and record evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the sweep grid and its controls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return &ExitError{Code: exitFailure, Wrapped: err}
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Backend.DryRun = dryRun
			}

			outcome, err := runSweep(cmd.Context(), cfg, metricsFile, cmd.OutOrStdout())
			if code := exitCode(outcome, err); code != exitIgnition {
				return &ExitError{Code: code, Wrapped: err}
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults apply when empty)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the in-process synthetic executor")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write a Prometheus textfile snapshot here")

	root.AddCommand(runCmd)
	return root
}

// #endregion commands

// #region main
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Wrapped != nil {
			fmt.Fprintf(os.Stderr, "sweep: %v\n", exitErr.Wrapped)
		}
		stop()
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
	stop()
	os.Exit(exitFailure)
}

// #endregion main
