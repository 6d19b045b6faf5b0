package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/logging"
	"github.com/picotests/connection-restore-tests/restoretests"
)

const reportPostTimeout = 10 * time.Second

// errTestsFailed is returned when the run completed but some tests failed. The failures
// have already been printed.
var errTestsFailed = errors.New("one or more tests failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:           "connection-restore [flags] <router-binary>",
		Short:         "Connection-restore integration tests for pub/sub clients against a router",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &params, args[0])
		},
	}
	params.addFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, params *commandParams, routerPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if params.noColor {
		color.NoColor = true
	}
	logger, err := logging.New(logging.Options{
		Level:           params.logLevel,
		Output:          cmd.ErrOrStderr(),
		ReportTimestamp: true,
	})
	if err != nil {
		return err
	}

	cfg, err := params.config(routerPath, cmd.Flags().Changed)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	framework.PrintFilterDescription(out, params.filters)
	fmt.Fprintln(out, "Running test suite")

	env, err := restoretests.NewEnvironment(ctx, cfg, restoretests.EnvironmentOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	testLogger := &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	started := time.Now()
	results := restoretests.RunTestSuite(env, params.filters.AsFilter, testLogger)

	fmt.Fprintln(out)
	framework.PrintResults(out, results)

	summary := framework.NewSummary(results, started)
	if params.reportPath != "" {
		if err := framework.WriteSummary(params.reportPath, summary); err != nil {
			logger.Error("Could not write report", "path", params.reportPath, "err", err)
		}
	}
	if params.reportURL != "" {
		if err := framework.PostSummary(params.reportURL, summary, reportPostTimeout); err != nil {
			logger.Error("Could not post report", "url", params.reportURL, "err", err)
		}
	}

	if !results.OK() {
		fmt.Fprintf(out, "\nTo rerun the failed tests:\n  %s\n", params.rerunCommand(cmd.Root().Name(), routerPath, results))
		return errTestsFailed
	}
	return nil
}
