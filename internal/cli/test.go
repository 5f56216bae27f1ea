package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario under both cache kinds and compare golden traces",
		Long: `Run every scenario file (.yaml, .yml) under a directory.

Each run step is evaluated cached and uncached; the two must agree and
match the step's expectations. The trace of each scenario is compared with
its golden file (<scenarios-dir>/golden/<name>.golden by default).

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  lineage test ./scenarios
  lineage test ./scenarios --filter "diamond*"
  lineage test ./scenarios --update
  lineage test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return outputCommandError(formatter, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("scenarios directory not found: %s", dir),
		})
	}

	result, err := harness.RunSuite(commandContext(cmd), dir, harness.SuiteOptions{
		Filter:    opts.Filter,
		GoldenDir: opts.GoldenDir,
		Update:    opts.Update,
	}, harness.WithLogger(opts.Logger(cmd.ErrOrStderr())))
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeScanError, Message: err.Error()})
	}

	if formatter.IsJSON() {
		if result.Failed == 0 {
			return formatter.Success(result)
		}
		if err := formatter.Failure(ErrCodeScenarioFailed, fmt.Sprintf("%d scenario(s) failed", result.Failed), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	w := formatter.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	for _, sc := range result.Scenarios {
		if sc.Pass {
			fmt.Fprintf(w, "✓ %s", sc.Name)
		} else {
			fmt.Fprintf(w, "✗ %s", sc.Name)
		}
		if sc.Golden != "" {
			fmt.Fprintf(w, " (golden: %s)", sc.Golden)
		}
		fmt.Fprintln(w)
		if opts.Verbose {
			fmt.Fprintf(w, "  %s, %d run(s)\n", sc.Path, sc.Runs)
		}
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Results: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
