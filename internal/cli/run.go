package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/harness"
	"github.com/roach88/lineage/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // optional journal
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario string `json:"scenario"`
	*harness.Result
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario and print query rows",
		Long: `Execute the steps of a scenario against a fresh store and print the
rows of every run step.

Each run step is evaluated under both cache kinds; the rows printed are
the uncached ones. With --db, every mutation and run is journaled into a
SQLite database that "lineage replay" can verify later.

Exit codes:
  0 - Every step and expectation passed
  1 - A step failed or an expectation did not hold
  2 - Command error (scenario not found or invalid, journal error)

Examples:
  lineage run ./scenarios/hierarchy.yaml
  lineage run ./scenarios/hierarchy.yaml --db ./lineage.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal mutations and runs into this SQLite database")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()})
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Database != "" {
		logger.Info("opening journal", "path", opts.Database)
		st, err := journal.Open(opts.Database)
		if err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeJournal, Message: err.Error()})
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithJournal(st))
	}

	result, err := harness.Run(commandContext(cmd), scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s could not run", scenario.Name), err)
	}

	out := RunOutput{Scenario: scenario.Name, Result: result}
	if formatter.IsJSON() {
		if result.Pass {
			return formatter.Success(out)
		}
		if err := formatter.Failure(ErrCodeScenarioFailed, fmt.Sprintf("scenario %s failed", scenario.Name), out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}

	w := formatter.Writer
	for _, ev := range result.Trace {
		switch {
		case ev.Type == harness.EventRun && ev.Error == "":
			fmt.Fprintf(w, "run %s (step %d): %d row(s)\n", ev.Query, ev.Seq, len(ev.Rows))
			for _, row := range ev.Rows {
				fmt.Fprintf(w, "  %s\n", row)
			}
		case ev.Type == harness.EventRun:
			fmt.Fprintf(w, "run %s (step %d): error: %s\n", ev.Query, ev.Seq, ev.Error)
		case opts.Verbose:
			fmt.Fprintf(w, "%s %s (step %d)\n", ev.Op, ev.Entity, ev.Seq)
		}
	}
	fmt.Fprintln(w)

	if result.Pass {
		fmt.Fprintf(w, "✓ %s: %d run(s)\n", scenario.Name, result.Runs)
		return nil
	}
	fmt.Fprintf(w, "✗ %s\n", scenario.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
}
