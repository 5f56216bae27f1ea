package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	Query     string // optional: verify runs of this query only
	CacheKind string // optional: verify runs of this cache kind only
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a journal and verify query runs",
		Long: `Rebuild the store from the mutations in a journal and rerun every
journaled query run at its original position, comparing row hashes.

Every mutation is always applied; --query and --cache only limit which
runs are verified.

Exit codes:
  0 - Every verified run reproduced
  1 - One or more runs differ from the journal
  2 - Command error (journal not found, unreadable, diverged)

Examples:
  lineage replay --db ./lineage.db
  lineage replay --db ./lineage.db --query inherited --cache always
  lineage replay --db ./lineage.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Query, "query", "", "verify runs of this query only")
	cmd.Flags().StringVar(&opts.CacheKind, "cache", "", "verify runs of this cache kind only (always|never|default)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	if _, err := os.Stat(opts.Database); err != nil {
		return outputCommandError(formatter, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("journal not found: %s", opts.Database),
		})
	}
	st, err := journal.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeJournal, Message: err.Error()})
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	result, err := journal.Replay(commandContext(cmd), st,
		journal.WithReplayLogger(logger),
		journal.WithRunFilter(journal.RunFilter{QueryName: opts.Query, CacheKind: opts.CacheKind}))
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeJournal, Message: err.Error()})
	}

	if formatter.IsJSON() {
		if result.Deterministic {
			return formatter.Success(result)
		}
		if err := formatter.Failure(ErrCodeNonDeterminism, "replay verification failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "replay verification failed")
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Replay Summary: %d mutation(s), %d run(s), last seq %d\n",
		result.Mutations, len(result.Runs), result.LastSeq)
	fmt.Fprintln(w)

	for _, check := range result.Runs {
		status := "✓"
		if !check.Match {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s %s (seq %d, %s): %d row(s)\n",
			status, check.RunID, check.QueryName, check.Seq, check.CacheKind, check.RowCount)
		if opts.Verbose || !check.Match {
			fmt.Fprintf(w, "  expected: %s\n", check.ExpectedHash)
			fmt.Fprintf(w, "  actual:   %s\n", check.ActualHash)
		}
		if check.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", check.Error)
		}
	}
	if len(result.Runs) > 0 {
		fmt.Fprintln(w)
	}

	if result.Deterministic {
		fmt.Fprintln(w, "✓ All runs reproduced")
		return nil
	}
	fmt.Fprintf(w, "✗ %d run(s) differ from the journal\n", len(result.Mismatches()))
	return NewExitError(ExitFailure, "replay verification failed")
}
