package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	World string
}

// ExplainResult is the compiled form of one query.
type ExplainResult struct {
	Query    string   `json:"query"`
	Hash     string   `json:"hash"`
	Cached   bool     `json:"cached"`
	Plan     []string `json:"plan"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <queries-dir> <name>",
		Short: "Print the compiled plan of a query",
		Long: `Compile one query definition and print its plan: variable slots, cache
decision and the evaluation steps in order, followed by analyzer warnings.

Examples:
  lineage explain ./queries inherited_position
  lineage explain ./queries parents --world ./scenarios/hierarchy.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.World, "world", "", "scenario whose mutation steps build the catalog")

	return cmd
}

func runExplain(opts *ExplainOptions, dir, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadQueries(dir)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	desc, ok := loaded.findQuery(name)
	if !ok {
		return outputCommandError(formatter, &LoadError{
			Code:    ErrCodeUnknownQuery,
			Message: fmt.Sprintf("query %q not found in %s", name, dir),
		})
	}

	cat, err := buildCatalog(commandContext(cmd), opts.World, loaded.Queries, opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return outputCommandError(formatter, err)
	}
	plan, err := compiler.Compile(cat, desc)
	if err != nil {
		if ferr := formatter.Error(errorCode(err), err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("query %s does not compile", name), err)
	}

	hash, err := ir.QueryHash(desc)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	analysis := queryir.Analyze(plan)
	result := ExplainResult{
		Query:    name,
		Hash:     hash,
		Cached:   analysis.Cached,
		Plan:     strings.Split(strings.TrimRight(plan.String(), "\n"), "\n"),
		Warnings: analysis.Warnings,
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	for _, line := range result.Plan {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  hash: %s\n", result.Hash)
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
