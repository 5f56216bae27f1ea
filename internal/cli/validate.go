package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	World string // scenario whose mutations build the catalog
}

// ValidationIssue is one problem found in a query definition.
type ValidationIssue struct {
	Query   string `json:"query,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Queries int               `json:"queries"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <queries-dir>",
		Short: "Compile CUE query definitions and report errors",
		Long: `Load every query definition under the "query" struct of the CUE files
in a directory and compile it.

Names are resolved against a catalog: the world built by the mutation steps
of --world, or, without it, fresh entities for every referenced name.

Exit codes:
  0 - All queries compile
  1 - One or more queries failed to compile
  2 - Command error (directory not found, no CUE files, etc.)

Examples:
  lineage validate ./queries
  lineage validate ./queries --world ./scenarios/hierarchy.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.World, "world", "", "scenario whose mutation steps build the catalog")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadQueries(dir)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result := ValidationResult{Valid: true, Queries: len(loaded.Queries)}
	for _, err := range loaded.Errors {
		result.Issues = append(result.Issues, ValidationIssue{
			Code:    errorCode(err),
			Message: err.Error(),
			Line:    errorLine(err),
		})
	}

	cat, err := buildCatalog(commandContext(cmd), opts.World, loaded.Queries, opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return outputCommandError(formatter, err)
	}
	for _, desc := range loaded.Queries {
		formatter.VerboseLog("Validating query: %s", desc.Name)
		for _, ce := range compiler.Validate(cat, desc) {
			result.Issues = append(result.Issues, ValidationIssue{
				Query:   desc.Name,
				Code:    ce.Code,
				Message: ce.Error(),
			})
		}
	}

	if len(result.Issues) == 0 {
		if formatter.IsJSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ All queries valid (%d)\n", result.Queries)
		return nil
	}

	result.Valid = false
	msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Issues))
	if formatter.IsJSON() {
		if err := formatter.Failure(result.Issues[0].Code, result.Issues[0].Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return NewExitError(ExitFailure, msg)
}

// outputCommandError reports err and returns it as a command error
// (exit code 2).
func outputCommandError(formatter *OutputFormatter, err error) error {
	code := errorCode(err)
	msg := err.Error()
	if le, ok := err.(*LoadError); ok {
		msg = le.Message
	}
	if ferr := formatter.Error(code, msg, nil); ferr != nil {
		return ferr
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, msg))
}
