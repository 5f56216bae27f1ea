package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/harness"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// Error code constants shared by all CLI commands. Query compile errors
// keep their compiler codes (E2xx).
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeScanError      = "E002" // Directory scan error
	ErrCodeNoFiles        = "E003" // No CUE or scenario files found
	ErrCodeLoadFailed     = "E004" // CUE or scenario load failed
	ErrCodeNotFound       = "E005" // Path not found
	ErrCodeUnknownQuery   = "E006" // Named query not defined
	ErrCodeJournal        = "E007" // Journal open/read error
	ErrCodeScenarioFailed = "E010" // Scenario assertions failed
	ErrCodeNonDeterminism = "E011" // Replayed runs differ from the journal
)

// LoadError is a failure to load query definitions.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult holds the query definitions of a directory.
type LoadResult struct {
	Queries   []ir.QueryDesc
	Errors    []error // per-query errors; Queries holds the rest
	FileCount int
}

// LoadQueries loads every CUE query definition in dir.
func LoadQueries(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("queries directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing queries directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	descs, errs := compiler.LoadQueries(dir)
	if len(descs) == 0 && len(errs) > 0 && !compiler.IsCompileError(errs[0], "") {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: errs[0].Error()}
	}
	return &LoadResult{Queries: descs, Errors: errs, FileCount: len(files)}, nil
}

// findQuery returns the definition named name.
func (r *LoadResult) findQuery(name string) (ir.QueryDesc, bool) {
	for _, d := range r.Queries {
		if d.Name == name {
			return d, true
		}
	}
	return ir.QueryDesc{}, false
}

// errorCode returns the compiler code of err, or ErrCodeGeneric.
func errorCode(err error) string {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}

// errorLine returns the CUE line of err, or 0.
func errorLine(err error) int {
	var ce *compiler.CompileError
	if errors.As(err, &ce) && ce.Pos.IsValid() {
		return ce.Pos.Line()
	}
	return 0
}

// buildCatalog returns the world queries are compiled against.
//
// With a scenario, the world is the result of its mutation steps.
// Otherwise every name the queries reference is created as a fresh entity,
// and names used as traversal relationships are marked traversable, so
// only the structure of the queries is checked.
func buildCatalog(ctx context.Context, scenarioPath string, descs []ir.QueryDesc, logger *slog.Logger) (*store.World, error) {
	if scenarioPath != "" {
		scenario, err := harness.LoadScenario(scenarioPath)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		w, err := harness.BuildWorld(ctx, scenario, harness.WithLogger(logger))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		return w, nil
	}

	w := store.NewWorld(store.WithLogger(logger))
	declare := func(r ir.Ref, rel bool) error {
		if r.Name == "" {
			return nil
		}
		e := w.Lookup(r.Name)
		if e == 0 {
			var err error
			if e, err = w.NewNamed(r.Name); err != nil {
				return err
			}
		}
		if rel && !w.IsTraversable(e) {
			return w.MarkTraversable(e)
		}
		return nil
	}
	for _, d := range descs {
		for _, t := range d.Terms {
			for _, r := range []ir.Ref{t.First, t.Second, t.Src} {
				if err := declare(r, false); err != nil {
					return nil, fmt.Errorf("query %s: %w", d.Name, err)
				}
			}
			if err := declare(t.Rel, true); err != nil {
				return nil, fmt.Errorf("query %s: %w", d.Name, err)
			}
		}
	}
	return w, nil
}
