package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Golden comparison outcomes.
const (
	GoldenMatch    = "match"
	GoldenMismatch = "mismatch"
	GoldenMissing  = "missing"
	GoldenUpdated  = "updated"
)

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// Filter is a glob matched against scenario file names without
	// extension. Empty runs every scenario.
	Filter string

	// GoldenDir holds {file}.golden traces. Default: <dir>/golden.
	GoldenDir string

	// Update rewrites golden files instead of comparing them.
	Update bool
}

// ScenarioOutcome is the result of one scenario in a suite.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"`
	Runs   int      `json:"runs"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// FindScenarios returns the YAML scenario files under dir, sorted.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// GoldenPath returns the golden file for a scenario file.
func GoldenPath(goldenDir, scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(goldenDir, name+".golden")
}

// RunSuite runs every scenario under dir and compares each trace with its
// golden file when one exists.
//
// A scenario passes when it executes, meets its expectations and matches
// its golden file (or has none). Per-scenario failures are reported in the
// result; an error is returned only when dir cannot be scanned.
func RunSuite(ctx context.Context, dir string, opts SuiteOptions, runOpts ...Option) (*SuiteResult, error) {
	if opts.GoldenDir == "" {
		opts.GoldenDir = filepath.Join(dir, "golden")
	}

	files, err := FindScenarios(dir, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find scenarios: %w", err)
	}

	result := &SuiteResult{
		Scenarios: make([]ScenarioOutcome, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := runSuiteScenario(ctx, file, opts, runOpts)
		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, outcome)
	}
	return result, nil
}

func runSuiteScenario(ctx context.Context, file string, opts SuiteOptions, runOpts []Option) ScenarioOutcome {
	outcome := ScenarioOutcome{Name: filepath.Base(file), Path: file}
	fail := func(format string, args ...any) ScenarioOutcome {
		outcome.Pass = false
		outcome.Errors = append(outcome.Errors, fmt.Sprintf(format, args...))
		return outcome
	}

	scenario, err := LoadScenario(file)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	outcome.Name = scenario.Name

	result, err := Run(ctx, scenario, runOpts...)
	if err != nil {
		return fail("execution failed: %v", err)
	}
	outcome.Runs = result.Runs
	outcome.Pass = result.Pass
	outcome.Errors = append(outcome.Errors, result.Errors...)

	trace, err := Snapshot(scenario.Name, result)
	if err != nil {
		return fail("failed to marshal trace: %v", err)
	}

	goldenPath := GoldenPath(opts.GoldenDir, file)
	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return fail("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
			return fail("failed to write golden file: %v", err)
		}
		outcome.Golden = GoldenUpdated
		return outcome
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		outcome.Golden = GoldenMissing
	case err != nil:
		return fail("failed to read golden file: %v", err)
	case bytes.Equal(bytes.TrimSpace(golden), trace):
		outcome.Golden = GoldenMatch
	default:
		outcome.Golden = GoldenMismatch
		return fail("trace does not match golden file %s (run with --update to regenerate)", goldenPath)
	}
	return outcome
}
