package harness

import (
	"fmt"
	"slices"
	"strings"
)

// Assertion types.
const (
	AssertRows  = "rows"
	AssertCount = "count"
	AssertCache = "cache_divergence"
	AssertError = "error"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Step     int    // 1-based step index
	Query    string
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Rows     []string // Rows actually produced, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (step %d", e.Type, e.Step)
	if e.Query != "" {
		fmt.Fprintf(&buf, ", query %s", e.Query)
	}
	buf.WriteString(")\n")

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Rows) > 0 {
		fmt.Fprintf(&buf, "\nRows:\n")
		for i, row := range e.Rows {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, row)
		}
	}

	return buf.String()
}

// assertRows checks the run produced exactly the expected rows, in order.
func assertRows(step int, query string, expected, actual []string) error {
	if slices.Equal(expected, actual) {
		return nil
	}

	e := &AssertionError{
		Type:     AssertRows,
		Step:     step,
		Query:    query,
		Expected: fmt.Sprintf("%d rows", len(expected)),
		Actual:   fmt.Sprintf("%d rows", len(actual)),
		Rows:     actual,
	}
	for i := 0; i < max(len(expected), len(actual)); i++ {
		want, got := rowAt(expected, i), rowAt(actual, i)
		if want != got {
			e.Expected = fmt.Sprintf("row %d = %s", i+1, want)
			e.Actual = fmt.Sprintf("row %d = %s", i+1, got)
			break
		}
	}
	return e
}

func rowAt(rows []string, i int) string {
	if i < len(rows) {
		return fmt.Sprintf("%q", rows[i])
	}
	return "(none)"
}

// assertCount checks the number of rows a run produced.
func assertCount(step int, query string, expected int, actual []string) error {
	if len(actual) == expected {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Step:     step,
		Query:    query,
		Expected: fmt.Sprintf("%d rows", expected),
		Actual:   fmt.Sprintf("%d rows", len(actual)),
		Rows:     actual,
	}
}

// assertSameRows checks that the cached and uncached runs of a query agree.
func assertSameRows(step int, query string, uncached, cached []string) error {
	if slices.Equal(uncached, cached) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCache,
		Step:     step,
		Query:    query,
		Expected: fmt.Sprintf("uncached rows %q", uncached),
		Actual:   fmt.Sprintf("cached rows %q", cached),
	}
}

// assertStepError checks a step's error against its expected substring.
// A step without an expectation must not fail.
func assertStepError(step int, expected string, err error) error {
	switch {
	case expected == "" && err == nil:
		return nil
	case expected == "":
		return &AssertionError{
			Type:     AssertError,
			Step:     step,
			Expected: "no error",
			Actual:   err.Error(),
		}
	case err == nil:
		return &AssertionError{
			Type:     AssertError,
			Step:     step,
			Expected: fmt.Sprintf("error containing %q", expected),
			Actual:   "no error",
		}
	case !strings.Contains(err.Error(), expected):
		return &AssertionError{
			Type:     AssertError,
			Step:     step,
			Expected: fmt.Sprintf("error containing %q", expected),
			Actual:   err.Error(),
		}
	}
	return nil
}
