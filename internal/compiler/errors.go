package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile error codes (E200-E299)
const (
	ErrCUE = "E200" // CUE value or definition error

	ErrInvalidRelationship = "E201" // traversal relationship is zero, dead or a variable
	ErrNotTraversable      = "E202" // relationship not traversable and used in data
	ErrInvalidVarName      = "E203" // malformed variable name
	ErrAliasCycle          = "E204" // variable aliases form a cycle
	ErrUndeclaredAlias     = "E205" // alias names an unknown variable
	ErrEmptyQuery          = "E206" // query has no terms
	ErrInvalidOrChain      = "E207" // or-chain mixes sources or operators
	ErrInvalidID           = "E208" // term id does not name a live entity
)

// CompileError represents a query compilation error.
//
// Term is the declaration index of the offending term, -1 when the error is
// not tied to a term. Pos is set for errors raised while reading CUE
// definitions.
type CompileError struct {
	Code    string    `json:"code"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Term    int       `json:"term"`
	Pos     token.Pos `json:"-"`
}

func (e *CompileError) Error() string {
	where := e.Field
	if e.Term >= 0 {
		where = fmt.Sprintf("terms[%d].%s", e.Term, e.Field)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, where, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, where, e.Message)
}

// IsCompileError reports whether err is a CompileError with the given code.
// An empty code matches any CompileError. Uses errors.As to handle wrapped
// errors.
func IsCompileError(err error, code string) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return code == "" || ce.Code == code
	}
	return false
}

func termError(term int, code, field, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Term:    term,
	}
}

func queryError(code, field, format string, args ...any) *CompileError {
	return termError(-1, code, field, format, args...)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Code:    ErrCUE,
			Field:   "cue",
			Message: firstErr.Error(),
			Term:    -1,
			Pos:     positions[0],
		}
	}

	return err
}
