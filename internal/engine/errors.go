package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a defect detected during query evaluation.
//
// Runtime errors are never returned through the iterator protocol: a
// resolution miss is not an error, it is simply the end of iteration. A
// RuntimeError signals that the engine produced a row it must never produce
// and is raised with panic.
//
// Runtime errors include:
//   - Unbound variable: a required variable has no value at the end of a row
//   - Duplicate row: the same (table, window, fields, vars) row was produced
//     twice by one iteration
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Query is the name of the query being evaluated.
	Query string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnboundVariable indicates a required variable was unset when a
	// row was produced.
	ErrCodeUnboundVariable RuntimeErrorCode = "UNBOUND_VARIABLE"

	// ErrCodeDuplicateRow indicates one iteration produced the same row twice.
	ErrCodeDuplicateRow RuntimeErrorCode = "DUPLICATE_ROW"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.Query)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnboundVariableError returns true if the error is an unbound variable
// defect. Uses errors.As to handle wrapped errors.
func IsUnboundVariableError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnboundVariable
	}
	return false
}

// IsDuplicateRowError returns true if the error is a duplicate row defect.
func IsDuplicateRowError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDuplicateRow
	}
	return false
}

// NewUnboundVariableError creates a RuntimeError for an unset required
// variable.
func NewUnboundVariableError(query, variable string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnboundVariable,
		Message: fmt.Sprintf("variable $%s is unbound at end of row", variable),
		Query:   query,
		Details: map[string]string{"variable": variable},
	}
}

// NewDuplicateRowError creates a RuntimeError for a repeated row.
func NewDuplicateRowError(query, rowKey string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDuplicateRow,
		Message: "iteration produced the same row twice",
		Query:   query,
		Details: map[string]string{"row": rowKey},
	}
}
