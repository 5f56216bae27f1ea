// Package querysql builds parameterized, deterministically ordered SELECT
// statements over the journal tables.
//
// Values are never interpolated into the SQL text; every value is passed as
// a ? parameter. Identifiers (tables and columns) are checked against a
// strict pattern instead, since SQLite cannot bind them.
//
// Every statement carries an ORDER BY with COLLATE BINARY so results do not
// depend on SQLite's plan or version.
package querysql

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Predicate is a WHERE clause fragment.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose column equals Value.
type Equals struct {
	Column string
	Value  any
}

// AtLeast matches rows whose column is >= Value.
type AtLeast struct {
	Column string
	Value  any
}

// AtMost matches rows whose column is <= Value.
type AtMost struct {
	Column string
	Value  any
}

// And is the conjunction of its predicates. An empty And matches every row.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode()  {}
func (AtLeast) predicateNode() {}
func (AtMost) predicateNode()  {}
func (And) predicateNode()     {}

// Select describes a single-table SELECT.
type Select struct {
	From    string
	Columns []string // empty selects *
	Filter  Predicate
	OrderBy []string // required; the last column should be unique
}

// Compile converts s to SQL and its parameters.
func Compile(s Select) (string, []any, error) {
	if err := checkIdent("table", s.From); err != nil {
		return "", nil, err
	}
	if len(s.OrderBy) == 0 {
		return "", nil, fmt.Errorf("select from %s has no order key", s.From)
	}

	cols := "*"
	if len(s.Columns) > 0 {
		for _, c := range s.Columns {
			if err := checkIdent("column", c); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(s.Columns, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, s.From)

	var params []any
	if s.Filter != nil {
		where, p, err := compilePredicate(s.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		if where != "" {
			b.WriteString(" WHERE ")
			b.WriteString(where)
			params = p
		}
	}

	order := make([]string, len(s.OrderBy))
	for i, c := range s.OrderBy {
		if err := checkIdent("order column", c); err != nil {
			return "", nil, err
		}
		order[i] = c + " COLLATE BINARY ASC"
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))

	return b.String(), params, nil
}

// compilePredicate returns an empty string for a predicate that matches
// every row.
func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		return compileComparison(pred.Column, "=", pred.Value)
	case AtLeast:
		return compileComparison(pred.Column, ">=", pred.Value)
	case AtMost:
		return compileComparison(pred.Column, "<=", pred.Value)
	case And:
		var (
			parts  []string
			params []any
		)
		for _, sub := range pred.Predicates {
			sql, p, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if sql == "" {
				continue
			}
			parts = append(parts, sql)
			params = append(params, p...)
		}
		return strings.Join(parts, " AND "), params, nil
	case nil:
		return "", nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileComparison(column, op string, value any) (string, []any, error) {
	if err := checkIdent("column", column); err != nil {
		return "", nil, err
	}
	switch value.(type) {
	case string, int, int64, bool, nil:
	default:
		return "", nil, fmt.Errorf("column %s: unsupported parameter type %T", column, value)
	}
	return fmt.Sprintf("%s %s ?", column, op), []any{value}, nil
}

func checkIdent(kind, name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}
