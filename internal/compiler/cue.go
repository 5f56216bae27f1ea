package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/lineage/internal/ir"
)

// CompileCUE parses a CUE value into a query descriptor.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the query struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: children: { terms: [{id: "Foo", trav: "up"}] }`)
//	desc, err := CompileCUE(v.LookupPath(cue.ParsePath("query.children")))
//
// Entities are referenced by name ("Foo", "ChildOf"), variables with a
// leading "$" and the wildcard as "*". A pair id is a two-element list.
func CompileCUE(v cue.Value) (*ir.QueryDesc, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	desc := &ir.QueryDesc{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		desc.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	if cacheVal := v.LookupPath(cue.ParsePath("cache")); cacheVal.Exists() {
		s, err := cacheVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		kind, err := ir.ParseCacheKind(s)
		if err != nil {
			return nil, cueFieldError(cacheVal, "cache", err.Error())
		}
		desc.CacheKind = kind
	}

	if emptyVal := v.LookupPath(cue.ParsePath("match_empty_tables")); emptyVal.Exists() {
		b, err := emptyVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		desc.MatchEmptyTables = b
	}

	vars, err := parseVarDecls(v)
	if err != nil {
		return nil, err
	}
	desc.Vars = vars

	termsVal := v.LookupPath(cue.ParsePath("terms"))
	if !termsVal.Exists() {
		return nil, &CompileError{
			Code:    ErrEmptyQuery,
			Field:   "terms",
			Message: "terms are required",
			Term:    -1,
			Pos:     v.Pos(),
		}
	}
	iter, err := termsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		term, err := parseTerm(iter.Value(), i)
		if err != nil {
			return nil, err
		}
		desc.Terms = append(desc.Terms, term)
	}

	return desc, nil
}

// parseVarDecls parses the optional vars list: [{name: "y", alias: "x"}].
func parseVarDecls(v cue.Value) ([]ir.VarDecl, error) {
	varsVal := v.LookupPath(cue.ParsePath("vars"))
	if !varsVal.Exists() {
		return nil, nil
	}
	iter, err := varsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.VarDecl
	for iter.Next() {
		item := iter.Value()
		var decl ir.VarDecl
		name, err := item.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		decl.Name = strings.TrimPrefix(name, "$")
		if aliasVal := item.LookupPath(cue.ParsePath("alias")); aliasVal.Exists() {
			alias, err := aliasVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			decl.Alias = strings.TrimPrefix(alias, "$")
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// parseTerm parses one term struct.
func parseTerm(v cue.Value, index int) (ir.TermDesc, error) {
	var term ir.TermDesc

	idVal := v.LookupPath(cue.ParsePath("id"))
	if !idVal.Exists() {
		return term, &CompileError{
			Code:    ErrInvalidID,
			Field:   "id",
			Message: "id is required",
			Term:    index,
			Pos:     v.Pos(),
		}
	}
	switch idVal.IncompleteKind() {
	case cue.StringKind:
		s, err := idVal.String()
		if err != nil {
			return term, formatCUEError(err)
		}
		term.First = ParseRef(s)
	case cue.ListKind:
		var parts []string
		if err := idVal.Decode(&parts); err != nil {
			return term, formatCUEError(err)
		}
		if len(parts) != 2 {
			return term, cueTermError(idVal, index, ErrInvalidID, "id",
				fmt.Sprintf("pair id must have 2 elements, got %d", len(parts)))
		}
		term.First = ParseRef(parts[0])
		term.Second = ParseRef(parts[1])
	default:
		return term, cueTermError(idVal, index, ErrInvalidID, "id",
			fmt.Sprintf("id must be a string or a pair list, got %v", idVal.IncompleteKind()))
	}

	fields := []struct {
		name  string
		apply func(string) error
	}{
		{"src", func(s string) error { term.Src = ParseRef(s); return nil }},
		{"rel", func(s string) error { term.Rel = ParseRef(s); return nil }},
		{"trav", func(s string) (err error) { term.Trav, err = ir.ParseTrav(s); return err }},
		{"oper", func(s string) (err error) { term.Oper, err = ir.ParseOper(s); return err }},
	}
	for _, f := range fields {
		fv := v.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			continue
		}
		s, err := fv.String()
		if err != nil {
			return term, formatCUEError(err)
		}
		if err := f.apply(s); err != nil {
			return term, cueTermError(fv, index, ErrCUE, f.name, err.Error())
		}
	}

	return term, nil
}

// ParseRef parses "$name" as a variable, "*" as the wildcard and anything
// else as an entity name.
func ParseRef(s string) ir.Ref {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "$"):
		return ir.Var(s)
	case s == "*":
		return ir.Ent(ir.Wildcard)
	}
	return ir.Named(s)
}

func cueFieldError(v cue.Value, field, msg string) *CompileError {
	return &CompileError{Code: ErrCUE, Field: field, Message: msg, Term: -1, Pos: v.Pos()}
}

func cueTermError(v cue.Value, index int, code, field, msg string) *CompileError {
	return &CompileError{Code: code, Field: field, Message: msg, Term: index, Pos: v.Pos()}
}

// LoadQueries loads every query definition from the CUE files in dir.
//
// Definitions live under the top-level "query" struct and are returned in
// declaration order. Errors for individual queries are collected; a load or
// build failure of the CUE instance is returned alone.
func LoadQueries(dir string) ([]ir.QueryDesc, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("queries directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, []error{fmt.Errorf("scanning %s: %w", dir, err)}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	return compileQueries(value)
}

// compileQueries compiles every field of the "query" struct of v.
func compileQueries(v cue.Value) ([]ir.QueryDesc, []error) {
	queriesVal := v.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return nil, []error{fmt.Errorf("no query definitions found")}
	}
	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		descs []ir.QueryDesc
		errs  []error
	)
	for iter.Next() {
		desc, err := CompileCUE(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("query.%s: %w", iter.Label(), err))
			continue
		}
		descs = append(descs, *desc)
	}
	return descs, errs
}
