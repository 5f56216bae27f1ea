package compiler

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
)

// Compile validates a query descriptor against the catalog and produces an
// immutable plan.
//
// Compile is pure: it reads the catalog but never mutates it, and the plan
// is reused across iterations and cache kinds. The first error found is
// returned; use Validate to collect all of them.
//
// Traversal defaults:
//   - ir.TravDefault resolves to self|up(IsA), except for builtin and
//     variable ids, which are matched on self only
//   - ir.TravUp and ir.TravSelfUp without a relationship use ChildOf
//
// A relationship that is not traversable is rejected (E202) only when some
// entity already holds a pair of it; otherwise the term compiles and finds
// no up matches.
func Compile(cat Catalog, desc ir.QueryDesc) (*queryir.Plan, error) {
	errs := Validate(cat, desc)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return build(cat, desc)
}

// Validate checks a query descriptor and returns every error found (does
// not fail-fast). Variable errors stop term checks, since slots are
// unknown.
func Validate(cat Catalog, desc ir.QueryDesc) []*CompileError {
	if len(desc.Terms) == 0 {
		return []*CompileError{queryError(ErrEmptyQuery, "terms", "query has no terms")}
	}
	if _, err := newVarTable(desc.Vars, desc.Terms); err != nil {
		return []*CompileError{err.(*CompileError)}
	}

	var errs []*CompileError
	for i, t := range desc.Terms {
		errs = append(errs, validateTerm(cat, i, t)...)
	}
	errs = append(errs, validateOrChains(desc.Terms)...)
	return errs
}

func validateTerm(cat Catalog, i int, t ir.TermDesc) []*CompileError {
	var errs []*CompileError

	if !t.First.IsSet() {
		errs = append(errs, termError(i, ErrInvalidID, "first", "term has no id"))
	}
	for _, slot := range []varRef{{"first", t.First}, {"second", t.Second}} {
		if err := checkIDRef(cat, i, slot); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Src.Entity == ir.Wildcard {
		errs = append(errs, termError(i, ErrInvalidID, "src", "source cannot be a wildcard"))
	}

	if t.Rel.IsSet() {
		switch {
		case t.Trav == ir.TravSelf:
			errs = append(errs, termError(i, ErrInvalidRelationship, "rel", "relationship set on a self-only term"))
		case t.Rel.IsVar():
			errs = append(errs, termError(i, ErrInvalidRelationship, "rel", "traversal relationship cannot be a variable"))
		}
	}
	if t.Trav.HasUp() && t.Trav != ir.TravDefault {
		rel, err := resolveRel(cat, t.Rel)
		if err != "" {
			errs = append(errs, termError(i, ErrInvalidRelationship, "rel", "%s", err))
		} else if !cat.IsTraversable(rel) && cat.RelationshipUsed(rel) {
			errs = append(errs, termError(i, ErrNotTraversable, "rel",
				"relationship %s is not traversable", ir.Plain(rel)))
		}
	}
	return errs
}

// checkIDRef validates the first or second slot of a term id.
func checkIDRef(cat Catalog, i int, slot varRef) *CompileError {
	r := slot.ref
	switch {
	case r.Var == ir.ThisVar:
		return termError(i, ErrInvalidID, slot.field, "$this is a table variable and cannot be used in an id")
	case r.Name != "":
		if cat.Lookup(r.Name) == 0 {
			return termError(i, ErrInvalidID, slot.field, "unknown entity %q", r.Name)
		}
	case r.Entity == ir.Wildcard:
	case r.Entity != 0:
		if !cat.IsAlive(r.Entity) {
			return termError(i, ErrInvalidID, slot.field, "entity %s is not alive", r.Entity)
		}
	}
	return nil
}

// resolveRel resolves the traversal relationship of an up term. The
// returned message is empty on success.
func resolveRel(cat Catalog, r ir.Ref) (ir.Entity, string) {
	switch {
	case !r.IsSet():
		return ir.ChildOf, ""
	case r.IsVar():
		return 0, "traversal relationship cannot be a variable"
	case r.Name != "":
		e := cat.Lookup(r.Name)
		if e == 0 {
			return 0, fmt.Sprintf("unknown relationship %q", r.Name)
		}
		return e, ""
	case r.Entity == ir.Wildcard:
		return 0, "traversal relationship cannot be a wildcard"
	case !cat.IsAlive(r.Entity):
		return 0, fmt.Sprintf("relationship %s is not alive", r.Entity)
	}
	return r.Entity, ""
}

// validateOrChains checks that every or-chain member shares one source and
// that chain members are plain terms.
func validateOrChains(terms []ir.TermDesc) []*CompileError {
	var errs []*CompileError
	for _, chain := range orChains(terms) {
		head := terms[chain[0]]
		for _, i := range chain[1:] {
			t := terms[i]
			if t.Src != head.Src {
				errs = append(errs, termError(i, ErrInvalidOrChain, "src",
					"or-chain mixes sources %s and %s", refOrThis(head.Src), refOrThis(t.Src)))
			}
		}
		last := terms[chain[len(chain)-1]]
		if last.Oper != ir.OperAnd && last.Oper != ir.OperOr {
			errs = append(errs, termError(chain[len(chain)-1], ErrInvalidOrChain, "oper",
				"or-chain cannot end with a %s term", last.Oper))
		}
	}
	return errs
}

// orChains returns the declaration indices of each or-chain: a run of
// terms with OperOr plus the term that follows the run.
func orChains(terms []ir.TermDesc) [][]int {
	var chains [][]int
	for i := 0; i < len(terms); {
		if terms[i].Oper != ir.OperOr {
			i++
			continue
		}
		var chain []int
		for i < len(terms) && terms[i].Oper == ir.OperOr {
			chain = append(chain, i)
			i++
		}
		if i < len(terms) {
			chain = append(chain, i)
			i++
		}
		chains = append(chains, chain)
	}
	return chains
}

func refOrThis(r ir.Ref) string {
	if !r.IsSet() {
		return "$" + ir.ThisVar
	}
	return r.String()
}

// unit is a step before ordering.
type unit struct {
	decl     int
	step     queryir.Step
	positive bool
	terms    []queryir.Term
}

func build(cat Catalog, desc ir.QueryDesc) (*queryir.Plan, error) {
	vt, err := newVarTable(desc.Vars, desc.Terms)
	if err != nil {
		return nil, err
	}
	hash, err := ir.QueryHash(desc)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", desc.Name, err)
	}

	plan := &queryir.Plan{
		Name:             desc.Name,
		Hash:             hash,
		FieldCount:       len(desc.Terms),
		Aliases:          vt.aliasSlots(),
		CacheKind:        desc.CacheKind,
		MatchEmptyTables: desc.MatchEmptyTables,
	}

	compiled := make([]queryir.Term, len(desc.Terms))
	for i, t := range desc.Terms {
		compiled[i] = compileTerm(cat, vt, i, t)
		ct := compiled[i]
		if ct.Src.IsThis() {
			plan.UsesThis = true
		}
		// Only a term that can match $this itself lifts a table filter.
		namesThis := ct.Src.IsThis() && ct.Trav.HasSelf() && ct.FirstVar == queryir.NoVar
		if namesThis && (ct.Id.First == ir.Prefab || ct.Id.Second == ir.Prefab) {
			plan.MatchPrefab = true
		}
		if namesThis && (ct.Id.First == ir.Disabled || ct.Id.Second == ir.Disabled) {
			plan.MatchDisabled = true
		}
	}

	units := buildUnits(desc.Terms, compiled)
	plan.Steps = orderUnits(units)

	required := make(map[int]bool)
	writesThis := false
	for _, u := range units {
		if !u.positive {
			continue
		}
		for _, t := range u.terms {
			if t.Src.IsThis() {
				writesThis = true
			}
			if _, isMatch := u.step.(*queryir.Match); isMatch {
				for _, slot := range t.Reads() {
					required[slot] = true
				}
			}
		}
	}
	if plan.UsesThis && !writesThis {
		plan.Steps = append([]queryir.Step{&queryir.SelectAll{}}, plan.Steps...)
		required[queryir.ThisSlot] = true
	}

	plan.Vars = make([]queryir.Var, len(vt.names))
	for slot, name := range vt.names {
		plan.Vars[slot] = queryir.Var{Name: name, Slot: slot, Required: required[slot]}
	}
	return plan, nil
}

func compileTerm(cat Catalog, vt *varTable, i int, t ir.TermDesc) queryir.Term {
	ct := queryir.Term{
		Field:     i,
		FirstVar:  queryir.NoVar,
		SecondVar: queryir.NoVar,
		Oper:      t.Oper,
	}

	ct.Id.First, ct.FirstVar = compileIDRef(cat, vt, t.First)
	if t.Second.IsSet() {
		ct.Id.Second, ct.SecondVar = compileIDRef(cat, vt, t.Second)
	}

	switch {
	case !t.Src.IsSet():
		ct.Src = queryir.Source{Kind: queryir.SourceThis, Var: queryir.ThisSlot}
	case t.Src.IsVar():
		slot := vt.slot(t.Src.Var)
		kind := queryir.SourceVar
		if slot == queryir.ThisSlot {
			kind = queryir.SourceThis
		}
		ct.Src = queryir.Source{Kind: kind, Var: slot}
	case t.Src.Name != "":
		ct.Src = queryir.Source{Kind: queryir.SourceFixed, Var: queryir.NoVar, Entity: cat.Lookup(t.Src.Name)}
	default:
		ct.Src = queryir.Source{Kind: queryir.SourceFixed, Var: queryir.NoVar, Entity: t.Src.Entity}
	}

	switch t.Trav {
	case ir.TravDefault:
		if selfOnlyByDefault(ct) {
			ct.Trav = ir.TravSelf
		} else {
			ct.Trav = ir.TravSelfUp
			ct.Rel = ir.IsA
		}
	case ir.TravSelf:
		ct.Trav = ir.TravSelf
	default:
		ct.Trav = t.Trav
		ct.Rel, _ = resolveRel(cat, t.Rel)
	}
	return ct
}

// selfOnlyByDefault reports whether a term without explicit traversal is
// matched on self only: builtin ids and variable relationships are never
// inherited.
func selfOnlyByDefault(t queryir.Term) bool {
	if t.FirstVar != queryir.NoVar || t.Id.First == ir.Wildcard {
		return true
	}
	return t.Id.First < ir.FirstUserEntity
}

func compileIDRef(cat Catalog, vt *varTable, r ir.Ref) (ir.Entity, int) {
	switch {
	case r.IsVar():
		return ir.Wildcard, vt.slot(r.Var)
	case r.Name != "":
		return cat.Lookup(r.Name), queryir.NoVar
	}
	return r.Entity, queryir.NoVar
}

// buildUnits groups compiled terms into steps in declaration order.
func buildUnits(terms []ir.TermDesc, compiled []queryir.Term) []unit {
	inChain := make(map[int][]int)
	member := make(map[int]bool)
	for _, chain := range orChains(terms) {
		inChain[chain[0]] = chain
		for _, i := range chain {
			member[i] = true
		}
	}

	var units []unit
	for i := range terms {
		if chain, ok := inChain[i]; ok {
			members := make([]queryir.Term, len(chain))
			for j, idx := range chain {
				members[j] = compiled[idx]
				members[j].Oper = ir.OperOr
			}
			units = append(units, unit{decl: i, step: &queryir.Or{Terms: members}, positive: true, terms: members})
			continue
		}
		if member[i] {
			continue
		}
		t := compiled[i]
		u := unit{decl: i, terms: []queryir.Term{t}}
		switch t.Oper {
		case ir.OperNot:
			u.step = &queryir.Not{Term: t}
		case ir.OperOptional:
			u.step = &queryir.Optional{Term: t}
		default:
			u.step = &queryir.Match{Term: t}
			u.positive = true
		}
		units = append(units, u)
	}
	return units
}

// orderUnits moves Not and Optional steps after the last positive step
// that writes a variable they read. Positive steps keep declaration order.
func orderUnits(units []unit) []queryir.Step {
	lastWriter := make(map[int]int)
	for _, u := range units {
		if !u.positive {
			continue
		}
		for _, t := range u.terms {
			for _, slot := range t.Reads() {
				lastWriter[slot] = max(lastWriter[slot], u.decl)
			}
		}
	}

	type keyed struct {
		anchor int
		rank   int
		unit   unit
	}
	order := make([]keyed, len(units))
	for i, u := range units {
		k := keyed{anchor: u.decl, unit: u}
		if !u.positive {
			k.rank = 1
			for _, slot := range u.terms[0].Reads() {
				if w, ok := lastWriter[slot]; ok {
					k.anchor = max(k.anchor, w)
				}
			}
		}
		order[i] = k
	}
	slices.SortStableFunc(order, func(a, b keyed) int {
		if c := cmp.Compare(a.anchor, b.anchor); c != 0 {
			return c
		}
		return cmp.Compare(a.rank, b.rank)
	})

	steps := make([]queryir.Step, len(order))
	for i, k := range order {
		steps[i] = k.unit.step
	}
	return steps
}
