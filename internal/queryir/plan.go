package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/lineage/internal/ir"
)

// NoVar marks a term slot that is not a variable.
const NoVar = -1

// ThisSlot is the variable slot of $this.
const ThisSlot = 0

// SourceKind distinguishes how a term source is resolved.
type SourceKind int

const (
	// SourceThis is the implicit $this table variable.
	SourceThis SourceKind = iota
	// SourceVar is a named entity variable.
	SourceVar
	// SourceFixed is a fixed entity, resolved at compile time.
	SourceFixed
)

func (k SourceKind) String() string {
	switch k {
	case SourceThis:
		return "this"
	case SourceVar:
		return "var"
	case SourceFixed:
		return "fixed"
	}
	return fmt.Sprintf("source(%d)", int(k))
}

// Source is a compiled term source.
//
// Var is the variable slot for SourceThis (always ThisSlot) and SourceVar.
// Entity is the fixed entity for SourceFixed; 0 when a named source did not
// resolve, which never matches.
type Source struct {
	Kind   SourceKind
	Var    int
	Entity ir.Entity
}

// IsThis reports whether the source is $this.
func (s Source) IsThis() bool {
	return s.Kind == SourceThis
}

// Term is a compiled term.
type Term struct {
	// Field is the declaration index of the term.
	Field int

	// Id is the id pattern. Variable slots hold ir.Wildcard and are
	// substituted with bound values at match time.
	Id ir.Id

	// FirstVar and SecondVar are the variable slots of Id, NoVar if fixed.
	FirstVar  int
	SecondVar int

	Src  Source
	Trav ir.Trav

	// Rel is the traversal relationship. Zero for self-only terms.
	Rel ir.Entity

	Oper ir.Oper
}

// Pattern returns Id with bound variable values substituted. vars is indexed
// by slot; a zero value leaves the wildcard in place.
func (t *Term) Pattern(vars []ir.Entity) ir.Id {
	id := t.Id
	if t.FirstVar != NoVar && vars[t.FirstVar] != 0 {
		id.First = vars[t.FirstVar]
	}
	if t.SecondVar != NoVar && vars[t.SecondVar] != 0 {
		id.Second = vars[t.SecondVar]
	}
	return id
}

// Reads returns the variable slots the term depends on, $this excluded
// unless it is the source.
func (t *Term) Reads() []int {
	var out []int
	if t.Src.Kind != SourceFixed {
		out = append(out, t.Src.Var)
	}
	if t.FirstVar != NoVar {
		out = append(out, t.FirstVar)
	}
	if t.SecondVar != NoVar {
		out = append(out, t.SecondVar)
	}
	return out
}

// Step is a unit of evaluation.
//
// This is a sealed interface - only types in this package implement it.
type Step interface {
	stepNode()
	// Fields returns the field indices the step produces, in term order.
	Fields() []int
}

// Match is a positive term. Each match of the term extends the current
// binding prefix.
type Match struct {
	Term Term
}

func (*Match) stepNode() {}

// Fields implements Step.
func (m *Match) Fields() []int { return []int{m.Term.Field} }

// Not succeeds, with the field unset, when the term has no match.
type Not struct {
	Term Term
}

func (*Not) stepNode() {}

// Fields implements Step.
func (n *Not) Fields() []int { return []int{n.Term.Field} }

// Optional yields the matches of the term, or one unset match.
type Optional struct {
	Term Term
}

func (*Optional) stepNode() {}

// Fields implements Step.
func (o *Optional) Fields() []int { return []int{o.Term.Field} }

// Or is an or-chain. The first member with a match wins; the fields of the
// other members are unset.
type Or struct {
	Terms []Term
}

func (*Or) stepNode() {}

// Fields implements Step.
func (o *Or) Fields() []int {
	out := make([]int, len(o.Terms))
	for i := range o.Terms {
		out[i] = o.Terms[i].Field
	}
	return out
}

// SelectAll binds $this to every table that passes the table filters. It is
// planned first when terms read $this but no positive term writes it.
type SelectAll struct{}

func (*SelectAll) stepNode() {}

// Fields implements Step.
func (*SelectAll) Fields() []int { return nil }

// Var is a plan variable.
type Var struct {
	Name string
	Slot int

	// Required is set when a positive term writes the variable, so every
	// row must bind it.
	Required bool
}

// Plan is a compiled query.
type Plan struct {
	Name string

	// Hash is the content hash of the source descriptor.
	Hash string

	Steps      []Step
	FieldCount int

	// Vars is indexed by slot. Aliases share the slot of their target and
	// are listed in Aliases.
	Vars    []Var
	Aliases map[string]int

	CacheKind        ir.CacheKind
	MatchEmptyTables bool

	// MatchPrefab and MatchDisabled lift the table filters when a term names
	// Prefab or Disabled explicitly.
	MatchPrefab   bool
	MatchDisabled bool

	// UsesThis is set when some term is sourced on $this.
	UsesThis bool
}

// Slot returns the slot of a variable or alias name, -1 if unknown.
func (p *Plan) Slot(name string) int {
	name = strings.TrimPrefix(name, "$")
	for _, v := range p.Vars {
		if v.Name == name {
			return v.Slot
		}
	}
	if slot, ok := p.Aliases[name]; ok {
		return slot
	}
	return -1
}

// Terms returns every term of the plan in evaluation order.
func (p *Plan) Terms() []Term {
	var out []Term
	for _, s := range p.Steps {
		switch step := s.(type) {
		case *Match:
			out = append(out, step.Term)
		case *Not:
			out = append(out, step.Term)
		case *Optional:
			out = append(out, step.Term)
		case *Or:
			out = append(out, step.Terms...)
		}
	}
	return out
}

// ThisSourced reports whether every term is sourced on $this.
func (p *Plan) ThisSourced() bool {
	for _, t := range p.Terms() {
		if !t.Src.IsThis() {
			return false
		}
	}
	return true
}

// Cached reports whether the query maintains a cache: CacheAlways does,
// CacheNever does not, CacheDefault does when every term is sourced on
// $this.
func (p *Plan) Cached() bool {
	switch p.CacheKind {
	case ir.CacheAlways:
		return true
	case ir.CacheNever:
		return false
	}
	return p.ThisSourced()
}

// String renders the plan one step per line.
func (p *Plan) String() string {
	var b strings.Builder
	name := p.Name
	if name == "" {
		name = "(anonymous)"
	}
	fmt.Fprintf(&b, "query %s\n", name)
	names := make([]string, len(p.Vars))
	for i, v := range p.Vars {
		names[i] = "$" + v.Name
	}
	fmt.Fprintf(&b, "  vars: %s\n", strings.Join(names, " "))
	fmt.Fprintf(&b, "  cache: %s (cached=%t)\n", p.CacheKind, p.Cached())
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "  %d: %s\n", i, p.stepString(s))
	}
	return b.String()
}

func (p *Plan) stepString(s Step) string {
	switch step := s.(type) {
	case *Match:
		return "and " + p.termString(step.Term)
	case *Not:
		return "not " + p.termString(step.Term)
	case *Optional:
		return "optional " + p.termString(step.Term)
	case *Or:
		parts := make([]string, len(step.Terms))
		for i, t := range step.Terms {
			parts[i] = p.termString(t)
		}
		return "or " + strings.Join(parts, " | ")
	case *SelectAll:
		return "select-all $this"
	}
	return fmt.Sprintf("%T", s)
}

func (p *Plan) varName(slot int) string {
	if slot >= 0 && slot < len(p.Vars) {
		return "$" + p.Vars[slot].Name
	}
	return fmt.Sprintf("$%d", slot)
}

func (p *Plan) termString(t Term) string {
	first := ir.Plain(t.Id.First).String()
	if t.FirstVar != NoVar {
		first = p.varName(t.FirstVar)
	}
	id := first
	if t.Id.IsPair() {
		second := ir.Plain(t.Id.Second).String()
		if t.SecondVar != NoVar {
			second = p.varName(t.SecondVar)
		}
		id = "(" + first + "," + second + ")"
	}
	src := p.varName(t.Src.Var)
	if t.Src.Kind == SourceFixed {
		src = t.Src.Entity.String()
	}
	s := fmt.Sprintf("[%d] %s(%s:%s", t.Field, id, src, t.Trav)
	if t.Rel != 0 {
		s += " " + ir.Plain(t.Rel).String()
	}
	return s + ")"
}
