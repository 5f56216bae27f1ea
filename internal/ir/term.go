package ir

import (
	"fmt"
	"strings"
)

// ThisVar is the name of the implicit entity variable. It always occupies
// variable slot 0.
const ThisVar = "this"

// Trav selects where a term may be matched.
type Trav int

const (
	// TravDefault resolves to self|up(IsA).
	TravDefault Trav = iota
	// TravSelf matches only the source's own table.
	TravSelf
	// TravUp matches only ancestors reached through the relationship.
	TravUp
	// TravSelfUp matches self first, then the nearest ancestor.
	TravSelfUp
)

var travNames = map[Trav]string{
	TravDefault: "default",
	TravSelf:    "self",
	TravUp:      "up",
	TravSelfUp:  "self|up",
}

func (t Trav) String() string {
	if s, ok := travNames[t]; ok {
		return s
	}
	return fmt.Sprintf("trav(%d)", int(t))
}

// ParseTrav parses "self", "up", "self|up" or "" (default).
func ParseTrav(s string) (Trav, error) {
	switch strings.ReplaceAll(strings.TrimSpace(s), " ", "") {
	case "", "default":
		return TravDefault, nil
	case "self":
		return TravSelf, nil
	case "up":
		return TravUp, nil
	case "self|up", "up|self":
		return TravSelfUp, nil
	}
	return TravDefault, fmt.Errorf("invalid traversal %q: must be one of self, up, self|up", s)
}

// HasSelf reports whether the traversal includes the source's own table.
func (t Trav) HasSelf() bool {
	return t == TravSelf || t == TravSelfUp || t == TravDefault
}

// HasUp reports whether the traversal includes ancestors.
func (t Trav) HasUp() bool {
	return t == TravUp || t == TravSelfUp || t == TravDefault
}

// Oper is the operator applied to a term.
type Oper int

const (
	OperAnd Oper = iota
	// OperOr chains the term with the next term; the first matching term
	// of the chain wins.
	OperOr
	OperNot
	OperOptional
)

var operNames = map[Oper]string{
	OperAnd:      "and",
	OperOr:       "or",
	OperNot:      "not",
	OperOptional: "optional",
}

func (o Oper) String() string {
	if s, ok := operNames[o]; ok {
		return s
	}
	return fmt.Sprintf("oper(%d)", int(o))
}

// ParseOper parses an operator name. The empty string is OperAnd.
func ParseOper(s string) (Oper, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return OperAnd, nil
	case "or":
		return OperOr, nil
	case "not":
		return OperNot, nil
	case "optional":
		return OperOptional, nil
	}
	return OperAnd, fmt.Errorf("invalid operator %q: must be one of and, or, not, optional", s)
}

// CacheKind selects the execution path of a query.
type CacheKind int

const (
	// CacheDefault caches when every term is sourced on $this.
	CacheDefault CacheKind = iota
	// CacheAlways always maintains a cache.
	CacheAlways
	// CacheNever always evaluates against the store directly.
	CacheNever
)

var cacheKindNames = map[CacheKind]string{
	CacheDefault: "default",
	CacheAlways:  "always",
	CacheNever:   "never",
}

func (k CacheKind) String() string {
	if s, ok := cacheKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("cache(%d)", int(k))
}

// ParseCacheKind parses "default", "always", "never" or its alias "auto".
func ParseCacheKind(s string) (CacheKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return CacheDefault, nil
	case "always":
		return CacheAlways, nil
	case "never", "auto":
		return CacheNever, nil
	}
	return CacheDefault, fmt.Errorf("invalid cache kind %q: must be one of default, always, never", s)
}

// Ref names an entity inside a term: a fixed entity, a name resolved at
// compile time, or a variable. At most one field is set.
type Ref struct {
	Entity Entity `json:"entity,omitempty"`
	Name   string `json:"name,omitempty"`
	Var    string `json:"var,omitempty"`
}

// Ent returns a fixed entity reference.
func Ent(e Entity) Ref { return Ref{Entity: e} }

// Named returns a reference resolved by entity name.
func Named(name string) Ref { return Ref{Name: name} }

// Var returns a variable reference. A leading "$" is stripped.
func Var(name string) Ref { return Ref{Var: strings.TrimPrefix(name, "$")} }

// IsSet reports whether the reference names anything.
func (r Ref) IsSet() bool {
	return r.Entity != 0 || r.Name != "" || r.Var != ""
}

// IsVar reports whether the reference is a variable.
func (r Ref) IsVar() bool {
	return r.Var != ""
}

func (r Ref) String() string {
	switch {
	case r.Var != "":
		return "$" + r.Var
	case r.Name != "":
		return r.Name
	case r.Entity != 0:
		return entityLabel(r.Entity)
	}
	return "0"
}

// TermDesc is a pre-parsed term descriptor.
//
// First is the component or relationship; Second is the pair target and is
// unset for plain ids. Src is the term source; unset means $this. Rel is the
// traversal relationship for up matching; unset means the default for Trav.
type TermDesc struct {
	First  Ref  `json:"first"`
	Second Ref  `json:"second,omitempty"`
	Src    Ref  `json:"src,omitempty"`
	Trav   Trav `json:"trav,omitempty"`
	Rel    Ref  `json:"rel,omitempty"`
	Oper   Oper `json:"oper,omitempty"`
}

// Term returns a descriptor for a fixed id with default traversal.
func Term(id Id) TermDesc {
	t := TermDesc{First: Ent(id.First)}
	if id.IsPair() {
		t.Second = Ent(id.Second)
	}
	return t
}

// Self restricts the term to the source's own table.
func (t TermDesc) Self() TermDesc {
	t.Trav = TravSelf
	return t
}

// Up restricts the term to ancestors reached through rel (0 for ChildOf).
func (t TermDesc) Up(rel Entity) TermDesc {
	t.Trav = TravUp
	if rel != 0 {
		t.Rel = Ent(rel)
	}
	return t
}

// SelfUp matches self first, then ancestors through rel (0 for ChildOf).
func (t TermDesc) SelfUp(rel Entity) TermDesc {
	t.Trav = TravSelfUp
	if rel != 0 {
		t.Rel = Ent(rel)
	}
	return t
}

// From sets a fixed source entity.
func (t TermDesc) From(e Entity) TermDesc {
	t.Src = Ent(e)
	return t
}

// FromVar sets a variable source.
func (t TermDesc) FromVar(name string) TermDesc {
	t.Src = Var(name)
	return t
}

// FromName sets a source resolved by entity name.
func (t TermDesc) FromName(name string) TermDesc {
	t.Src = Named(name)
	return t
}

// WithOper sets the term operator.
func (t TermDesc) WithOper(op Oper) TermDesc {
	t.Oper = op
	return t
}

func (t TermDesc) String() string {
	var b strings.Builder
	switch t.Oper {
	case OperNot:
		b.WriteByte('!')
	case OperOptional:
		b.WriteByte('?')
	}
	if t.Second.IsSet() {
		fmt.Fprintf(&b, "(%s,%s)", t.First, t.Second)
	} else {
		b.WriteString(t.First.String())
	}
	src := ThisVar
	if t.Src.IsSet() {
		src = t.Src.String()
	} else {
		src = "$" + src
	}
	b.WriteByte('(')
	b.WriteString(src)
	if t.Trav != TravDefault {
		b.WriteByte(':')
		b.WriteString(t.Trav.String())
		if t.Rel.IsSet() {
			fmt.Fprintf(&b, "(%s)", t.Rel)
		}
	}
	b.WriteByte(')')
	if t.Oper == OperOr {
		b.WriteString(" ||")
	}
	return b.String()
}

// VarDecl declares a named variable. When Alias is set the variable is an
// alias of the named variable.
type VarDecl struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

// QueryDesc is an ordered list of terms plus query flags.
type QueryDesc struct {
	Name             string     `json:"name,omitempty"`
	Terms            []TermDesc `json:"terms"`
	Vars             []VarDecl  `json:"vars,omitempty"`
	CacheKind        CacheKind  `json:"cache_kind,omitempty"`
	MatchEmptyTables bool       `json:"match_empty_tables,omitempty"`
}

// String renders the terms joined by ", ".
func (q QueryDesc) String() string {
	parts := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
