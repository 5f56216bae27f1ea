package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
)

// varNamePattern matches a variable name without the leading "$".
var varNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// varTable assigns variable slots. $this is slot 0; other variables get
// slots in first-use order over the terms, then declaration order for
// declared variables no term uses. Aliases share the slot of their root.
type varTable struct {
	slots   map[string]int
	names   []string
	aliases map[string]string
}

func newVarTable(decls []ir.VarDecl, terms []ir.TermDesc) (*varTable, error) {
	vt := &varTable{
		slots:   map[string]int{ir.ThisVar: queryir.ThisSlot},
		names:   []string{ir.ThisVar},
		aliases: make(map[string]string),
	}

	known := map[string]bool{ir.ThisVar: true}
	for i, d := range decls {
		field := fmt.Sprintf("vars[%d]", i)
		if !varNamePattern.MatchString(d.Name) {
			return nil, queryError(ErrInvalidVarName, field+".name", "invalid variable name %q", d.Name)
		}
		if d.Alias != "" && !varNamePattern.MatchString(d.Alias) {
			return nil, queryError(ErrInvalidVarName, field+".alias", "invalid variable name %q", d.Alias)
		}
		known[d.Name] = true
	}

	for i, t := range terms {
		for _, slot := range termVarRefs(t) {
			if !varNamePattern.MatchString(slot.ref.Var) {
				return nil, termError(i, ErrInvalidVarName, slot.field, "invalid variable name %q", "$"+slot.ref.Var)
			}
			known[slot.ref.Var] = true
		}
	}

	if cycles := aliasCycles(decls); len(cycles) > 0 {
		return nil, queryError(ErrAliasCycle, "vars", "alias cycle: %s", strings.Join(cycles[0], " -> "))
	}

	for i, d := range decls {
		if d.Alias == "" {
			continue
		}
		if !known[d.Alias] {
			return nil, queryError(ErrUndeclaredAlias, fmt.Sprintf("vars[%d].alias", i),
				"variable %q aliases undeclared variable %q", d.Name, d.Alias)
		}
		vt.aliases[d.Name] = d.Alias
	}

	for _, t := range terms {
		for _, slot := range termVarRefs(t) {
			vt.assign(vt.root(slot.ref.Var))
		}
	}
	for _, d := range decls {
		vt.assign(vt.root(d.Name))
	}
	return vt, nil
}

// root follows the alias chain of name. Cycles were rejected earlier.
func (vt *varTable) root(name string) string {
	for {
		next, ok := vt.aliases[name]
		if !ok {
			return name
		}
		name = next
	}
}

func (vt *varTable) assign(name string) {
	if _, ok := vt.slots[name]; ok {
		return
	}
	vt.slots[name] = len(vt.names)
	vt.names = append(vt.names, name)
}

// slot returns the slot of a variable or alias.
func (vt *varTable) slot(name string) int {
	return vt.slots[vt.root(name)]
}

// aliasSlots returns alias name → slot.
func (vt *varTable) aliasSlots() map[string]int {
	out := make(map[string]int, len(vt.aliases))
	for name := range vt.aliases {
		out[name] = vt.slot(name)
	}
	return out
}

type varRef struct {
	field string
	ref   ir.Ref
}

// termVarRefs returns the variable references of a term in slot-assignment
// order: source, first, second.
func termVarRefs(t ir.TermDesc) []varRef {
	var out []varRef
	for _, r := range []varRef{{"src", t.Src}, {"first", t.First}, {"second", t.Second}} {
		if r.ref.IsVar() {
			out = append(out, r)
		}
	}
	return out
}
