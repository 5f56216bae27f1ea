package queryir

import (
	"fmt"
	"slices"

	"github.com/roach88/lineage/internal/ir"
)

// Analysis contains diagnostics about a compiled plan.
//
// Diagnostics never make a plan invalid; the compiler rejects invalid
// queries itself. They point at queries that are legal but probably not
// what the author meant, or that cost more than they look.
type Analysis struct {
	// Cached reports whether the plan maintains a cache.
	Cached bool

	// Warnings lists suspicious constructs, in step order.
	Warnings []string
}

// Analyze inspects a plan and reports warnings.
//
// Analyze is a pure function with no side effects.
func Analyze(p *Plan) Analysis {
	a := &analyzer{warnings: []string{}}
	if p == nil {
		a.addWarning("nil plan")
		return Analysis{Warnings: a.warnings}
	}
	a.analyzePlan(p)
	return Analysis{
		Cached:   p.Cached(),
		Warnings: a.warnings,
	}
}

// analyzer accumulates warnings during traversal.
type analyzer struct {
	warnings []string
}

func (a *analyzer) addWarning(format string, args ...any) {
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
}

func (a *analyzer) analyzePlan(p *Plan) {
	if len(p.Steps) == 0 {
		a.addWarning("plan has no steps")
		return
	}

	for _, s := range p.Steps {
		switch step := s.(type) {
		case *SelectAll:
			a.addWarning("no positive term writes $this: every table is scanned")
		case *Match:
			a.analyzeTerm(p, step.Term)
		case *Not:
			a.analyzeTerm(p, step.Term)
		case *Optional:
			a.analyzeTerm(p, step.Term)
		case *Or:
			for _, t := range step.Terms {
				a.analyzeTerm(p, t)
			}
		default:
			a.addWarning("unknown step type: %T", s)
		}
	}

	for _, v := range p.Vars {
		if v.Slot == ThisSlot || v.Required {
			continue
		}
		a.addWarning("variable $%s is only read by optional, not or or terms and may be unset", v.Name)
	}

	if p.CacheKind == ir.CacheDefault && !p.ThisSourced() {
		a.addWarning("query has non-$this sources: default cache kind evaluates uncached")
	}
}

func (a *analyzer) analyzeTerm(p *Plan, t Term) {
	if t.Src.Kind == SourceFixed && t.Src.Entity == 0 {
		a.addWarning("term %d: source did not resolve and never matches", t.Field)
	}
	if t.FirstVar != NoVar && t.FirstVar == t.SecondVar {
		a.addWarning("term %d: relationship and target share variable %s", t.Field, p.varName(t.FirstVar))
	}
	if t.Src.Kind == SourceVar && slices.Contains([]int{t.FirstVar, t.SecondVar}, t.Src.Var) {
		a.addWarning("term %d: source variable %s is also used in the id", t.Field, p.varName(t.Src.Var))
	}
}
