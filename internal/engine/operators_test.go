package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lineage/internal/ir"
)

func TestOperators(t *testing.T) {
	type world struct {
		*testWorld
		foo, bar, baz ir.Entity
	}
	build := func(t *testing.T) world {
		w := newTestWorld(t)
		x := world{testWorld: w, foo: w.tag("Foo"), bar: w.tag("Bar"), baz: w.tag("Baz")}
		w.entity("e1", ir.Plain(x.foo))
		w.entity("e2", ir.Plain(x.bar))
		w.entity("e3", ir.Plain(x.foo), ir.Plain(x.bar))
		w.entity("e4", ir.Plain(x.baz))
		return x
	}

	tests := []struct {
		name  string
		terms func(w world) []ir.TermDesc
		want  []string
	}{
		{
			name: "not",
			terms: func(w world) []ir.TermDesc {
				return []ir.TermDesc{
					ir.Term(ir.Plain(w.foo)),
					ir.Term(ir.Plain(w.bar)).WithOper(ir.OperNot),
				}
			},
			want: []string{"[e1] | Foo; !Bar"},
		},
		{
			name: "optional",
			terms: func(w world) []ir.TermDesc {
				return []ir.TermDesc{
					ir.Term(ir.Plain(w.foo)),
					ir.Term(ir.Plain(w.bar)).WithOper(ir.OperOptional),
				}
			},
			want: []string{"[e1] | Foo; !Bar", "[e3] | Foo; Bar"},
		},
		{
			name: "or first member wins",
			terms: func(w world) []ir.TermDesc {
				return []ir.TermDesc{
					ir.Term(ir.Plain(w.foo)).WithOper(ir.OperOr),
					ir.Term(ir.Plain(w.bar)),
				}
			},
			want: []string{"[e1] | Foo; !Bar", "[e2] | !Foo; Bar", "[e3] | Foo; !Bar"},
		},
		{
			name: "or after and",
			terms: func(w world) []ir.TermDesc {
				return []ir.TermDesc{
					ir.Term(ir.Plain(w.bar)),
					ir.Term(ir.Plain(w.baz)).WithOper(ir.OperOr),
					ir.Term(ir.Plain(w.foo)),
				}
			},
			want: []string{"[e3] | Bar; !Baz; Foo"},
		},
		{
			name: "not leading",
			terms: func(w world) []ir.TermDesc {
				return []ir.TermDesc{
					ir.Term(ir.Plain(w.foo)).WithOper(ir.OperNot),
					ir.Term(ir.Plain(w.bar)),
				}
			},
			want: []string{"[e2] | !Foo; Bar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
				w := build(t)
				q := w.query(terms(tt.terms(w)...), kind)
				assert.Equal(t, tt.want, w.rows(q))
			})
		})
	}
}

func TestOperators_NotOnlyQuerySelectsAllTables(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		bar := w.tag("Bar")
		w.entity("e1", ir.Plain(foo))
		w.entity("e2", ir.Plain(bar))

		q := w.query(terms(ir.Term(ir.Plain(foo)).WithOper(ir.OperNot)), kind)
		rows := w.rows(q)
		assert.Contains(t, rows, "[e2] | !Foo")
		assert.NotContains(t, rows, "[e1] | !Foo")
	})
}

func TestOperators_OptionalVariableStaysUnbound(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		likes := w.tag("Likes")
		a := w.tag("a")
		w.entity("e1", ir.Plain(foo), ir.Pair(likes, a))
		w.entity("e2", ir.Plain(foo))

		q := w.query(terms(
			ir.Term(ir.Plain(foo)),
			ir.TermDesc{First: ir.Ent(likes), Second: ir.Var("x"), Oper: ir.OperOptional},
		), kind)
		assert.Equal(t, []string{
			"[e1] | Foo; (Likes,a) | $x=a",
			"[e2] | Foo; !(Likes,*) | $x=0",
		}, w.rows(q))
	})
}
