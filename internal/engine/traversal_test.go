package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/ir"
)

func TestTraversal_SelfUpChildOf(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		child := w.entity("child", ir.Pair(ir.ChildOf, parent))
		w.entity("grandchild", ir.Pair(ir.ChildOf, child))

		q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(ir.ChildOf)), kind)
		assert.Equal(t, []string{
			"[parent] | Foo",
			"[child] | Foo<-parent",
			"[grandchild] | Foo<-parent",
		}, w.rows(q))
	})
}

func TestTraversal_UpChildOf(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		child := w.entity("child", ir.Pair(ir.ChildOf, parent))
		w.entity("grandchild", ir.Pair(ir.ChildOf, child))

		q := w.query(terms(ir.Term(ir.Plain(foo)).Up(ir.ChildOf)), kind)
		assert.Equal(t, []string{
			"[child] | Foo<-parent",
			"[grandchild] | Foo<-parent",
		}, w.rows(q))
	})
}

func TestTraversal_NearestSourceWins(t *testing.T) {
	build := func(t *testing.T) (*testWorld, ir.Entity) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		mid := w.entity("mid", ir.Plain(foo), ir.Pair(ir.ChildOf, parent))
		w.entity("leaf", ir.Pair(ir.ChildOf, mid))
		return w, foo
	}

	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		t.Run("up", func(t *testing.T) {
			w, foo := build(t)
			q := w.query(terms(ir.Term(ir.Plain(foo)).Up(ir.ChildOf)), kind)
			assert.Equal(t, []string{
				"[mid] | Foo<-parent",
				"[leaf] | Foo<-mid",
			}, w.rows(q))
		})

		t.Run("self_up", func(t *testing.T) {
			w, foo := build(t)
			q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(ir.ChildOf)), kind)
			assert.Equal(t, []string{
				"[parent] | Foo",
				"[mid] | Foo",
				"[leaf] | Foo<-mid",
			}, w.rows(q))
		})
	})
}

// entitySources flattens rows to one "entity<-source" entry per matched
// entity, in iteration order. Self matches render as the entity alone.
func (w *testWorld) entitySources(rows []Row, field int) []string {
	var out []string
	for _, r := range rows {
		for _, e := range r.Entities {
			entry := w.Label(e)
			if src := r.Fields[field].Src; src != 0 {
				entry += "<-" + w.Label(src)
			}
			out = append(out, entry)
		}
	}
	return out
}

func TestTraversal_TwoParentsYieldChildrenInOrder(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		p1 := w.entity("p1", ir.Plain(foo))
		p2 := w.entity("p2", ir.Plain(foo))
		w.entity("e1", ir.Pair(ir.ChildOf, p1))
		w.entity("e2", ir.Pair(ir.ChildOf, p1))
		w.entity("e3", ir.Pair(ir.ChildOf, p2))
		w.entity("e4", ir.Pair(ir.ChildOf, p2))

		q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(ir.ChildOf)), kind)
		rows := Collect(q.Iter())
		assert.Equal(t, []string{
			"[p1 p2] | Foo",
			"[e1 e2] | Foo<-p1",
			"[e3 e4] | Foo<-p2",
		}, w.format(rows))
		assert.Equal(t, []string{"p1", "p2", "e1<-p1", "e2<-p1", "e3<-p2", "e4<-p2"},
			w.entitySources(rows, 0))
	})
}

// Deleting a parent frees its slot and its child's. The next entities
// reuse both indices with a bumped generation.
func TestTraversal_RecycledIndexIsNotResurrected(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		child := w.entity("child", ir.Pair(ir.ChildOf, parent))

		up := w.query(terms(ir.Term(ir.Plain(foo)).Up(ir.ChildOf)), kind)
		fixed := w.query(terms(ir.Term(ir.Plain(foo)).From(child).Up(ir.ChildOf)), kind)
		assert.Equal(t, []string{"[child] | Foo<-parent"}, w.rows(up))
		assert.Equal(t, []string{"[] | Foo<-parent"}, w.rows(fixed))

		require.NoError(t, w.Delete(parent))
		assert.Empty(t, w.rows(up))
		assert.Empty(t, w.rows(fixed))

		parent2 := w.entity("parent2", ir.Plain(foo))
		child2 := w.entity("child2", ir.Pair(ir.ChildOf, parent2))
		require.Equal(t, parent.Index(), parent2.Index())
		require.Equal(t, child.Index(), child2.Index())
		require.Equal(t, child.Generation()+1, child2.Generation())
		assert.False(t, w.IsAlive(child))

		assert.Equal(t, []string{"[child2] | Foo<-parent2"}, w.rows(up))
		assert.Empty(t, w.rows(fixed), "a stale fixed source matches nothing")

		fresh := w.query(terms(ir.Term(ir.Plain(foo)).From(child).Up(ir.ChildOf)), kind)
		assert.Empty(t, w.rows(fresh))
		current := w.query(terms(ir.Term(ir.Plain(foo)).From(child2).Up(ir.ChildOf)), kind)
		assert.Equal(t, []string{"[] | Foo<-parent2"}, w.rows(current))
	})
}

func TestTraversal_DiamondReportsTableOnce(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		rel := w.rel("Rel")
		root := w.entity("root", ir.Plain(foo))
		a := w.entity("a", ir.Pair(rel, root))
		b := w.entity("b", ir.Pair(rel, root))
		w.entity("c", ir.Pair(rel, a), ir.Pair(rel, b))

		q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(rel)), kind)
		assert.Equal(t, []string{
			"[root] | Foo",
			"[a b] | Foo<-root",
			"[c] | Foo<-root",
		}, w.rows(q))
	})
}

func TestTraversal_TwoTermsTwoTargets(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		bar := w.tag("Bar")
		rel := w.rel("Rel")
		p1 := w.entity("p1", ir.Plain(foo))
		p2 := w.entity("p2", ir.Plain(bar))
		w.entity("c", ir.Pair(rel, p1), ir.Pair(rel, p2))

		q := w.query(terms(
			ir.Term(ir.Plain(foo)).SelfUp(rel),
			ir.Term(ir.Plain(bar)).SelfUp(rel),
		), kind)
		assert.Equal(t, []string{"[c] | Foo<-p1; Bar<-p2"}, w.rows(q))
	})
}

func TestTraversal_ImplicitIsAThroughChildOf(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		base := w.entity("base", ir.Plain(foo))
		inst := w.entity("inst", ir.Pair(ir.IsA, base))
		w.entity("child", ir.Pair(ir.ChildOf, inst))

		q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(ir.ChildOf)), kind)
		// inst is not a self match: self matching never inherits.
		assert.Equal(t, []string{
			"[base] | Foo",
			"[child] | Foo<-base",
		}, w.rows(q))
	})
}

func TestTraversal_DefaultInheritsThroughIsA(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		base := w.entity("base", ir.Plain(foo))
		w.entity("inst", ir.Pair(ir.IsA, base))

		q := w.query(terms(ir.Term(ir.Plain(foo))), kind)
		assert.Equal(t, []string{
			"[base] | Foo",
			"[inst] | Foo<-base",
		}, w.rows(q))
	})
}

func TestTraversal_PrefabFiltered(t *testing.T) {
	build := func(t *testing.T) (*testWorld, ir.Entity) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		base := w.entity("base", ir.Plain(foo), ir.Plain(ir.Prefab))
		inst := w.entity("inst", ir.Pair(ir.IsA, base))
		w.entity("child", ir.Pair(ir.ChildOf, inst))
		return w, foo
	}

	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		t.Run("excluded", func(t *testing.T) {
			w, foo := build(t)
			q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(ir.ChildOf)), kind)
			assert.Equal(t, []string{"[child] | Foo<-base"}, w.rows(q))
		})

		t.Run("named", func(t *testing.T) {
			w, foo := build(t)
			q := w.query(terms(
				ir.Term(ir.Plain(foo)).SelfUp(ir.ChildOf),
				ir.Term(ir.Plain(ir.Prefab)),
			), kind)
			assert.Equal(t, []string{"[base] | Foo; Prefab"}, w.rows(q))
		})
	})
}

func TestTraversal_NotUpDisabled(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		p := w.entity("p", ir.Plain(ir.Disabled))
		w.entity("c", ir.Plain(foo), ir.Pair(ir.ChildOf, p))
		w.entity("d", ir.Plain(foo))

		q := w.query(terms(
			ir.Term(ir.Plain(foo)),
			ir.Term(ir.Plain(ir.Disabled)).Up(ir.ChildOf).WithOper(ir.OperNot),
		), kind)
		assert.False(t, q.Plan().MatchDisabled)
		assert.Equal(t, []string{"[d] | Foo; !Disabled"}, w.rows(q))
	})
}

func TestTraversal_DisabledFiltered(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		w.entity("e1", ir.Plain(foo))
		w.entity("e2", ir.Plain(foo), ir.Plain(ir.Disabled))

		q := w.query(terms(ir.Term(ir.Plain(foo))), kind)
		assert.Equal(t, []string{"[e1] | Foo"}, w.rows(q))

		q = w.query(terms(ir.Term(ir.Plain(foo)), ir.Term(ir.Plain(ir.Disabled))), kind)
		assert.Equal(t, []string{"[e2] | Foo; Disabled"}, w.rows(q))
	})
}

func TestTraversal_MatchEmptyTablesUp(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		child := w.entity("child", ir.Pair(ir.ChildOf, parent))
		// Keeps ChildOf in use once child is gone.
		anchor := w.entity("anchor")
		w.entity("kept", ir.Pair(ir.ChildOf, anchor))
		require.NoError(t, w.Delete(child))

		desc := terms(ir.Term(ir.Plain(foo)).Up(ir.ChildOf))
		q := w.query(desc, kind)
		assert.Empty(t, w.rows(q))

		desc.MatchEmptyTables = true
		q = w.query(desc, kind)
		assert.Equal(t, []string{"[] | Foo<-parent"}, w.rows(q))
	})
}

func TestTraversal_UnusedRelationshipSkipsUp(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		rel := w.rel("Rel")
		w.entity("e", ir.Plain(foo))

		q := w.query(terms(ir.Term(ir.Plain(foo)).SelfUp(rel)), kind)
		assert.Equal(t, []string{"[e] | Foo"}, w.rows(q))

		q = w.query(terms(ir.Term(ir.Plain(foo)).Up(rel)), kind)
		assert.Empty(t, w.rows(q))
	})
}

func TestTraversal_NonTraversableRelationshipIsNeverWalked(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		plain := w.tag("Plain")
		p := w.entity("p", ir.Plain(foo))

		// Compiles while Plain is unused.
		q := w.query(terms(ir.Term(ir.Plain(foo)).Up(plain)), kind)
		assert.Empty(t, w.rows(q))

		a := w.entity("a", ir.Pair(plain, p))
		b := w.entity("b", ir.Pair(plain, a))
		assert.Empty(t, w.rows(q))

		// Without the flag no cycle check applies and the walk must not start.
		require.NoError(t, w.AddPair(a, plain, b))
		assert.Empty(t, w.rows(q))
	})
}

func TestTraversal_MarkTraversableEnablesUp(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		plain := w.tag("Plain")
		p := w.entity("p", ir.Plain(foo))

		q := w.query(terms(ir.Term(ir.Plain(foo)).Up(plain)), kind)
		a := w.entity("a", ir.Pair(plain, p))
		w.entity("b", ir.Pair(plain, a))
		assert.Empty(t, w.rows(q))

		require.NoError(t, w.MarkTraversable(plain))
		assert.Equal(t, []string{"[a] | Foo<-p", "[b] | Foo<-p"}, w.rows(q))
	})
}

func TestTraversal_PairWildcard(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		likes := w.tag("Likes")
		a := w.tag("a")
		b := w.tag("b")
		w.entity("e", ir.Pair(likes, a), ir.Pair(likes, b))

		q := w.query(terms(ir.Term(ir.Pair(likes, ir.Wildcard))), kind)
		assert.Equal(t, []string{
			"[e] | (Likes,a)",
			"[e] | (Likes,b)",
		}, w.rows(q))
	})
}

func TestTraversal_TargetVariable(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		likes := w.tag("Likes")
		a := w.tag("a")
		b := w.tag("b")
		w.entity("e", ir.Pair(likes, a), ir.Pair(likes, b))

		q := w.query(terms(ir.TermDesc{First: ir.Ent(likes), Second: ir.Var("x")}), kind)
		assert.Equal(t, []string{
			"[e] | (Likes,a) | $x=a",
			"[e] | (Likes,b) | $x=b",
		}, w.rows(q))
	})
}

func TestTraversal_RelationshipVariable(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		likes := w.tag("Likes")
		a := w.tag("a")
		w.entity("e", ir.Pair(likes, a), ir.Pair(ir.ChildOf, a))

		q := w.query(terms(ir.TermDesc{First: ir.Var("r"), Second: ir.Ent(a)}), kind)
		assert.Equal(t, []string{
			"[e] | (ChildOf,a) | $r=ChildOf",
			"[e] | (Likes,a) | $r=Likes",
		}, w.rows(q))
	})
}

func TestTraversal_VariableWrittenThenRead(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		likes := w.tag("Likes")
		a := w.entity("a", ir.Plain(foo))
		b := w.tag("b")
		w.entity("e", ir.Pair(likes, a), ir.Pair(likes, b))

		q := w.query(terms(
			ir.TermDesc{First: ir.Ent(likes), Second: ir.Var("x")},
			ir.Term(ir.Plain(foo)).FromVar("x"),
		), kind)
		assert.Equal(t, []string{"[e] | (Likes,a); Foo<-a | $x=a"}, w.rows(q))
	})
}

func TestTraversal_JoinThroughParentVariable(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		bar := w.tag("Bar")
		parent := w.entity("parent", ir.Plain(foo))
		other := w.entity("other")
		w.entity("child", ir.Plain(bar), ir.Pair(ir.ChildOf, parent))
		w.entity("orphan", ir.Plain(bar), ir.Pair(ir.ChildOf, other))

		q := w.query(terms(
			ir.Term(ir.Plain(bar)),
			ir.TermDesc{First: ir.Ent(ir.ChildOf), Second: ir.Var("p")},
			ir.Term(ir.Plain(foo)).FromVar("p"),
		), kind)
		assert.Equal(t, []string{"[child] | Bar; (ChildOf,parent); Foo<-parent | $p=parent"}, w.rows(q))
	})
}

func TestTraversal_VariableSourceSelfUp(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		w.entity("child", ir.Pair(ir.ChildOf, parent))

		q := w.query(terms(ir.Term(ir.Plain(foo)).FromVar("x").SelfUp(ir.ChildOf)), kind)

		it := q.Iter()
		var got []string
		for it.Next() {
			assert.Equal(t, 0, it.Count())
			assert.Nil(t, it.Table())
			got = append(got, w.format([]Row{it.Row()})...)
		}
		assert.Equal(t, []string{
			"[] | Foo<-parent | $x=parent",
			"[] | Foo<-parent | $x=child",
		}, got)
	})
}

func TestTraversal_FixedSourceUp(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		bar := w.tag("Bar")
		parent := w.entity("parent", ir.Plain(foo))
		child := w.entity("child", ir.Pair(ir.ChildOf, parent))
		w.entity("e", ir.Plain(bar))

		q := w.query(terms(ir.Term(ir.Plain(foo)).From(child).Up(ir.ChildOf)), kind)
		assert.Equal(t, []string{"[] | Foo<-parent"}, w.rows(q))

		q = w.query(terms(ir.Term(ir.Plain(foo)).From(child).Self()), kind)
		assert.Empty(t, w.rows(q))

		q = w.query(terms(
			ir.Term(ir.Plain(bar)),
			ir.Term(ir.Plain(foo)).From(child).Up(ir.ChildOf),
		), kind)
		assert.Equal(t, []string{"[e] | Bar; Foo<-parent"}, w.rows(q))
	})
}

func TestTraversal_NameSource(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		w.entity("parent", ir.Plain(foo))

		q := w.query(terms(ir.Term(ir.Plain(foo)).FromName("parent")), kind)
		assert.Equal(t, []string{"[] | Foo<-parent"}, w.rows(q))
	})
}
