package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/ir"
)

func TestIter_ReadSurface(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		parent := w.entity("parent", ir.Plain(foo))
		c1 := w.entity("c1", ir.Pair(ir.ChildOf, parent))
		c2 := w.entity("c2", ir.Pair(ir.ChildOf, parent))

		q := w.query(terms(ir.Term(ir.Plain(foo)).Up(ir.ChildOf)), kind)
		it := q.Iter()
		require.True(t, it.Next())
		assert.Equal(t, w.TableOf(c1), it.Table())
		assert.Equal(t, 0, it.Offset())
		assert.Equal(t, 2, it.Count())
		assert.Equal(t, []ir.Entity{c1, c2}, it.Entities())
		assert.Equal(t, ir.Plain(foo), it.FieldID(0))
		assert.Equal(t, parent, it.FieldSrc(0))
		assert.True(t, it.FieldIsSet(0))
		assert.Equal(t, ir.Entity(0), it.Var("this"), "$this has no value for a multi-entity row")

		assert.False(t, it.Next())
		assert.False(t, it.Next())
		assert.Equal(t, Field{}, it.Field(0))
	})
}

func TestIter_SetThis(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		w.entity("e1", ir.Plain(foo))
		e2 := w.entity("e2", ir.Plain(foo))
		e3 := w.entity("e3")

		q := w.query(terms(ir.Term(ir.Plain(foo))), kind)
		it := q.Iter()
		require.NoError(t, it.SetVar("$this", e2))
		require.True(t, it.Next())
		assert.Equal(t, 1, it.Offset())
		assert.Equal(t, 1, it.Count())
		assert.Equal(t, e2, it.Var("this"))
		assert.Equal(t, e2, it.VarAt(0))
		assert.False(t, it.Next())

		it = q.Iter()
		require.NoError(t, it.SetVar("this", e3))
		assert.False(t, it.Next(), "entity without the id has no row")
	})
}

func TestIter_SetVarErrors(t *testing.T) {
	w := newTestWorld(t)
	foo := w.tag("Foo")
	e := w.entity("e", ir.Plain(foo))

	q := w.query(terms(ir.Term(ir.Plain(foo))), ir.CacheNever)
	it := q.Iter()

	err := it.SetVar("missing", e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no variable $missing")

	err = it.SetVarAt(5, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	require.True(t, it.Next())
	err = it.SetVar("this", e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestIter_SetVarZeroClears(t *testing.T) {
	w := newTestWorld(t)
	foo := w.tag("Foo")
	w.entity("e1", ir.Plain(foo))
	e2 := w.entity("e2", ir.Plain(foo), ir.Pair(ir.ChildOf, w.entity("p")))

	q := w.query(terms(ir.Term(ir.Plain(foo))), ir.CacheNever)
	it := q.Iter()
	require.NoError(t, it.SetVar("this", e2))
	require.NoError(t, it.SetVar("this", 0))
	assert.Len(t, Collect(it), 2)
}

func TestIter_Fini(t *testing.T) {
	w := newTestWorld(t)
	foo := w.tag("Foo")
	w.entity("e1", ir.Plain(foo))
	w.entity("e2", ir.Plain(foo), ir.Plain(w.tag("Bar")))

	q := w.query(terms(ir.Term(ir.Plain(foo))), ir.CacheNever)
	it := q.Iter()
	require.True(t, it.Next())
	it.Fini()
	assert.False(t, it.Next())
	assert.Nil(t, it.Table())
}

func TestIter_EntitiesAreReadLive(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		e1 := w.entity("e1", ir.Plain(foo))

		q := w.query(terms(ir.Term(ir.Plain(foo))), kind)
		it := q.Iter()
		require.True(t, it.Next())
		e2 := w.entity("e2", ir.Plain(foo))
		assert.Equal(t, []ir.Entity{e1, e2}, it.Entities())
	})
}

func TestIter_SkipsDeletedTables(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")
		w.entity("e1", ir.Plain(foo))
		e2 := w.entity("e2", ir.Plain(foo), ir.Plain(w.tag("Bar")))

		q := w.query(terms(ir.Term(ir.Plain(foo))), kind)
		it := q.Iter()
		require.True(t, it.Next())

		require.NoError(t, w.Delete(e2))
		assert.Equal(t, 1, w.DeleteEmptyTables())
		assert.False(t, it.Next())
	})
}

func TestIter_RowsComputedOnFirstNext(t *testing.T) {
	eachCacheKind(t, func(t *testing.T, kind ir.CacheKind) {
		w := newTestWorld(t)
		foo := w.tag("Foo")

		q := w.query(terms(ir.Term(ir.Plain(foo))), kind)
		it := q.Iter()
		w.entity("late", ir.Plain(foo))
		assert.Equal(t, []string{"[late] | Foo"}, w.format(Collect(it)))
	})
}

func TestRow_Format(t *testing.T) {
	w := newTestWorld(t)
	foo := w.tag("Foo")
	likes := w.tag("Likes")
	p := w.entity("p")
	e := w.entity("e")

	r := Row{
		Table:    3,
		Entities: []ir.Entity{e},
		Fields: []Field{
			{ID: ir.Plain(foo), Set: true},
			{ID: ir.Plain(foo), Src: p, Set: true},
			{ID: ir.Pair(likes, ir.Wildcard)},
		},
		Vars: map[string]ir.Entity{"y": p, "x": 0},
	}
	assert.Equal(t, "T3 [e] | Foo; Foo<-p; !(Likes,*) | $x=0 $y=p", r.Format(w.Label))
	assert.Equal(t, fmt.Sprintf("T3 [%s] | %s; %s<-%s; !(%s,*) | $x=0 $y=%s", e, foo, foo, p, likes, p), r.String())
}

func TestRow_CanonicalHashIsStable(t *testing.T) {
	r := Row{
		Table:    2,
		Entities: []ir.Entity{10, 11},
		Fields:   []Field{{ID: ir.Pair(ir.ChildOf, 9), Src: 9, Set: true}},
		Vars:     map[string]ir.Entity{"p": 9},
	}
	h1, err := ir.RowsHash([]any{r.Canonical()})
	require.NoError(t, err)
	h2, err := ir.RowsHash([]any{r.Canonical()})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	r.Fields[0].Set = false
	h3, err := ir.RowsHash([]any{r.Canonical()})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
