package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashDesc() QueryDesc {
	return QueryDesc{
		Name: "inherited",
		Terms: []TermDesc{
			Term(Plain(20)).Up(ChildOf),
			{First: Named("Likes"), Second: Var("x"), Oper: OperOptional},
		},
		Vars:      []VarDecl{{Name: "x"}},
		CacheKind: CacheAlways,
	}
}

func TestQueryHashDeterminism(t *testing.T) {
	h1, err := QueryHash(hashDesc())
	require.NoError(t, err)
	h2, err := QueryHash(hashDesc())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestQueryHashIgnoresName(t *testing.T) {
	d := hashDesc()
	h1 := MustQueryHash(d)
	d.Name = "renamed"
	assert.Equal(t, h1, MustQueryHash(d))
}

func TestQueryHashChangesWithInput(t *testing.T) {
	base := MustQueryHash(hashDesc())

	tests := []struct {
		name   string
		mutate func(d *QueryDesc)
	}{
		{"cache kind", func(d *QueryDesc) { d.CacheKind = CacheNever }},
		{"match empty tables", func(d *QueryDesc) { d.MatchEmptyTables = true }},
		{"traversal", func(d *QueryDesc) { d.Terms[0].Trav = TravSelfUp }},
		{"operator", func(d *QueryDesc) { d.Terms[1].Oper = OperNot }},
		{"entity", func(d *QueryDesc) { d.Terms[0].First = Ent(21) }},
		{"name ref", func(d *QueryDesc) { d.Terms[1].First = Named("Hates") }},
		{"var alias", func(d *QueryDesc) { d.Vars[0].Alias = "y" }},
		{"term order", func(d *QueryDesc) { d.Terms[0], d.Terms[1] = d.Terms[1], d.Terms[0] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := hashDesc()
			tt.mutate(&d)
			assert.NotEqual(t, base, MustQueryHash(d))
		})
	}
}

func TestRowsHash(t *testing.T) {
	rows := []any{
		map[string]any{"entities": []any{Entity(10)}, "table": int64(2)},
	}
	h1, err := RowsHash(rows)
	require.NoError(t, err)
	h2, err := RowsHash(rows)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	empty, err := RowsHash([]any{})
	require.NoError(t, err)
	assert.NotEqual(t, h1, empty)

	_, err = RowsHash([]any{1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RowsHash")
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte("[]")
	query := hashWithDomain(DomainQuery, data)
	rows := hashWithDomain(DomainRows, data)
	assert.NotEqual(t, query, rows)

	plain := sha256.Sum256(data)
	assert.NotEqual(t, hex.EncodeToString(plain[:]), rows, "domain prefix changes the digest")

	got, err := RowsHash([]any{})
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
