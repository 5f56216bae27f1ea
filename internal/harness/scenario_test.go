package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/ir"
)

func TestLoadScenario_Testdata(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/nearest_source.yaml")
	require.NoError(t, err)

	assert.Equal(t, "nearest_source", s.Name)
	assert.NotEmpty(t, s.Description)
	assert.Equal(t, []string{"self_up", "up"}, s.QueryNames())
	require.Len(t, s.Steps, 9)

	mid := s.Steps[2]
	assert.Equal(t, OpNew, mid.Op)
	assert.Equal(t, "mid", mid.Name)
	assert.Equal(t, []IDSpec{{First: "Foo"}, {First: "ChildOf", Second: "parent"}}, mid.Ids)

	run := s.Steps[4]
	assert.Equal(t, "up", run.Run)
	require.NotNil(t, run.Expect)
	assert.Equal(t, []string{"[mid] | Foo<-parent", "[leaf] | Foo<-mid"}, *run.Expect)

	last := s.Steps[8]
	assert.Nil(t, last.Expect)
	require.NotNil(t, last.Count)
	assert.Equal(t, 3, *last.Count)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_EmptyExpectIsNotNil(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: empty
description: "no rows"
queries:
  q:
    terms: [{id: Foo}]
steps:
  - op: new
    name: Foo
  - run: q
    expect: []
`))
	require.NoError(t, err)
	require.NotNil(t, s.Steps[1].Expect)
	assert.Empty(t, *s.Steps[1].Expect)
}

func TestIDSpec_Forms(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want IDSpec
	}{
		{"plain", `id: Foo`, IDSpec{First: "Foo"}},
		{"pair list", `id: [ChildOf, parent]`, IDSpec{First: "ChildOf", Second: "parent"}},
		{"pair string", `id: "(Likes, *)"`, IDSpec{First: "Likes", Second: "*"}},
		{"variable target", `id: [Likes, $x]`, IDSpec{First: "Likes", Second: "$x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(`
name: ids
description: "id forms"
queries:
  q:
    terms:
      - ` + tt.yaml + `
steps:
  - op: delete_empty
`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Queries["q"].Terms[0].ID)
		})
	}
}

func TestIDSpec_String(t *testing.T) {
	assert.Equal(t, "Foo", IDSpec{First: "Foo"}.String())
	assert.Equal(t, "(ChildOf,parent)", IDSpec{First: "ChildOf", Second: "parent"}.String())
}

func TestQuerySpec_Descriptor(t *testing.T) {
	spec := QuerySpec{
		Terms: []TermSpec{
			{ID: IDSpec{First: "Bar"}},
			{ID: IDSpec{First: "Foo"}, Src: "$x", Trav: "self|up", Rel: "Rel", Oper: "optional"},
			{ID: IDSpec{First: "Likes", Second: "*"}, Src: "root", Oper: "not"},
		},
		Vars:             []VarSpec{{Name: "$x"}, {Name: "y", Alias: "$x"}},
		Cache:            "always",
		MatchEmptyTables: true,
	}

	desc, err := spec.Descriptor("q")
	require.NoError(t, err)
	assert.Equal(t, ir.QueryDesc{
		Name: "q",
		Terms: []ir.TermDesc{
			{First: ir.Named("Bar")},
			{First: ir.Named("Foo"), Src: ir.Var("x"), Trav: ir.TravSelfUp, Rel: ir.Named("Rel"), Oper: ir.OperOptional},
			{First: ir.Named("Likes"), Second: ir.Ent(ir.Wildcard), Src: ir.Named("root"), Oper: ir.OperNot},
		},
		Vars:             []ir.VarDecl{{Name: "x"}, {Name: "y", Alias: "x"}},
		CacheKind:        ir.CacheAlways,
		MatchEmptyTables: true,
	}, desc)
}

func TestQuerySpec_DescriptorErrors(t *testing.T) {
	_, err := QuerySpec{Terms: []TermSpec{{ID: IDSpec{First: "Foo"}, Trav: "sideways"}}}.Descriptor("q")
	assert.ErrorContains(t, err, "invalid traversal")

	_, err = QuerySpec{Terms: []TermSpec{{ID: IDSpec{First: "Foo"}, Oper: "xor"}}}.Descriptor("q")
	assert.ErrorContains(t, err, "invalid operator")

	_, err = QuerySpec{Terms: []TermSpec{{ID: IDSpec{First: "Foo"}}}, Cache: "sometimes"}.Descriptor("q")
	assert.ErrorContains(t, err, "invalid cache kind")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	const queries = `
queries:
  q:
    terms: [{id: Foo}]
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: delete_empty}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{op: delete_empty}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "query without terms",
			yaml:    "name: n\ndescription: d\nqueries: {q: {terms: []}}\nsteps: [{run: q}]\n",
			wantErr: "queries.q: terms list is required",
		},
		{
			name:    "step without op or run",
			yaml:    "name: n\ndescription: d\nsteps: [{name: x}]\n",
			wantErr: "steps[0]: one of op or run is required",
		},
		{
			name:    "op and run",
			yaml:    "name: n\ndescription: d" + queries + "steps: [{op: delete_empty, run: q}]\n",
			wantErr: "steps[0]: op and run are exclusive",
		},
		{
			name:    "unknown query",
			yaml:    "name: n\ndescription: d" + queries + "steps: [{run: other}]\n",
			wantErr: `steps[0]: unknown query "other"`,
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsteps: [{op: explode}]\n",
			wantErr: `steps[0]: unknown op "explode"`,
		},
		{
			name:    "add without ids",
			yaml:    "name: n\ndescription: d\nsteps: [{op: add, entity: e}]\n",
			wantErr: "steps[0]: ids list is required for add",
		},
		{
			name:    "delete without entity",
			yaml:    "name: n\ndescription: d\nsteps: [{op: delete}]\n",
			wantErr: "steps[0]: entity is required for delete",
		},
		{
			name:    "rel without name",
			yaml:    "name: n\ndescription: d\nsteps: [{op: rel}]\n",
			wantErr: "steps[0]: name is required for rel",
		},
		{
			name:    "expect on mutation",
			yaml:    "name: n\ndescription: d\nsteps: [{op: delete_empty, expect: []}]\n",
			wantErr: "steps[0]: expect and count are only valid on run steps",
		},
		{
			name:    "negative count",
			yaml:    "name: n\ndescription: d" + queries + "steps: [{run: q, count: -1}]\n",
			wantErr: "steps[0]: count must be non-negative",
		},
		{
			name:    "malformed pair",
			yaml:    "name: n\ndescription: d\nsteps: [{op: new, ids: [[a, b, c]]}]\n",
			wantErr: "pair must have 2 elements",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AllTestdataScenariosParse(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)
			base := filepath.Base(f)
			assert.Equal(t, base[:len(base)-len(filepath.Ext(base))], s.Name,
				"scenario name must match its file so golden lookups agree")
		})
	}
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
