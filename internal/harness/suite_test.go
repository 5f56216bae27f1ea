package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `name: minimal
description: "one entity, one row"
queries:
  q:
    terms: [{id: Foo}]
steps:
  - op: new
    name: Foo
  - op: new
    name: e
    ids: [Foo]
  - run: q
    expect: ["[e] | Foo"]
`

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", minimalScenario)
	writeScenario(t, dir, "a.yml", minimalScenario)
	writeScenario(t, dir, "notes.txt", "not a scenario")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	writeScenario(t, filepath.Join(dir, "nested"), "c.yaml", minimalScenario)

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)

	files, err = FindScenarios(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, files)

	_, err = FindScenarios(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("g", "x.golden"), GoldenPath("g", filepath.Join("s", "x.yaml")))
}

func TestRunSuite_Testdata(t *testing.T) {
	result, err := RunSuite(context.Background(), "testdata/scenarios", SuiteOptions{GoldenDir: "testdata/golden"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Equal(t, 0, result.Failed)
	for _, s := range result.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
		assert.Equal(t, GoldenMatch, s.Golden, s.Name)
		assert.Positive(t, s.Runs)
	}
}

func TestRunSuite_UpdateThenMatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "minimal.yaml", minimalScenario)

	result, err := RunSuite(context.Background(), dir, SuiteOptions{})
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.True(t, result.Scenarios[0].Pass)
	assert.Equal(t, GoldenMissing, result.Scenarios[0].Golden)

	result, err = RunSuite(context.Background(), dir, SuiteOptions{Update: true})
	require.NoError(t, err)
	assert.Equal(t, GoldenUpdated, result.Scenarios[0].Golden)

	data, err := os.ReadFile(filepath.Join(dir, "golden", "minimal.golden"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"minimal","trace":[`+
			`{"entity":"Foo","op":"new","seq":1,"type":"mutation"},`+
			`{"entity":"e","ids":["Foo"],"op":"new","seq":2,"type":"mutation"},`+
			`{"query":"q","rows":["[e] | Foo"],"seq":3,"type":"run"}]}`,
		string(data))

	result, err = RunSuite(context.Background(), dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, GoldenMatch, result.Scenarios[0].Golden)
	assert.Equal(t, 1, result.Passed)
}

func TestRunSuite_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "minimal.yaml", minimalScenario)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0755))
	writeScenario(t, filepath.Join(dir, "golden"), "minimal.golden", `{"scenario_name":"minimal","trace":[]}`)

	result, err := RunSuite(context.Background(), dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, GoldenMismatch, result.Scenarios[0].Golden)
	assert.Contains(t, result.Scenarios[0].Errors[0], "trace does not match golden file")
}

func TestRunSuite_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	result, err := RunSuite(context.Background(), dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "broken.yaml", result.Scenarios[0].Name)
	assert.Contains(t, result.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestRunSuite_MissingDir(t *testing.T) {
	_, err := RunSuite(context.Background(), filepath.Join(t.TempDir(), "missing"), SuiteOptions{})
	assert.Error(t, err)
}
