package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplain_Text(t *testing.T) {
	out, _, err := execute(t, "explain", queriesDir, "inherited")
	require.NoError(t, err)
	assert.Contains(t, out, "query inherited\n")
	assert.Contains(t, out, "  vars: ")
	assert.Contains(t, out, "  cache: ")
	assert.Contains(t, out, "  hash: ")
}

func TestExplain_JSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "explain", queriesDir, "contained")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "contained", data["query"])
	assert.NotEmpty(t, data["hash"])
	plan := data["plan"].([]any)
	require.NotEmpty(t, plan)
	assert.Equal(t, "query contained", plan[0])
}

func TestExplain_HashIgnoresWorld(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "explain", queriesDir, "inherited")
	require.NoError(t, err)
	withoutWorld := decodeResponse(t, out).Data.(map[string]any)["hash"]

	out, _, err = execute(t, "--format", "json", "explain", queriesDir, "inherited", "--world", hierarchy)
	require.NoError(t, err)
	withWorld := decodeResponse(t, out).Data.(map[string]any)["hash"]

	assert.Equal(t, withoutWorld, withWorld)
}

func TestExplain_UnknownQuery(t *testing.T) {
	out, _, err := execute(t, "explain", queriesDir, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeUnknownQuery)
	assert.Contains(t, out, `query "nope" not found`)
}

func TestExplain_DoesNotCompile(t *testing.T) {
	_, _, err := execute(t, "explain", queriesDir, "contained", "--world", hierarchy)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "query contained does not compile")
}

func TestExplain_MissingArgs(t *testing.T) {
	_, _, err := execute(t, "explain", queriesDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg")
}
