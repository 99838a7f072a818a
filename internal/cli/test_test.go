package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: tags
description: Tag one item
schema:
  - tags.cue
steps:
  - name: tag_one
    transact: '[{":db/id": "w", ":item/sku": "w-1", ":item/tags": [":tag/red"]}]'
    expect:
      tempids: [w]
assertions:
  - type: entity
    entity: [":item/sku", "w-1"]
    expect:
      ":item/tags": [":tag/red"]
`

const failingScenario = `name: wrong_count
description: Expects more transactions than it runs
schema:
  - tags.cue
steps:
  - name: nothing
    transact: '[]'
assertions:
  - type: tx_count
    count: 5
`

const tagsSchema = `attribute: "item/sku": {type: "string", unique: "identity"}
attribute: "item/tags": {type: "keyword", cardinality: "many"}
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.cue"), []byte(tagsSchema), 0644))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)
	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandPasses(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"tags.yaml": passingScenario})

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ tags")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailureExitsOne(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"tags.yaml":        passingScenario,
		"wrong_count.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, 1, response.Data.Passed)
	assert.Equal(t, 1, response.Data.Failed)
	assert.Equal(t, 2, response.Data.Total)
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"tags.yaml":        passingScenario,
		"wrong_count.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "text", dir, "--filter", "ta*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_count")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"tags.yaml": passingScenario})
	goldenPath := filepath.Join(dir, "golden", "tags.golden")

	_, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)
	require.FileExists(t, goldenPath)

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario":"tags"`)
	assert.Contains(t, string(golden), `["+","w",":item/tags",":tag/red"]`)

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario":"tags","steps":[]}`), 0644))
	out, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandProjectScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", "../../testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.json", "sub/d.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("name: x"), 0644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "d")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "sub", "d.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
