package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/edn"
)

func ednString(s string) edn.Value { return edn.String(s) }

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.Steps = []StepTrace{
		{Step: "ok", Tx: 1, TempIDs: map[string]string{"a": "a"}, Datoms: []Row{{Op: "+", E: "a", A: ":x/y", Value: edn.Int(1)}}},
		{Step: "bad", Error: "unique_conflict", Tx: 9},
	}

	out, err := Snapshot("s", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"s","steps":[{"datoms":[["+","a",":x/y",1]],"step":"ok","tempids":{"a":"a"},"tx":1},{"error":"unique_conflict","step":"bad"}]}`,
		string(out))
}

func TestRunWithGolden_PeopleUpsert(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(projectRoot(), "testdata", "scenarios", "people_upsert.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunWithGolden_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:  "deterministic",
		Setup: []any{tagSchema},
		Steps: []Step{
			{Name: "a", Transact: `[{":db/id": "x", ":item/sku": "X", ":item/parts": ["y"]}, {":db/id": "y", ":item/sku": "Y"}]`},
		},
	}

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

// projectRoot returns the module root; tests run from the package
// directory.
func projectRoot() string {
	root, _ := filepath.Abs("../..")
	return root
}

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(projectRoot(), "testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := os.Stat(path)
			require.NoError(t, err)
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario %s failed: %v", scenario.Name, result.Errors)
		})
	}
}
