package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/edn"
)

const peopleSchema = "../../testdata/schema/people.cue"

// cliEnv runs commands against one sqlite store in a temp dir.
type cliEnv struct {
	t  *testing.T
	db string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{t: t, db: filepath.Join(t.TempDir(), "causet.db")}
}

// exec runs the root command with stdin and returns stdout.
func (e *cliEnv) exec(stdin io.Reader, args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(append([]string{"--engine", "sqlite", "--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// json runs a command with --format json and decodes the response.
func (e *cliEnv) json(args ...string) (CLIResponse, error) {
	e.t.Helper()
	out, err := e.exec(nil, append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func (e *cliEnv) ok(args ...string) map[string]any {
	e.t.Helper()
	resp, err := e.json(args...)
	require.NoError(e.t, err)
	require.Equal(e.t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(e.t, ok, "data is %T", resp.Data)
	return data
}

func (e *cliEnv) writeFile(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.t.TempDir(), name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInit_BootstrapsOnce(t *testing.T) {
	env := newCLIEnv(t)

	first := env.ok("init")
	assert.Equal(t, "sqlite", first["engine"])
	assert.Equal(t, float64(0x10000000), first["head"])
	assert.Greater(t, first["idents"], float64(0))

	second := env.ok("init")
	assert.Equal(t, first, second)
}

func TestInit_BadConfig(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.json("--engine", "mongo", "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestInit_ConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	db := filepath.Join(t.TempDir(), "bolt.db")
	cfg := env.writeFile("causet.yaml", "storage:\n  engine: bolt\n  path: "+db+"\n")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "--format", "json", "init"})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "bolt", resp.Data.(map[string]any)["engine"])
	assert.FileExists(t, db)
}

func TestSchemaLoad(t *testing.T) {
	env := newCLIEnv(t)

	installed := env.ok("schema", "load", peopleSchema)
	assert.Equal(t, true, installed["schema_changed"])
	assert.Equal(t, float64(4), installed["attributes"])

	again := env.ok("schema", "load", peopleSchema)
	assert.Equal(t, false, again["schema_changed"])
	assert.Equal(t, float64(1), again["datoms"], "only txInstant")

	out, err := env.exec(nil, "idents")
	require.NoError(t, err)
	assert.Contains(t, out, ":person/friends")
	assert.Contains(t, out, "ref/many")
	assert.Contains(t, out, "unique:identity")
}

func TestSchemaLoad_DryRunCommitsNothing(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec(nil, "schema", "load", "--dry-run", peopleSchema)
	require.NoError(t, err)
	payload, err := edn.Parse([]byte(out))
	require.NoError(t, err)
	assert.Len(t, payload, 4)
	assert.Contains(t, out, `":db/ident":":person/name"`)

	idents, err := env.exec(nil, "idents")
	require.NoError(t, err)
	assert.NotContains(t, idents, ":person/name")
}

func TestSchemaLoad_InvalidCUE(t *testing.T) {
	env := newCLIEnv(t)
	bad := env.writeFile("bad.cue", `attribute: "person/name": {type: "text"}`)

	resp, err := env.json("schema", "load", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
}

func TestTransact_FileAndStdin(t *testing.T) {
	env := newCLIEnv(t)
	env.ok("schema", "load", peopleSchema)

	file := env.writeFile("ada.json", `[{":db/id": "ada", ":person/name": "Ada", ":person/age": 36}]`)
	report := env.ok("transact", file)
	tempids := report["tempids"].(map[string]any)
	assert.Contains(t, tempids, "ada")
	assert.Len(t, report["datoms"], 3, "two attributes and txInstant")

	// Upsert through :person/name from stdin.
	out, err := env.exec(strings.NewReader(`[{":db/id": "a2", ":person/name": "Ada", ":person/age": 37}]`), "transact", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Committed tx")
	assert.Contains(t, out, "a2 -> ")
	assert.Contains(t, out, "- [")
}

func TestTransact_Rejected(t *testing.T) {
	env := newCLIEnv(t)
	env.ok("schema", "load", peopleSchema)
	before := env.ok("init")["head"]

	resp, err := env.json("transact", env.writeFile("bad.json", `[{":person/nope": 1}]`))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "attribute_not_found", resp.Error.Code)

	assert.Equal(t, before, env.ok("init")["head"], "a rejected transaction consumes no tx id")
}

func TestTransact_UnreadableInput(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		arg  string
	}{
		{"missing_file", filepath.Join(t.TempDir(), "nope.json")},
		{"not_json", env.writeFile("bad.json", `[":db/add"`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.json("transact", tt.arg)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Equal(t, ErrCodeInput, resp.Error.Code)
		})
	}
}

func TestEntity(t *testing.T) {
	env := newCLIEnv(t)
	env.ok("schema", "load", peopleSchema)
	report := env.ok("transact", env.writeFile("ada.json",
		`[{":db/id": "ada", ":person/name": "Ada", ":person/email": "ada@example.com"}]`))
	ada := report["tempids"].(map[string]any)["ada"]

	byEmail := env.ok("entity", `[":person/email", "ada@example.com"]`)
	assert.Equal(t, ada, byEmail["entid"])
	assert.Len(t, byEmail["datoms"], 2)

	byID := env.ok("entity", jsonNumber(t, ada))
	assert.Equal(t, byEmail, byID)

	attr := env.ok("entity", "person/name")
	assert.NotEqual(t, ada, attr["entid"])

	resp, err := env.json("entity", `[":person/email", "bob@example.com"]`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	resp, err = env.json("entity", `[":person/age", 3]`)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, map[string]any{"code": "invalid_lookup_ref"}, resp.Error.Details)
}

func jsonNumber(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestLog(t *testing.T) {
	env := newCLIEnv(t)
	env.ok("schema", "load", peopleSchema)
	env.ok("transact", env.writeFile("ada.json", `[{":person/name": "Ada"}]`))

	list := env.ok("log")
	txs := list["transactions"].([]any)
	require.Len(t, txs, 3, "bootstrap, schema, Ada")
	first := txs[0].(map[string]any)
	assert.Equal(t, float64(0x10000000), first["tx"])

	head := env.ok("log", "head")
	last := txs[2].(map[string]any)
	assert.Equal(t, last["tx"], head["tx"])
	assert.Len(t, head["datoms"], 2)
	assert.NotEmpty(t, head["payload_hash"])

	out, err := env.exec(nil, "log", "head")
	require.NoError(t, err)
	assert.Contains(t, out, `:person/name "Ada"`)

	resp, err := env.json("log", "42")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	resp, err = env.json("log", "latest")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInput, resp.Error.Code)
}

func TestParseEntityRef(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    edn.Value
		wantErr bool
	}{
		{"entid", "65536", edn.Int(65536), false},
		{"keyword", ":person/name", edn.String(":person/name"), false},
		{"bare_keyword", "person/name", edn.String(":person/name"), false},
		{"lookup_ref", `[":person/name", "Ada"]`, edn.ArrayOf(edn.String(":person/name"), edn.String("Ada")), false},
		{"negative", "-1", nil, true},
		{"empty", "  ", nil, true},
		{"bad_json", `[":person/name"`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEntityRef(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
