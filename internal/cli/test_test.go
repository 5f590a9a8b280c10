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

var harnessTestdata = filepath.Join("..", "harness", "testdata")

// copyScenarios copies the harness scenarios and their definitions into a
// temp dir and returns the scenarios directory.
func copyScenarios(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0755))

	defs, err := os.ReadFile(filepath.Join(harnessTestdata, "definitions.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.json"), defs, 0644))

	files, err := filepath.Glob(filepath.Join(harnessTestdata, "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(scenarios, filepath.Base(f)), data, 0644))
	}
	return scenarios
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
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
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = executeTest(t, "json", t.TempDir())
	require.NoError(t, err)
	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandRunsScenarios(t *testing.T) {
	scenarios := copyScenarios(t)

	out, err := executeTest(t, "text", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ account-lifecycle")
	assert.Contains(t, out, "✓ paging")
	assert.Contains(t, out, "✓ errors")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	scenarios := copyScenarios(t)

	out, err := executeTest(t, "json", scenarios, "--filter", "pag*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "paging", resp.Data.Scenarios[0].Name)
}

func TestTestCommandGoldenFiles(t *testing.T) {
	scenarios := copyScenarios(t)

	out, err := executeTest(t, "text", scenarios, "--update", "--filter", "account-*")
	require.NoError(t, err, out)

	written, err := os.ReadFile(filepath.Join(scenarios, "golden", "account-lifecycle.golden"))
	require.NoError(t, err)
	expected, err := os.ReadFile(filepath.Join(harnessTestdata, "golden", "account-lifecycle.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written), "the CLI and the harness tests share one snapshot format")

	_, err = executeTest(t, "text", scenarios)
	require.NoError(t, err, "scenarios pass against fresh golden files")

	tampered := bytes.Replace(written, []byte(`"DELETE"`), []byte(`"PATCH"`), 1)
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "golden", "account-lifecycle.golden"), tampered, 0644))

	out, err = executeTest(t, "text", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ account-lifecycle")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 2 passed, 1 failed, 3 total")
}

func TestTestCommandBadScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Error  CLIError   `json:"error"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "broken.yaml", resp.Data.Scenarios[0].Name)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	goldenDir := filepath.Join(tmpDir, "golden")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.MkdirAll(goldenDir, 0755))

	for _, f := range []string{"paging.yaml", "paging-top.yml", "errors.yaml", "notes.txt", "subdir/nested.yaml", "golden/skipped.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, f), nil, 0644))
	}

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 4)

	files, err = findScenarioFiles(tmpDir, "paging*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(tmpDir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
