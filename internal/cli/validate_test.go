package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var definitionsFile = filepath.Join("..", "metadata", "testdata", "entity_definitions.json")

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidQueries(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "queries"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 2 query(s) valid")
}

func TestValidateAgainstDefinitions(t *testing.T) {
	out, err := executeValidate(t, "json", filepath.Join("testdata", "queries"), "--definitions", definitionsFile)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Queries)
}

func TestValidateInvalidQueries(t *testing.T) {
	out, err := executeValidate(t, "json", filepath.Join("testdata", "invalid"), "--definitions", definitionsFile)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 3, resp.Data.Queries)
	require.Len(t, resp.Data.Errors, 3)

	assert.Equal(t, "noColumns", resp.Data.Errors[0].Query)
	assert.Equal(t, ErrCodeQueryColumns, resp.Data.Errors[0].Code)
	assert.Positive(t, resp.Data.Errors[0].Line)

	assert.Equal(t, "badOperator", resp.Data.Errors[1].Query)
	assert.Equal(t, ErrCodeQueryFilter, resp.Data.Errors[1].Code)

	assert.Equal(t, "unknownNames", resp.Data.Errors[2].Query)
	assert.Equal(t, ErrCodeQueryUnknown, resp.Data.Errors[2].Code)
	assert.Contains(t, resp.Data.Errors[2].Message, "shoesize")
}

func TestValidateTextOutput(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "invalid"))
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E102: noColumns:")
}

func TestValidateMissingDefinitions(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join("testdata", "queries"), "--definitions", "/nonexistent.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestCheckNames(t *testing.T) {
	meta := loadTestDefinitions(t)
	loaded, errs := LoadQueries(accountsFile, LoadModeCollectAll)
	require.Empty(t, errs)

	for _, nq := range loaded.Queries {
		assert.Empty(t, CheckNames(meta, nq), nq.Name)
	}

	nq, ok := loaded.Find("accountContacts")
	require.True(t, ok)
	nq.Query.LinkEntities[0].LinkToEntityName = "opportunity"
	issues := CheckNames(meta, nq)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "links[0].to.entity")

	nq.Query.LinkEntities[0].LinkToEntityName = "contact"
	nq.Query.LinkEntities[0].LinkFromAttributeName = "parentaccountid"
	issues = CheckNames(meta, nq)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "links[0].from.attribute")
}
