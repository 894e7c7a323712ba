package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-etl/internal/job"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(t.Context())

	return stdout.String(), stderr.String(), err
}

func logEntries(t *testing.T, logs string) []map[string]any {
	t.Helper()

	var entries []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(logs))
	for scanner.Scan() {
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}

	return entries
}

func findEntry(entries []map[string]any, message string) map[string]any {
	for _, entry := range entries {
		if entry["message"] == message {
			return entry
		}
	}

	return nil
}

func TestVersion(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "etl dev\n", stdout)
}

func TestGrep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "app.log")
	out := filepath.Join(dir, "warnings.log")
	require.NoError(t, os.WriteFile(in, []byte("WARN low disk\nINFO ok\nWARN slow\n"), 0o600))

	_, stderr, err := execute(t, "grep", "--log-format", "json", "--pattern", "WARN", in, out)
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "WARN low disk\nWARN slow\n", string(got))

	entry := findEntry(logEntries(t, stderr), "grep finished")
	require.NotNil(t, entry)
	assert.InDelta(t, 2, entry["matched"], 0)
}

func TestGrepSameFile(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(in, []byte("WARN low disk\n"), 0o600))

	_, _, err := execute(t, "grep", "--pattern", "WARN", in, in)
	require.ErrorIs(t, err, job.ErrSameFile)

	got, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, "WARN low disk\n", string(got))
}

func TestGrepArgs(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "grep", "only-one-arg")
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "accounts.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(
		"{\"name\":\"ada\",\"balance\":10}\n{\"name\":\"bob\",\"balance\":-3}\n{\"name\":\"cy\",\"balance\":\"n/a\"}\n",
	), 0o600))

	cfgPath := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
name: accounts
source:
  type: jsonl
  path: `+in+`
steps:
  - name: positive
    type: greater_than
    field: balance
    value: 0
  - name: upper
    type: upper
    field: name
    concurrency: 2
on_error: skip
monitor: true
sink:
  type: stdout
log:
  format: json
`), 0o600))

	graphPath := filepath.Join(dir, "job.gv")
	stdout, stderr, err := execute(t, "run", "--config", cfgPath, "--env-file", "", "--graph", graphPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ADA","balance":10}`, strings.TrimSpace(stdout))

	entries := logEntries(t, stderr)
	finished := findEntry(entries, "job finished")
	require.NotNil(t, finished)
	assert.Equal(t, "SUCCESS", finished["status"])
	assert.InDelta(t, 3, finished["read"], 0)
	assert.InDelta(t, 1, finished["emitted"], 0)
	assert.InDelta(t, 1, finished["filtered"], 0)
	assert.InDelta(t, 1, finished["skipped"], 0)
	assert.NotNil(t, findEntry(entries, "slowest step"))

	_, err = os.Stat(graphPath)
	require.NoError(t, err)
}

func TestRunFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
name: broken
source:
  type: lines
  path: `+filepath.Join(dir, "missing.txt")+`
sink:
  type: stdout
log:
  format: json
`), 0o600))

	_, stderr, err := execute(t, "run", "--config", cfgPath, "--env-file", "")
	require.ErrorIs(t, err, os.ErrNotExist)

	finished := findEntry(logEntries(t, stderr), "job finished")
	require.NotNil(t, finished)
	assert.Equal(t, "ERROR", finished["status"])
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--env-file", "")
	require.Error(t, err)
}
