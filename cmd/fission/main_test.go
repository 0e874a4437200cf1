package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fission/internal/config"
	"fission/internal/jsonx"
	"fission/internal/notes"
	"fission/internal/store"
)

type cliEnv struct {
	home string
	db   string
	mock string
}

func newCLIEnv(t *testing.T, mockResponse string) *cliEnv {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	return &cliEnv{home: dir, db: filepath.Join(dir, "fission.db"), mock: mockResponse}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cli := &CLI{
		newContainer: buildContainer,
		overrides: []config.Option{
			config.WithHomeDir(func() (string, error) { return e.home, nil }),
			config.WithOverride("llm.provider", "mock"),
			config.WithOverride("llm.mock_response", e.mock),
			config.WithOverride("database.path", e.db),
			config.WithOverride("metrics.enabled", false),
		},
	}
	root := newRootCommand(cli)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRecordAndListJSON(t *testing.T) {
	env := newCLIEnv(t, `["Buy milk","Call John"]`)

	out, err := env.run(t, "", "--json", "record", "-t", "Errands", "--transcript", "milk, john")
	require.NoError(t, err, out)
	var outcome notes.RecordingOutcome
	require.NoError(t, jsonx.Unmarshal([]byte(out), &outcome), out)
	assert.Equal(t, "Errands", outcome.Meeting.Title)
	assert.Equal(t, []string{"Buy milk", "Call John"}, store.Contents(outcome.Tasks))

	out, err = env.run(t, "", "--json", "meetings", "list")
	require.NoError(t, err)
	var meetings []store.Meeting
	require.NoError(t, jsonx.Unmarshal([]byte(out), &meetings), out)
	require.Len(t, meetings, 1)

	out, err = env.run(t, "", "tasks", "list", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] Buy milk")
	assert.Contains(t, out, "[ ] Call John")
}

func TestRecordReadsTranscriptFromStdin(t *testing.T) {
	env := newCLIEnv(t, `["Ship it"]`)
	out, err := env.run(t, "ship it today", "record", "-t", "Release", "-f", "-")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Release")
	assert.Contains(t, out, "Ship it")
}

func TestRecordSoftNotice(t *testing.T) {
	env := newCLIEnv(t, "no list here")
	out, err := env.run(t, "", "record", "-t", "Chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis incomplete")
}

func TestRecordRequiresTitle(t *testing.T) {
	env := newCLIEnv(t, "[]")
	_, err := env.run(t, "", "record")
	require.Error(t, err)

	_, err = env.run(t, "", "record", "-t", "   ")
	require.ErrorIs(t, err, notes.ErrTitleRequired)
}

func TestTaskLifecycle(t *testing.T) {
	env := newCLIEnv(t, "[]")
	_, err := env.run(t, "", "record", "-t", "Board")
	require.NoError(t, err)

	out, err := env.run(t, "", "--json", "tasks", "add", "1", "Write", "agenda")
	require.NoError(t, err)
	var task store.Task
	require.NoError(t, jsonx.Unmarshal([]byte(out), &task), out)
	assert.Equal(t, "Write agenda", task.Content)

	_, err = env.run(t, "", "tasks", "done", "#1")
	require.NoError(t, err)
	out, err = env.run(t, "", "tasks", "list", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[x]")

	_, err = env.run(t, "", "tasks", "edit", "1", "Send agenda")
	require.NoError(t, err)
	_, err = env.run(t, "", "tasks", "delete", "1")
	require.NoError(t, err)
	_, err = env.run(t, "", "tasks", "delete", "1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.run(t, "", "meetings", "rename", "1", "Board", "sync")
	require.NoError(t, err)
	_, err = env.run(t, "", "meetings", "delete", "1")
	require.NoError(t, err)
	_, err = env.run(t, "", "tasks", "list", "1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSummaryAndSettings(t *testing.T) {
	env := newCLIEnv(t, "<think>plan</think>All errands done.")
	_, err := env.run(t, "", "record", "-t", "Errands")
	require.NoError(t, err)

	out, err := env.run(t, "", "settings", "set", "summary_style", "Casual")
	require.NoError(t, err)
	assert.Contains(t, out, "summary_style = casual")

	out, err = env.run(t, "", "--json", "summary", "1")
	require.NoError(t, err)
	var sum notes.SummaryOutcome
	require.NoError(t, jsonx.Unmarshal([]byte(out), &sum), out)
	assert.Equal(t, "All errands done.", sum.Text)
	assert.Equal(t, "casual", string(sum.Style))

	_, err = env.run(t, "", "settings", "get", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExtractPrintsItems(t *testing.T) {
	env := newCLIEnv(t, `Sure: ["Call John"]`)
	out, err := env.run(t, "", "extract", "call", "john")
	require.NoError(t, err)
	assert.Contains(t, out, "- Call John")

	out, err = env.run(t, "", "--json", "meetings", "list")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestExtractFailureIsAnError(t *testing.T) {
	env := newCLIEnv(t, "nothing")
	_, err := env.run(t, "", "extract", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_structured_output")
}

func TestInvalidID(t *testing.T) {
	env := newCLIEnv(t, "[]")
	_, err := env.run(t, "", "summary", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}

func TestConfigInitWritesYAML(t *testing.T) {
	env := newCLIEnv(t, "[]")
	path := filepath.Join(env.home, "out", "config.yaml")

	_, err := env.run(t, "", "config", "init", "-o", path)
	require.NoError(t, err)
	_, err = env.run(t, "", "config", "init", "-o", path)
	require.Error(t, err)

	cfg, err := config.Load(config.WithConfigFile(path), config.WithHomeDir(func() (string, error) { return env.home, nil }))
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, env.db, cfg.Database.Path)
}

func TestVersionSkipsConfig(t *testing.T) {
	env := newCLIEnv(t, "[]")
	out, err := env.run(t, "", "--config", filepath.Join(env.home, "absent.yaml"), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fission "))
}

func TestParseID(t *testing.T) {
	id, err := parseID(" #42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-3", "x1"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[..........]", progressBar(0, 10))
	assert.Equal(t, "[#####.....]", progressBar(0.5, 10))
	assert.Equal(t, "[##########]", progressBar(2, 10))
}
