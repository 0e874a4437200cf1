package mcp

import (
	"context"
	"path/filepath"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fission/internal/engine"
	"fission/internal/extraction"
	"fission/internal/jsonx"
	"fission/internal/llm"
	"fission/internal/logging"
	"fission/internal/notes"
	"fission/internal/store"
	"fission/internal/summary"
)

func newTestServer(t *testing.T, responses ...string) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "fission.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := engine.FromClient(llm.NewMockClient(responses...))
	ex, err := extraction.New(h, extraction.WithLogger(logging.Nop()))
	require.NoError(t, err)
	sm, err := summary.New(h, summary.WithLogger(logging.Nop()))
	require.NoError(t, err)
	svc, err := notes.NewService(notes.Deps{Store: st, Extractor: ex, Summarizer: sm, Logger: logging.Nop()})
	require.NoError(t, err)

	srv, err := NewServer(svc, "test", logging.Nop())
	require.NoError(t, err)
	return srv
}

func text(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestToolNames(t *testing.T) {
	srv := newTestServer(t, "[]")
	assert.Equal(t, []string{
		"list_meetings", "list_tasks", "record_meeting", "extract_action_items", "summarize_meeting",
	}, srv.ToolNames())
	assert.NotNil(t, srv.MCP())
}

func TestRecordListAndSummarize(t *testing.T) {
	srv := newTestServer(t, `["Buy milk"]`, "<think>hm</think>Milk run planned.")
	ctx := context.Background()

	res, err := srv.Call(ctx, "record_meeting", map[string]any{"title": "Errands", "transcript": "get milk"})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var outcome notes.RecordingOutcome
	require.NoError(t, jsonx.Unmarshal([]byte(text(t, res)), &outcome))
	assert.Equal(t, extraction.StatusSuccess, outcome.Status)
	id := float64(outcome.Meeting.ID)

	res, err = srv.Call(ctx, "list_meetings", nil)
	require.NoError(t, err)
	var meetings []store.Meeting
	require.NoError(t, jsonx.Unmarshal([]byte(text(t, res)), &meetings))
	require.Len(t, meetings, 1)
	assert.Equal(t, "Errands", meetings[0].Title)

	res, err = srv.Call(ctx, "list_tasks", map[string]any{"meeting_id": id})
	require.NoError(t, err)
	var tasks []store.Task
	require.NoError(t, jsonx.Unmarshal([]byte(text(t, res)), &tasks))
	assert.Equal(t, []string{"Buy milk"}, store.Contents(tasks))

	res, err = srv.Call(ctx, "summarize_meeting", map[string]any{"meeting_id": id, "style": string(summary.StyleSimple)})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Milk run planned.", text(t, res))
}

func TestExtractActionItemsTool(t *testing.T) {
	srv := newTestServer(t, `["Call John"]`)
	res, err := srv.Call(context.Background(), "extract_action_items", map[string]any{"transcript": "call john"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `["Call John"]`, text(t, res))
}

func TestExtractActionItemsToolReportsFailure(t *testing.T) {
	srv := newTestServer(t, "no json here")
	res, err := srv.Call(context.Background(), "extract_action_items", map[string]any{"transcript": "x"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "no_structured_output")
}

func TestToolArgumentErrors(t *testing.T) {
	srv := newTestServer(t, "[]")
	ctx := context.Background()

	res, err := srv.Call(ctx, "record_meeting", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = srv.Call(ctx, "record_meeting", map[string]any{"title": "   "})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "title required")

	res, err = srv.Call(ctx, "list_tasks", map[string]any{"meeting_id": 1.5})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = srv.Call(ctx, "summarize_meeting", map[string]any{"meeting_id": float64(42)})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not found")

	_, err = srv.Call(ctx, "nope", nil)
	assert.Error(t, err)
}
