package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fission/internal/engine"
	"fission/internal/llm"
	"fission/internal/logging"
)

const wantSystem = `You are a helpful assistant. Extract actionable tasks from the user's text. Return them as a JSON list of strings. Example: ["Buy milk", "Call John"]. Only return the JSON.`

func TestParseItems(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		want  []string
		found bool
	}{
		{name: "plain array", text: `["Buy milk", "Call John"]`, want: []string{"Buy milk", "Call John"}, found: true},
		{name: "surrounding prose", text: "Sure!\n[\"Email Sam\"]\nDone.", want: []string{"Email Sam"}, found: true},
		{name: "empty array", text: "[]", want: []string{}, found: true},
		{name: "stage b recovers", text: `thinking [a] more ["x","y"]`, want: []string{"x", "y"}, found: true},
		{name: "reasoning with brackets", text: "<think>maybe [\"draft\"] or [notes]</think>\n[\"Book room\"]", want: []string{"Book room"}, found: true},
		{name: "two valid arrays", text: `["a"] and then ["b"]`, want: []string{"b"}, found: true},
		{name: "no brackets", text: "I could not find any tasks.", found: false},
		{name: "reversed brackets", text: "] nothing [", found: false},
		{name: "only open bracket", text: `["unterminated`, found: false},
		{name: "both stages invalid", text: "[a] and [b]", found: false},
		{name: "object not array", text: `{"tasks": "none"}`, found: false},
		{name: "non string elements", text: `[1, {"a": 2}, null, "x", true]`, want: []string{"1", `{"a":2}`, "x", "true"}, found: true},
		{name: "nested array", text: `[["a"], "b"]`, want: []string{`["a"]`, "b"}, found: true},
		{name: "escaped quotes", text: `["Say \"hi\" to Ann"]`, want: []string{`Say "hi" to Ann`}, found: true},
		{name: "empty text", text: "", found: false},
		{name: "bare minus", text: "Checklist: [-]", found: false},
		{name: "raw newline in string", text: "[\"Buy milk\nand eggs\"]", found: false},
		{name: "leading zero", text: "[01]", found: false},
		{name: "object missing value", text: `[{"a"}]`, found: false},
		{name: "nested trailing comma", text: `[[1,]]`, found: false},
		{name: "bare fraction point", text: "[1.]", found: false},
		{name: "trailing comma", text: `["a",]`, found: false},
		{name: "escaped newline is fine", text: `["Buy milk\nand eggs"]`, want: []string{"Buy milk\nand eggs"}, found: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseItems(tc.text)
			require.Equal(t, tc.found, ok)
			if tc.found {
				assert.Equal(t, tc.want, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestSpans(t *testing.T) {
	span, ok := GreedySpan(`x [1] y [2] z`)
	require.True(t, ok)
	assert.Equal(t, `[1] y [2]`, span)

	span, ok = LastBlockSpan(`x [1] y [2] z`)
	require.True(t, ok)
	assert.Equal(t, `[2]`, span)

	span, ok = LastBlockSpan(`[outer [inner] tail]`)
	require.True(t, ok)
	assert.Equal(t, `[inner] tail]`, span)

	_, ok = GreedySpan("]  [")
	assert.False(t, ok)
	_, ok = LastBlockSpan("no close [")
	assert.False(t, ok)
	_, ok = LastBlockSpan("close only ]")
	assert.False(t, ok)
}

func newExtractor(t *testing.T, h Engine) *Extractor {
	t.Helper()
	e, err := New(h, WithLogger(logging.Nop()))
	require.NoError(t, err)
	return e
}

func TestExtractItemsSuccessSendsExactPrompt(t *testing.T) {
	mock := llm.NewMockClient("<think>ok</think>\n[\"Buy milk\", \"Call John\"]")
	e := newExtractor(t, engine.FromClient(mock))

	res := e.ExtractItems(context.Background(), "buy milk and call john")
	require.True(t, res.OK())
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"Buy milk", "Call John"}, res.Items)
	assert.NoError(t, res.Err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	want := "<|im_start|>system\n" + wantSystem + "\n<|im_end|>\n" +
		"<|im_start|>user\nbuy milk and call john\n<|im_end|>\n" +
		"<|im_start|>assistant\n/think\n"
	assert.Equal(t, want, calls[0].Prompt)
	assert.Equal(t, llm.CompletionParams{MaxTokens: 1024, Temperature: 0.6, TopP: 0.95, TopK: 20, MinP: 0}, calls[0].Params)
}

func TestExtractItemsNoStructuredOutput(t *testing.T) {
	mock := llm.NewMockClient("There are no tasks here.")
	e := newExtractor(t, engine.FromClient(mock))

	res := e.ExtractItems(context.Background(), "nice weather today")
	assert.Equal(t, StatusNoStructuredOutput, res.Status)
	assert.Nil(t, res.Items)
	assert.ErrorIs(t, res.Err, ErrNoStructuredOutput)
	assert.Equal(t, "There are no tasks here.", res.Raw)
}

func TestExtractItemsCompletionFault(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("inference crashed")}
	e := newExtractor(t, engine.FromClient(mock))

	res := e.ExtractItems(context.Background(), "anything")
	assert.Equal(t, StatusEngineFault, res.Status)
	assert.Nil(t, res.Items)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "inference crashed")
}

func TestExtractItemsAcquireFaultSkipsCompletion(t *testing.T) {
	var initCalls int
	h := engine.NewHandle(func(context.Context) (llm.Client, error) {
		initCalls++
		return nil, errors.New("weights missing")
	}, engine.WithLogger(logging.Nop()))
	e := newExtractor(t, h)

	res := e.ExtractItems(context.Background(), "anything")
	assert.Equal(t, StatusEngineFault, res.Status)
	assert.Contains(t, res.Err.Error(), "weights missing")
	assert.Equal(t, 1, initCalls, "no retry inside the pipeline")
}

func TestExtractItemsPanickingClient(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Handler = func(context.Context, string, llm.CompletionParams) (string, error) {
		panic("native crash")
	}
	e := newExtractor(t, engine.FromClient(mock))

	res := e.ExtractItems(context.Background(), "x")
	assert.Equal(t, StatusEngineFault, res.Status)
	assert.Contains(t, res.Err.Error(), "native crash")
}

func TestExtractItemsForwardsEmptyTranscript(t *testing.T) {
	mock := llm.NewMockClient("[]")
	e := newExtractor(t, engine.FromClient(mock))

	res := e.ExtractItems(context.Background(), "")
	require.True(t, res.OK())
	assert.Empty(t, res.Items)
	require.Len(t, mock.Calls(), 1)
	assert.Contains(t, mock.Calls()[0].Prompt, "<|im_start|>user\n\n<|im_end|>")
}

func TestExtractItemsIsDeterministicForFixedOutput(t *testing.T) {
	mock := llm.NewMockClient(`reasoning [draft] final ["Ship it"]`)
	e := newExtractor(t, engine.FromClient(mock))

	first := e.ExtractItems(context.Background(), "ship it")
	second := e.ExtractItems(context.Background(), "ship it")
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"Ship it"}, first.Items)
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
