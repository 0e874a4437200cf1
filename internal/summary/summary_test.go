package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fission/internal/engine"
	"fission/internal/llm"
	"fission/internal/logging"
)

func newSummarizer(t *testing.T, h Engine) *Summarizer {
	t.Helper()
	s, err := New(h, WithLogger(logging.Nop()))
	require.NoError(t, err)
	return s
}

func TestFallbackFormatIsExact(t *testing.T) {
	assert.Equal(t, "Meeting: Standup\n\nTasks:\n- Fix login\n- Email Sam", Fallback("Standup", []string{"Fix login", "Email Sam"}))
	assert.Equal(t, "Meeting: Empty\n\nTasks:", Fallback("Empty", nil))
}

func TestStripReasoning(t *testing.T) {
	cases := map[string]string{
		"<think>plan</think>Hello":                     "Hello",
		"<THINK>\nmulti\nline\n</Think>\n\n  Result  ": "Result",
		"A<think>x</think>B<think>y</think>C":          "ABC",
		"Answer first\n<think>never closed":            "Answer first",
		"stray</think> closing":                        "stray closing",
		"no markers":                                   "no markers",
		"<think>only reasoning</think>":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripReasoning(in), in)
	}
}

func TestParseStyle(t *testing.T) {
	assert.Equal(t, StyleCasual, ParseStyle(" Casual "))
	assert.Equal(t, StyleFriend, ParseStyle("friend"))
	assert.Equal(t, StyleSimple, ParseStyle("SIMPLE"))
	assert.Equal(t, StyleFormal, ParseStyle("pirate"))
	assert.Equal(t, StyleFormal, ParseStyle(""))
	assert.Equal(t, "very informal, emoji/slang", StyleFriend.Clause())
	assert.Equal(t, "concise, professional", Style("bogus").Clause())
	assert.Len(t, Styles(), 4)
}

func TestGenerateSummaryFromModel(t *testing.T) {
	mock := llm.NewMockClient("<think>\nThe user wants a summary.\n</think>\n\nWe planned the launch.")
	s := newSummarizer(t, engine.FromClient(mock))

	res := s.GenerateSummary(context.Background(), "Launch", []string{"Ship v1"}, StyleCasual)
	assert.Equal(t, SourceModel, res.Source)
	assert.Equal(t, "We planned the launch.", res.Text)
	assert.NoError(t, res.Err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Prompt
	assert.Contains(t, prompt, "relaxed, blog-like")
	assert.Contains(t, prompt, "Meeting: Launch\n\nTasks:\n- Ship v1")
	assert.True(t, strings.HasSuffix(prompt, "<|im_start|>assistant\n"))
	assert.NotContains(t, prompt, "/think")
	assert.Equal(t, llm.CompletionParams{MaxTokens: 512, Temperature: 0.7, TopP: 0.8, TopK: 20, MinP: 0}, calls[0].Params)
}

func TestGenerateSummaryFallsBackOnCompletionError(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("boom")}
	s := newSummarizer(t, engine.FromClient(mock))

	res := s.GenerateSummary(context.Background(), "Retro", []string{"Keep doing demos"}, StyleFormal)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "Meeting: Retro\n\nTasks:\n- Keep doing demos", res.Text)
	require.Error(t, res.Err)
}

func TestGenerateSummaryFallsBackWhenEngineUnavailable(t *testing.T) {
	h := engine.NewHandle(func(context.Context) (llm.Client, error) {
		return nil, errors.New("no weights")
	}, engine.WithLogger(logging.Nop()))
	s := newSummarizer(t, h)

	res := s.GenerateSummary(context.Background(), "Sync", nil, StyleSimple)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "Meeting: Sync\n\nTasks:", res.Text)
	assert.Contains(t, res.Err.Error(), "no weights")
}

func TestGenerateSummaryFallsBackOnReasoningOnly(t *testing.T) {
	mock := llm.NewMockClient("<think>I am still thinking about")
	s := newSummarizer(t, engine.FromClient(mock))

	res := s.GenerateSummary(context.Background(), "Plan", []string{"A"}, StyleFriend)
	assert.Equal(t, SourceFallback, res.Source)
	assert.ErrorIs(t, res.Err, ErrEmptySummary)
	assert.Equal(t, Fallback("Plan", []string{"A"}), res.Text)
}

func TestGenerateSummaryUnknownStyleUsesFormal(t *testing.T) {
	mock := llm.NewMockClient("ok")
	s := newSummarizer(t, engine.FromClient(mock))

	res := s.GenerateSummary(context.Background(), "T", nil, Style("yelling"))
	assert.Equal(t, "ok", res.Text)
	assert.Contains(t, mock.Calls()[0].Prompt, "concise, professional")
}
