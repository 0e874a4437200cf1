// Package summary writes a short meeting summary with the local model and
// falls back to a plain task list whenever the model cannot help.
package summary

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"fission/internal/llm"
	"fission/internal/logging"
	"fission/internal/observability"
	"fission/internal/prompts"
)

// Source records which branch produced a summary.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// ErrEmptySummary is recorded when the model produced only reasoning.
var ErrEmptySummary = errors.New("summary: model returned no text after cleanup")

// Params are the sampling settings for summaries; no reasoning directive is
// sent so a smaller budget suffices.
var Params = llm.CompletionParams{
	MaxTokens:   512,
	Temperature: 0.7,
	TopP:        0.8,
	TopK:        20,
	MinP:        0,
}

// Result always carries usable text. Err holds the cause when Source is
// fallback and a failure forced it.
type Result struct {
	Text   string
	Source Source
	Err    error
}

// Engine hands out the inference client; *engine.Handle implements it.
type Engine interface {
	Acquire(ctx context.Context) (llm.Client, error)
}

// Summarizer runs the summary pipeline.
type Summarizer struct {
	engine  Engine
	loader  *prompts.Loader
	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
}

// Option configures a Summarizer.
type Option func(*Summarizer)

func WithLogger(logger logging.Logger) Option {
	return func(s *Summarizer) { s.logger = logging.OrNop(logger) }
}

func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(s *Summarizer) { s.metrics = metrics }
}

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(s *Summarizer) { s.tracer = tracer }
}

// New returns a Summarizer using the embedded summary prompt.
func New(engine Engine, opts ...Option) (*Summarizer, error) {
	if engine == nil {
		return nil, errors.New("summary: engine is required")
	}
	loader, err := prompts.Default()
	if err != nil {
		return nil, err
	}
	if _, err := loader.Get(prompts.SummarizeMeeting); err != nil {
		return nil, err
	}

	s := &Summarizer{
		engine: engine,
		loader: loader,
		logger: logging.NewComponentLogger("summary"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Prompt returns the exact prompt sent for the given meeting.
func (s *Summarizer) Prompt(title string, tasks []string, style Style) (string, error) {
	system, err := s.loader.Render(prompts.SummarizeMeeting, map[string]string{"style": style.Clause()})
	if err != nil {
		return "", err
	}
	return prompts.ChatML(system, Fallback(title, tasks), false), nil
}

// GenerateSummary never fails: any engine problem, or a reply that is empty
// once reasoning is stripped, yields the Fallback text.
func (s *Summarizer) GenerateSummary(ctx context.Context, title string, tasks []string, style Style) (result Result) {
	if !style.Valid() {
		style = StyleFormal
	}
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanGenerateSummary,
		attribute.String(observability.AttrStyle, string(style)),
		attribute.Int("fission.summary.tasks", len(tasks)),
	)
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String(observability.AttrSource, string(result.Source)))
		observability.EndSpan(span, result.Err)
		s.metrics.RecordSummary(ctx, string(result.Source))
		if result.Err != nil {
			s.logger.Warn("summary fell back after %s: %v", time.Since(start).Round(time.Millisecond), result.Err)
		} else {
			s.logger.Info("summary (%s) generated in %s", style, time.Since(start).Round(time.Millisecond))
		}
	}()

	fallback := func(err error) Result {
		return Result{Text: Fallback(title, tasks), Source: SourceFallback, Err: err}
	}

	client, err := s.engine.Acquire(ctx)
	if err != nil {
		return fallback(fmt.Errorf("acquire engine: %w", err))
	}

	prompt, err := s.Prompt(title, tasks, style)
	if err != nil {
		return fallback(err)
	}

	raw, err := complete(llm.WithOperation(ctx, "summarize"), client, prompt)
	if err != nil {
		return fallback(fmt.Errorf("complete: %w", err))
	}

	text := StripReasoning(raw)
	if text == "" {
		return fallback(ErrEmptySummary)
	}
	return Result{Text: text, Source: SourceModel}
}

// Fallback renders the deterministic summary: a title line followed by one
// bullet per task.
func Fallback(title string, tasks []string) string {
	var b strings.Builder
	b.WriteString("Meeting: ")
	b.WriteString(title)
	b.WriteString("\n\nTasks:")
	for _, task := range tasks {
		b.WriteString("\n- ")
		b.WriteString(task)
	}
	return b.String()
}

var (
	reasoningBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	reasoningOpen  = regexp.MustCompile(`(?is)<think>.*`)
	reasoningClose = regexp.MustCompile(`(?i)</think>`)
)

// StripReasoning removes <think>...</think> blocks (any case, spanning
// lines), an unterminated <think> through end of text, and stray closing
// markers, then trims surrounding whitespace.
func StripReasoning(text string) string {
	text = reasoningBlock.ReplaceAllString(text, "")
	text = reasoningOpen.ReplaceAllString(text, "")
	text = reasoningClose.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func complete(ctx context.Context, client llm.Client, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panicked: %v", r)
		}
	}()
	resp, err := client.Complete(ctx, prompt, Params)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty completion")
	}
	return resp.Text, nil
}
