// Package extraction turns a transcript into a list of action items using
// the local model.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"fission/internal/llm"
	"fission/internal/logging"
	"fission/internal/observability"
	"fission/internal/prompts"
)

// Status classifies an extraction outcome.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusNoStructuredOutput Status = "no_structured_output"
	StatusEngineFault        Status = "engine_fault"
)

// ErrNoStructuredOutput is the cause recorded when neither parse stage
// finds a JSON array.
var ErrNoStructuredOutput = errors.New("extraction: no JSON array in model output")

// Params are the sampling settings for extraction. The budget leaves room
// for the reasoning block that precedes the answer.
var Params = llm.CompletionParams{
	MaxTokens:   1024,
	Temperature: 0.6,
	TopP:        0.95,
	TopK:        20,
	MinP:        0,
}

// Result is the outcome of one extraction. Items is non-nil only on success.
type Result struct {
	Status Status
	Items  []string
	Err    error
	// Raw is the unparsed model output, kept for diagnostics.
	Raw string
}

// OK reports whether items were extracted.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Engine hands out the inference client; *engine.Handle implements it.
type Engine interface {
	Acquire(ctx context.Context) (llm.Client, error)
}

// Extractor runs the extraction pipeline. It keeps no state between calls.
type Extractor struct {
	engine  Engine
	system  string
	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithLogger(logger logging.Logger) Option {
	return func(e *Extractor) { e.logger = logging.OrNop(logger) }
}

func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(e *Extractor) { e.metrics = metrics }
}

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(e *Extractor) { e.tracer = tracer }
}

// New returns an Extractor using the embedded instruction prompt.
func New(engine Engine, opts ...Option) (*Extractor, error) {
	if engine == nil {
		return nil, errors.New("extraction: engine is required")
	}
	loader, err := prompts.Default()
	if err != nil {
		return nil, err
	}
	tmpl, err := loader.Get(prompts.ExtractActionItems)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		engine: engine,
		system: tmpl.Content,
		logger: logging.NewComponentLogger("extraction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Prompt returns the exact prompt sent for transcript.
func (e *Extractor) Prompt(transcript string) string {
	return prompts.ChatML(e.system, transcript, true)
}

// ExtractItems asks the model for action items in transcript. Every failure
// is reported through Result; the transcript is forwarded even when empty
// and nothing is retried.
func (e *Extractor) ExtractItems(ctx context.Context, transcript string) (result Result) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanExtractItems,
		attribute.Int("fission.transcript.length", len(transcript)))
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.String(observability.AttrStatus, string(result.Status)),
			attribute.Int("fission.extraction.items", len(result.Items)),
		)
		observability.EndSpan(span, result.Err)
		e.metrics.RecordExtraction(ctx, string(result.Status))
		e.logger.Info("extraction %s: %d items in %s", result.Status, len(result.Items), time.Since(start).Round(time.Millisecond))
	}()

	client, err := e.engine.Acquire(ctx)
	if err != nil {
		return Result{Status: StatusEngineFault, Err: fmt.Errorf("acquire engine: %w", err)}
	}

	text, err := complete(llm.WithOperation(ctx, "extract"), client, e.Prompt(transcript))
	if err != nil {
		return Result{Status: StatusEngineFault, Err: fmt.Errorf("complete: %w", err)}
	}

	items, ok := ParseItems(text)
	if !ok {
		e.logger.Warn("no JSON array in %d chars of output", len(text))
		return Result{Status: StatusNoStructuredOutput, Err: ErrNoStructuredOutput, Raw: text}
	}
	return Result{Status: StatusSuccess, Items: items, Raw: text}
}

// complete converts a panicking client into an engine fault.
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
