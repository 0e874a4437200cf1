package llm

import (
	"context"
	"time"
)

// CompletionParams are the sampling settings for one raw-prompt completion.
// Every field is sent to the backend as-is; zero values are meaningful
// (MinP 0 disables min-p filtering).
type CompletionParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
	MinP        float64
	Stop        []string
}

// Completion is the text a backend produced for a prompt.
type Completion struct {
	Text             string
	StopReason       string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Client completes a fully formatted prompt. Implementations are safe for
// concurrent use but callers in this module serialize calls per engine.
type Client interface {
	Complete(ctx context.Context, prompt string, params CompletionParams) (*Completion, error)
	Model() string
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config describes how to reach an inference backend.
type Config struct {
	Provider     string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	MockResponse string
}

type operationKey struct{}

// WithOperation tags ctx with the pipeline stage issuing a completion
// ("extract", "summarize") for metrics and logs.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

// OperationFromContext returns the stage set by WithOperation, or "complete".
func OperationFromContext(ctx context.Context) string {
	if ctx == nil {
		return "complete"
	}
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "complete"
}
