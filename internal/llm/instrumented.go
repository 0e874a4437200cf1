package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"fission/internal/logging"
	"fission/internal/observability"
)

// Observability bundles the sinks an instrumented client reports to. Any
// field may be nil.
type Observability struct {
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
	Logger  logging.Logger
}

type instrumentedClient struct {
	inner Client
	obs   Observability
}

// NewInstrumentedClient wraps client so every completion is timed, traced and logged.
func NewInstrumentedClient(client Client, obs Observability) Client {
	if client == nil {
		return nil
	}
	obs.Logger = logging.OrNop(obs.Logger)
	return &instrumentedClient{inner: client, obs: obs}
}

func (c *instrumentedClient) Model() string {
	return c.inner.Model()
}

func (c *instrumentedClient) Complete(ctx context.Context, prompt string, params CompletionParams) (*Completion, error) {
	operation := OperationFromContext(ctx)
	ctx, span := c.obs.Tracer.StartSpan(ctx, observability.SpanLLMComplete,
		attribute.String(observability.AttrModel, c.inner.Model()),
		attribute.String("fission.llm.operation", operation),
		attribute.Int("fission.llm.max_tokens", params.MaxTokens),
	)

	start := time.Now()
	resp, err := c.inner.Complete(ctx, prompt, params)
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		c.obs.Logger.Warn("%s completion failed after %s: %v", operation, latency.Round(time.Millisecond), err)
	} else {
		span.SetAttributes(attribute.Int("fission.llm.completion_tokens", resp.CompletionTokens))
		c.obs.Logger.Debug("%s completion: %d chars in %s (stop=%s)", operation, len(resp.Text), latency.Round(time.Millisecond), resp.StopReason)
	}
	c.obs.Metrics.RecordCompletion(ctx, c.inner.Model(), operation, status, latency)
	observability.EndSpan(span, err)
	return resp, err
}

// Health forwards to the wrapped client when it supports probing.
func (c *instrumentedClient) Health(ctx context.Context) error {
	if hc, ok := c.inner.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}
