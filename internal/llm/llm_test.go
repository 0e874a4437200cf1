package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "fission/internal/errors"
	"fission/internal/jsonx"
	"fission/internal/observability"
)

var extractParams = CompletionParams{MaxTokens: 1024, Temperature: 0.6, TopP: 0.95, TopK: 20, MinP: 0}

func TestLlamaCppClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/completion", r.URL.Path)

		var raw map[string]any
		require.NoError(t, jsonx.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "PROMPT", raw["prompt"])
		assert.EqualValues(t, 1024, raw["n_predict"])
		assert.EqualValues(t, 0.6, raw["temperature"])
		assert.EqualValues(t, 0.95, raw["top_p"])
		assert.EqualValues(t, 20, raw["top_k"])
		// min_p must be sent even when zero so the server default is overridden.
		assert.Contains(t, raw, "min_p")
		assert.EqualValues(t, 0, raw["min_p"])
		assert.Equal(t, false, raw["stream"])

		_ = jsonx.NewEncoder(w).Encode(llamaCppResponse{
			Content:         `["Buy milk"]`,
			StoppedEOS:      true,
			TokensPredicted: 7,
			TokensEvaluated: 40,
		})
	}))
	defer server.Close()

	client, err := NewLlamaCppClient(Config{BaseURL: server.URL + "/v1/", Model: "qwen3"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), "PROMPT", extractParams)
	require.NoError(t, err)
	assert.Equal(t, `["Buy milk"]`, resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 7, resp.CompletionTokens)
	assert.Equal(t, 40, resp.PromptTokens)
	assert.Equal(t, "qwen3", client.Model())
}

func TestLlamaCppClientErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"loading model"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewLlamaCppClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "x", extractParams)
	require.Error(t, err)
	assert.True(t, fserrors.IsTransient(err))
	assert.Equal(t, http.StatusServiceUnavailable, fserrors.StatusCode(err))

	hc, ok := client.(HealthChecker)
	require.True(t, ok)
	require.Error(t, hc.Health(context.Background()))
}

func TestLlamaCppHealthOK(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client, err := NewLlamaCppClient(Config{BaseURL: server.URL})
	require.NoError(t, err)
	require.NoError(t, client.(HealthChecker).Health(context.Background()))
}

func TestOllamaClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, jsonx.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Raw)
		assert.False(t, req.Stream)
		assert.Equal(t, "qwen3:0.6b", req.Model)
		assert.EqualValues(t, 512, req.Options["num_predict"])
		assert.EqualValues(t, 20, req.Options["top_k"])

		_ = jsonx.NewEncoder(w).Encode(ollamaResponse{
			Response:        "hello",
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 5,
			EvalCount:       2,
		})
	}))
	defer server.Close()

	client, err := NewOllamaClient(Config{BaseURL: server.URL + "/api", Model: "qwen3:0.6b"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), "hi", CompletionParams{MaxTokens: 512, Temperature: 0.7, TopP: 0.8, TopK: 20})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
}

func TestOllamaRequiresModel(t *testing.T) {
	_, err := NewOllamaClient(Config{})
	require.Error(t, err)
}

func TestOllamaHealthChecksPulledModel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen3:latest"}]}`))
	}))
	defer server.Close()

	ok, err := NewOllamaClient(Config{BaseURL: server.URL, Model: "qwen3"})
	require.NoError(t, err)
	require.NoError(t, ok.(HealthChecker).Health(context.Background()))

	missing, err := NewOllamaClient(Config{BaseURL: server.URL, Model: "llama3"})
	require.NoError(t, err)
	require.Error(t, missing.(HealthChecker).Health(context.Background()))
}

func TestMockClientSequence(t *testing.T) {
	mock := NewMockClient("first", "second")
	ctx := context.Background()

	r1, err := mock.Complete(ctx, "a", CompletionParams{})
	require.NoError(t, err)
	r2, err := mock.Complete(ctx, "b", CompletionParams{})
	require.NoError(t, err)
	r3, err := mock.Complete(ctx, "c", CompletionParams{})
	require.NoError(t, err)

	assert.Equal(t, "first", r1.Text)
	assert.Equal(t, "second", r2.Text)
	assert.Equal(t, "second", r3.Text)
	require.Len(t, mock.Calls(), 3)
	assert.Equal(t, "b", mock.Calls()[1].Prompt)
}

func TestMockClientErrorAndCancel(t *testing.T) {
	mock := &MockClient{Err: errors.New("engine down")}
	_, err := mock.Complete(context.Background(), "x", CompletionParams{})
	require.EqualError(t, err, "engine down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMockClient("ok").Complete(ctx, "x", CompletionParams{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFactory(t *testing.T) {
	client, err := NewClient(Config{Provider: "mock", MockResponse: "[]", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", client.Model())

	client, err = NewClient(Config{Provider: "llamacpp"})
	require.NoError(t, err)
	assert.Equal(t, "llama.cpp", client.Model())

	_, err = NewClient(Config{Provider: "openai"})
	require.Error(t, err)
}

func TestInstrumentedClientRecordsLatency(t *testing.T) {
	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = metrics.Shutdown(context.Background()) })

	inner := NewMockClient("done")
	inner.Handler = func(ctx context.Context, prompt string, params CompletionParams) (string, error) {
		time.Sleep(time.Millisecond)
		return "done", nil
	}
	client := NewInstrumentedClient(inner, Observability{Metrics: metrics, Tracer: observability.NoopTracer()})

	resp, err := client.Complete(WithOperation(context.Background(), "summarize"), "p", CompletionParams{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, "mock", client.Model())
	require.NoError(t, client.(HealthChecker).Health(context.Background()))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `operation="summarize"`)
}

func TestOperationFromContextDefault(t *testing.T) {
	assert.Equal(t, "complete", OperationFromContext(context.Background()))
	assert.Equal(t, "extract", OperationFromContext(WithOperation(context.Background(), "extract")))
}
