package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	fserrors "fission/internal/errors"
	"fission/internal/httpclient"
	"fission/internal/jsonx"
	"fission/internal/logging"
)

const defaultLlamaCppBaseURL = "http://127.0.0.1:8082"

const (
	maxResponseBytes  = 8 << 20
	maxErrorBodyBytes = 4096
)

var (
	_ Client        = (*llamaCppClient)(nil)
	_ HealthChecker = (*llamaCppClient)(nil)
)

// llamaCppClient speaks llama-server's native /completion endpoint, which
// takes a raw prompt and exposes top_k and min_p directly.
type llamaCppClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

type llamaCppRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	TopK        int      `json:"top_k"`
	MinP        float64  `json:"min_p"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
	CachePrompt bool     `json:"cache_prompt"`
}

type llamaCppResponse struct {
	Content         string `json:"content"`
	Model           string `json:"model"`
	Stop            bool   `json:"stop"`
	StoppedEOS      bool   `json:"stopped_eos"`
	StoppedLimit    bool   `json:"stopped_limit"`
	StoppedWord     bool   `json:"stopped_word"`
	TokensPredicted int    `json:"tokens_predicted"`
	TokensEvaluated int    `json:"tokens_evaluated"`
}

// NewLlamaCppClient returns a client for a running llama-server.
func NewLlamaCppClient(config Config) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultLlamaCppBaseURL
	}
	// The OpenAI-compatible prefix is not used by the native endpoints.
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "llama.cpp"
	}

	logger := logging.NewComponentLogger("llama.cpp")
	return &llamaCppClient{
		model:      model,
		baseURL:    baseURL,
		httpClient: httpclient.New(config.Timeout, logger),
		logger:     logger,
	}, nil
}

func (c *llamaCppClient) Model() string {
	return c.model
}

func (c *llamaCppClient) Complete(ctx context.Context, prompt string, params CompletionParams) (*Completion, error) {
	body, err := jsonx.Marshal(llamaCppRequest{
		Prompt:      prompt,
		NPredict:    params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		MinP:        params.MinP,
		Stop:        params.Stop,
		Stream:      false,
		CachePrompt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal llama.cpp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llama.cpp request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fserrors.FromHTTPStatus("llama.cpp", resp.StatusCode, httpclient.ErrorBody(resp.Body, maxErrorBodyBytes))
	}

	raw, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read llama.cpp response: %w", err)
	}
	var out llamaCppResponse
	if err := jsonx.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode llama.cpp response: %w", err)
	}

	c.logger.Debug("completion done: predicted=%d evaluated=%d", out.TokensPredicted, out.TokensEvaluated)

	return &Completion{
		Text:             out.Content,
		StopReason:       llamaStopReason(out),
		PromptTokens:     out.TokensEvaluated,
		CompletionTokens: out.TokensPredicted,
		Duration:         time.Since(start),
	}, nil
}

// Health reports nil once llama-server has loaded its model. The server
// answers 503 while loading.
func (c *llamaCppClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llama.cpp health: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fserrors.FromHTTPStatus("llama.cpp", resp.StatusCode, httpclient.ErrorBody(resp.Body, maxErrorBodyBytes))
	}
	return nil
}

func llamaStopReason(out llamaCppResponse) string {
	switch {
	case out.StoppedLimit:
		return "length"
	case out.StoppedWord:
		return "stop_word"
	case out.StoppedEOS || out.Stop:
		return "stop"
	default:
		return "unknown"
	}
}
