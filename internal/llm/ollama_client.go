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

var (
	_ Client        = (*ollamaClient)(nil)
	_ HealthChecker = (*ollamaClient)(nil)
)

// ollamaClient sends raw prompts to Ollama's /api/generate so the ChatML
// template built by this module reaches the model unmodified.
type ollamaClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Raw     bool           `json:"raw"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// NewOllamaClient returns a client for an Ollama server.
func NewOllamaClient(config Config) (Client, error) {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		return nil, fmt.Errorf("ollama requires llm.model")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/api")

	logger := logging.NewComponentLogger("ollama-client")
	return &ollamaClient{
		model:      model,
		baseURL:    baseURL,
		httpClient: httpclient.New(config.Timeout, logger),
		logger:     logger,
	}, nil
}

func (c *ollamaClient) Model() string {
	return c.model
}

func (c *ollamaClient) Complete(ctx context.Context, prompt string, params CompletionParams) (*Completion, error) {
	options := map[string]any{
		"num_predict": params.MaxTokens,
		"temperature": params.Temperature,
		"top_p":       params.TopP,
		"top_k":       params.TopK,
		"min_p":       params.MinP,
	}
	if len(params.Stop) > 0 {
		options["stop"] = append([]string(nil), params.Stop...)
	}

	body, err := jsonx.Marshal(ollamaRequest{
		Model:   c.model,
		Prompt:  prompt,
		Raw:     true,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fserrors.FromHTTPStatus("ollama", resp.StatusCode, httpclient.ErrorBody(resp.Body, maxErrorBodyBytes))
	}

	raw, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	var out ollamaResponse
	if err := jsonx.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", out.Error)
	}

	stopReason := out.DoneReason
	if stopReason == "" {
		stopReason = "unknown"
	}
	c.logger.Debug("completion done: eval=%d prompt_eval=%d", out.EvalCount, out.PromptEvalCount)

	return &Completion{
		Text:             out.Response,
		StopReason:       stopReason,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		Duration:         time.Since(start),
	}, nil
}

// Health checks that the server answers and lists c.model among local models.
func (c *ollamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fserrors.FromHTTPStatus("ollama", resp.StatusCode, httpclient.ErrorBody(resp.Body, maxErrorBodyBytes))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := jsonx.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode ollama tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q not pulled (run: ollama pull %s)", c.model, c.model)
}
