package llm

import (
	"context"
	"sync"
)

// MockCall records one Complete invocation.
type MockCall struct {
	Prompt string
	Params CompletionParams
}

// MockClient is a scripted Client for tests and the "mock" provider.
//
// Responses are returned in order; once exhausted the last one repeats.
// Handler, when set, takes precedence over Responses.
type MockClient struct {
	ModelName string
	Responses []string
	Err       error
	Handler   func(ctx context.Context, prompt string, params CompletionParams) (string, error)

	mu    sync.Mutex
	calls []MockCall
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a MockClient answering with responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{ModelName: "mock", Responses: responses}
}

func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

func (m *MockClient) Complete(ctx context.Context, prompt string, params CompletionParams) (*Completion, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, MockCall{Prompt: prompt, Params: params})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Handler != nil {
		text, err := m.Handler(ctx, prompt, params)
		if err != nil {
			return nil, err
		}
		return &Completion{Text: text, StopReason: "stop"}, nil
	}
	if m.Err != nil {
		return nil, m.Err
	}

	text := ""
	if n := len(m.Responses); n > 0 {
		if idx >= n {
			idx = n - 1
		}
		text = m.Responses[idx]
	}
	return &Completion{Text: text, StopReason: "stop"}, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
