package llm

import (
	"fmt"
	"strings"
)

// NewClient builds the client for config.Provider.
func NewClient(config Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", "llama.cpp", "llamacpp", "llama-cpp":
		return NewLlamaCppClient(config)
	case "ollama":
		return NewOllamaClient(config)
	case "mock":
		mock := NewMockClient(config.MockResponse)
		if config.Model != "" {
			mock.ModelName = config.Model
		}
		return mock, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", config.Provider)
	}
}
