package config

import (
	"time"

	"fission/internal/observability"
)

// Defaults mirror the mobile build: a Qwen3 0.6B GGUF served by llama.cpp
// with a 2048 token context and four threads.
const (
	DefaultModelRepo     = "unsloth/Qwen3-0.6B-GGUF"
	DefaultModelFile     = "Qwen3-0.6B-Q5_K_M.gguf"
	DefaultModelRevision = "main"
	DefaultModelsDir     = "~/.fission/models"
	DefaultDatabasePath  = "~/.fission/fission.db"
	DefaultHFBaseURL     = "https://huggingface.co"
	DefaultLLMProvider   = "llama.cpp"
	DefaultLLMBaseURL    = "http://127.0.0.1:8082"
	DefaultServerBinary  = "llama-server"
	DefaultContextSize   = 2048
	DefaultThreads       = 4
	DefaultLLMTimeout    = 0
	DefaultServerHost    = "127.0.0.1"
	DefaultServerPort    = 8787
	DefaultCacheSize     = 64
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Summary  SummaryConfig  `mapstructure:"summary" yaml:"summary"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ModelConfig locates the weights file and where it can be fetched from.
type ModelConfig struct {
	Repo       string `mapstructure:"repo" yaml:"repo"`
	File       string `mapstructure:"file" yaml:"file"`
	Revision   string `mapstructure:"revision" yaml:"revision"`
	SHA256     string `mapstructure:"sha256" yaml:"sha256,omitempty"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	BundlePath string `mapstructure:"bundle_path" yaml:"bundle_path,omitempty"`
	HFBaseURL  string `mapstructure:"hf_base_url" yaml:"hf_base_url"`
	HFToken    string `mapstructure:"hf_token" yaml:"-" json:"-"`
}

// LLMConfig selects the inference provider.
type LLMConfig struct {
	Provider       string `mapstructure:"provider" yaml:"provider"`
	Model          string `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Autostart      bool   `mapstructure:"autostart" yaml:"autostart"`
	ServerBinary   string `mapstructure:"server_binary" yaml:"server_binary"`
	ContextSize    int    `mapstructure:"context_size" yaml:"context_size"`
	Threads        int    `mapstructure:"threads" yaml:"threads"`
	// MockResponse is returned verbatim by the mock provider.
	MockResponse string `mapstructure:"mock_response" yaml:"mock_response,omitempty"`
}

// Timeout returns the HTTP timeout for completion calls; zero means none.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	EnableCORS bool   `mapstructure:"enable_cors" yaml:"enable_cors"`
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
}

type SummaryConfig struct {
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter       string  `mapstructure:"exporter" yaml:"exporter"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `mapstructure:"zipkin_endpoint" yaml:"zipkin_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
}

// LogConfig converts the logging section for observability.NewLogger.
func (c Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{Level: c.Logging.Level, Format: c.Logging.Format}
}

// MetricsOptions converts the metrics section for observability.NewMetricsCollector.
func (c Config) MetricsOptions() observability.MetricsConfig {
	return observability.MetricsConfig{Enabled: c.Metrics.Enabled}
}

// TracingOptions converts the tracing section for observability.NewTracerProvider.
func (c Config) TracingOptions(version string) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        c.Tracing.Enabled,
		Exporter:       c.Tracing.Exporter,
		OTLPEndpoint:   c.Tracing.OTLPEndpoint,
		ZipkinEndpoint: c.Tracing.ZipkinEndpoint,
		SampleRate:     c.Tracing.SampleRate,
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
	}
}
