package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FISSION_LLM_PROVIDER.
const EnvPrefix = "FISSION"

type loadOptions struct {
	configFile string
	homeDir    func() (string, error)
	overrides  map[string]any
}

// Option customises Load.
type Option func(*loadOptions)

// WithConfigFile loads path instead of searching the default locations.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) {
		o.configFile = strings.TrimSpace(path)
	}
}

// WithHomeDir overrides home directory resolution (tests).
func WithHomeDir(fn func() (string, error)) Option {
	return func(o *loadOptions) {
		if fn != nil {
			o.homeDir = fn
		}
	}
}

// WithOverride applies a value after file and environment, e.g. from a CLI flag.
func WithOverride(key string, value any) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = map[string]any{}
		}
		o.overrides[key] = value
	}
}

// Load resolves configuration from defaults, an optional YAML file
// (./fission.yaml or ~/.fission/config.yaml), FISSION_* environment variables
// and caller overrides, in that order of precedence.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := options.configFile
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
	} else {
		path = discover(options.homeDir)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for key, value := range options.overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := normalize(&cfg, options.homeDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFileUsed reports which file Load would read, or "" when none exists.
func ConfigFileUsed(opts ...Option) string {
	options := loadOptions{homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(&options)
	}
	if options.configFile != "" {
		return options.configFile
	}
	return discover(options.homeDir)
}

// discover returns the first existing default config file.
func discover(homeDir func() (string, error)) string {
	candidates := []string{"fission.yaml"}
	if home, err := homeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".fission", "config.yaml"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("model.repo", DefaultModelRepo)
	v.SetDefault("model.file", DefaultModelFile)
	v.SetDefault("model.revision", DefaultModelRevision)
	v.SetDefault("model.sha256", "")
	v.SetDefault("model.dir", DefaultModelsDir)
	v.SetDefault("model.bundle_path", "")
	v.SetDefault("model.hf_base_url", DefaultHFBaseURL)
	v.SetDefault("model.hf_token", "")

	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.timeout_seconds", DefaultLLMTimeout)
	v.SetDefault("llm.autostart", true)
	v.SetDefault("llm.server_binary", DefaultServerBinary)
	v.SetDefault("llm.context_size", DefaultContextSize)
	v.SetDefault("llm.threads", DefaultThreads)
	v.SetDefault("llm.mock_response", "")

	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.debug", false)

	v.SetDefault("summary.cache_size", DefaultCacheSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "otlp")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.zipkin_endpoint", "http://localhost:9411/api/v2/spans")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "fission")
}

func normalize(cfg *Config, homeDir func() (string, error)) error {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	cfg.Model.Repo = strings.Trim(strings.TrimSpace(cfg.Model.Repo), "/")
	cfg.Model.File = strings.TrimSpace(cfg.Model.File)
	cfg.Model.SHA256 = strings.TrimSpace(cfg.Model.SHA256)

	switch cfg.LLM.Provider {
	case "llama.cpp", "llamacpp", "llama-cpp":
		cfg.LLM.Provider = "llama.cpp"
	case "ollama", "mock":
	default:
		return fmt.Errorf("unsupported llm provider %q (want llama.cpp, ollama or mock)", cfg.LLM.Provider)
	}
	if cfg.Model.File == "" {
		return fmt.Errorf("model.file is required")
	}
	if cfg.LLM.ContextSize <= 0 {
		cfg.LLM.ContextSize = DefaultContextSize
	}
	if cfg.LLM.Threads <= 0 {
		cfg.LLM.Threads = DefaultThreads
	}
	if cfg.Summary.CacheSize < 0 {
		cfg.Summary.CacheSize = 0
	}

	var err error
	if cfg.Database.Path, err = ExpandHome(cfg.Database.Path, homeDir); err != nil {
		return err
	}
	if cfg.Model.Dir, err = ExpandHome(cfg.Model.Dir, homeDir); err != nil {
		return err
	}
	if cfg.Model.BundlePath != "" {
		if cfg.Model.BundlePath, err = ExpandHome(cfg.Model.BundlePath, homeDir); err != nil {
			return err
		}
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.File, err = ExpandHome(cfg.Logging.File, homeDir); err != nil {
			return err
		}
	}
	return nil
}

// ExpandHome resolves a leading "~" against homeDir.
func ExpandHome(path string, homeDir func() (string, error)) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Join(home, path[1:]), nil
}
