// Package localmodel makes the GGUF weights available on disk and, when
// asked, runs a llama-server process over them.
package localmodel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"fission/internal/httpclient"
	"fission/internal/logging"
	"fission/internal/observability"
)

// Status messages reported while the weights are being made available.
const (
	StatusInitializing = "Initializing Neural Core..."
	StatusReady        = "Neural Core Ready"
)

// Where a ModelHandle's file came from.
const (
	SourceExisting = "existing"
	SourceBundle   = "bundle"
	SourceDownload = "download"
)

const (
	defaultHFBaseURL   = "https://huggingface.co"
	defaultRevision    = "main"
	maxErrorBodyBytes  = 8 * 1024
	defaultHTTPTimeout = 30 * time.Minute
)

// StatusFunc receives human-readable status lines.
type StatusFunc func(status string)

// ProgressFunc receives download progress in [0, 1].
type ProgressFunc func(fraction float64)

// ModelHandle points at weights that are ready to load.
type ModelHandle struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Source string `json:"source"`
}

// Options configures a Provisioner.
type Options struct {
	Dir        string // directory holding the weights file
	File       string // weights file name, e.g. Qwen3-0.6B-Q5_K_M.gguf
	Repo       string // Hugging Face repository
	Revision   string
	SHA256     string // optional hex digest
	BundlePath string // optional zip archive shipped alongside the binary
	HFBaseURL  string
	HFToken    string

	HTTPClient *http.Client
	Logger     logging.Logger
	Metrics    *observability.MetricsCollector
	Tracer     *observability.TracerProvider
}

// Provisioner guarantees the weights file exists at a fixed path.
type Provisioner struct {
	opts   Options
	path   string
	client *http.Client
	logger logging.Logger

	mu sync.Mutex
}

// NewProvisioner validates opts and returns a Provisioner.
func NewProvisioner(opts Options) (*Provisioner, error) {
	opts.Dir = strings.TrimSpace(opts.Dir)
	opts.File = strings.TrimSpace(opts.File)
	opts.Repo = strings.Trim(strings.TrimSpace(opts.Repo), "/")
	opts.Revision = strings.TrimSpace(opts.Revision)
	opts.SHA256 = strings.ToLower(strings.TrimSpace(opts.SHA256))
	if opts.Revision == "" {
		opts.Revision = defaultRevision
	}
	if opts.Dir == "" {
		return nil, errors.New("model dir is required")
	}
	if opts.File == "" || strings.ContainsAny(opts.File, `/\`) {
		return nil, fmt.Errorf("invalid model file name %q", opts.File)
	}
	if err := validateSHA256(opts.SHA256); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("localmodel")
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpclient.New(defaultHTTPTimeout, logger)
	}

	return &Provisioner{
		opts:   opts,
		path:   filepath.Join(opts.Dir, opts.File),
		client: client,
		logger: logger,
	}, nil
}

// ModelPath is the fixed location of the weights file.
func (p *Provisioner) ModelPath() string {
	return p.path
}

// ModelExists reports whether a non-empty weights file is present. It does
// not verify the digest.
func (p *Provisioner) ModelExists() bool {
	info, err := os.Stat(p.path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// EnsureModelReady returns a handle to the weights, unpacking the bundle or
// downloading them first when needed. Calls are serialised.
func (p *Provisioner) EnsureModelReady(ctx context.Context, onStatus StatusFunc, onProgress ProgressFunc) (handle ModelHandle, err error) {
	if onStatus == nil {
		onStatus = func(string) {}
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	ctx, span := p.opts.Tracer.StartSpan(ctx, observability.SpanEnsureModel,
		attribute.String("fission.model.file", p.opts.File))
	defer func() {
		span.SetAttributes(attribute.String("fission.model.source", handle.Source))
		observability.EndSpan(span, err)
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ModelExists() {
		ok, err := p.verify(p.path)
		if err != nil {
			return ModelHandle{}, err
		}
		if ok {
			return p.handle(SourceExisting)
		}
		p.logger.Warn("Weights at %s fail sha256 check, fetching again", p.path)
		if err := os.Remove(p.path); err != nil {
			return ModelHandle{}, fmt.Errorf("remove corrupt weights: %w", err)
		}
	}

	if err := os.MkdirAll(p.opts.Dir, 0o755); err != nil {
		return ModelHandle{}, fmt.Errorf("create model dir: %w", err)
	}

	onStatus(StatusInitializing)

	source := SourceDownload
	if p.bundleAvailable() {
		source = SourceBundle
		p.logger.Info("Unpacking weights from bundle %s", p.opts.BundlePath)
		err = p.unpackBundle(ctx, onProgress)
	} else {
		p.logger.Info("Downloading weights %s/%s to %s", p.opts.Repo, p.opts.File, p.path)
		err = p.download(ctx, onStatus, onProgress)
	}
	if err != nil {
		return ModelHandle{}, err
	}

	onProgress(1)
	onStatus(StatusReady)
	return p.handle(source)
}

func (p *Provisioner) handle(source string) (ModelHandle, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return ModelHandle{}, fmt.Errorf("stat weights: %w", err)
	}
	return ModelHandle{Path: p.path, Size: info.Size(), Source: source}, nil
}

func (p *Provisioner) bundleAvailable() bool {
	if p.opts.BundlePath == "" {
		return false
	}
	info, err := os.Stat(p.opts.BundlePath)
	return err == nil && info.Mode().IsRegular()
}

// verify checks path against the configured digest; no digest always passes.
func (p *Provisioner) verify(path string) (bool, error) {
	if p.opts.SHA256 == "" {
		return true, nil
	}
	return fileSHA256Matches(path, p.opts.SHA256)
}

// install verifies tmpPath and renames it over the fixed model path.
func (p *Provisioner) install(tmpPath, actualSHA string) error {
	if p.opts.SHA256 != "" && !strings.EqualFold(actualSHA, p.opts.SHA256) {
		return fmt.Errorf("sha256 mismatch: want %s got %s", p.opts.SHA256, actualSHA)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
