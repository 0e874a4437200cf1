package localmodel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"fission/internal/httpclient"
	"fission/internal/logging"
)

const (
	DefaultServerBinary = "llama-server"
	DefaultContextSize  = 2048
	DefaultThreads      = 4
	defaultStartTimeout = 60 * time.Second
)

// ServerOptions configures a ServerManager.
type ServerOptions struct {
	Binary       string
	BaseURL      string
	ContextSize  int
	Threads      int
	LogPath      string // llama-server stdout/stderr; discarded when empty
	StartTimeout time.Duration
	Logger       logging.Logger
}

// ServerManager starts llama-server on demand and stops the process it
// started. A server that was already running is left alone.
type ServerManager struct {
	opts   ServerOptions
	logger logging.Logger
	client *http.Client

	mu       sync.Mutex
	starting bool
	startErr error
	startCh  chan struct{}
	cmd      *exec.Cmd
	exited   chan struct{}
	logFile  *os.File
}

// NewServerManager fills in defaults for opts.
func NewServerManager(opts ServerOptions) *ServerManager {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = DefaultServerBinary
	}
	if opts.ContextSize <= 0 {
		opts.ContextSize = DefaultContextSize
	}
	if opts.Threads <= 0 {
		opts.Threads = DefaultThreads
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = defaultStartTimeout
	}
	opts.BaseURL = strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"), "/v1")
	logger := opts.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("llama-server")
	}
	return &ServerManager{opts: opts, logger: logger, client: httpclient.New(0, logger)}
}

// Args returns the llama-server command line for modelPath.
func (m *ServerManager) Args(modelPath string) []string {
	host, port := splitHostPort(m.opts.BaseURL)
	return []string{
		"--host", host,
		"--port", port,
		"-m", modelPath,
		"-c", strconv.Itoa(m.opts.ContextSize),
		"-t", strconv.Itoa(m.opts.Threads),
	}
}

// Ensure returns nil once a healthy server answers at BaseURL, starting one
// over modelPath if needed. Concurrent callers wait for a single start.
func (m *ServerManager) Ensure(ctx context.Context, modelPath string) error {
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	healthy := m.checkHealth(healthCtx)
	cancel()
	if healthy {
		return nil
	}

	m.mu.Lock()
	if m.starting {
		ch := m.startCh
		m.mu.Unlock()
		select {
		case <-ch:
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.startErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.cmd != nil && !processExited(m.exited) {
		// Started earlier but unhealthy now; wait rather than spawn a second one.
		m.mu.Unlock()
		return m.waitForHealth(ctx)
	}
	m.starting = true
	m.startCh = make(chan struct{})
	m.mu.Unlock()

	err := m.start(ctx, modelPath)

	m.mu.Lock()
	m.starting = false
	m.startErr = err
	close(m.startCh)
	m.mu.Unlock()

	return err
}

func (m *ServerManager) start(ctx context.Context, modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("weights not found: %w", err)
	}
	binPath, err := exec.LookPath(m.opts.Binary)
	if err != nil {
		return fmt.Errorf("llama-server binary %q not found: %w", m.opts.Binary, err)
	}

	cmd := exec.Command(binPath, m.Args(modelPath)...)
	var logFile *os.File
	if m.opts.LogPath != "" {
		logFile, err = os.OpenFile(m.opts.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open llama-server log: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return fmt.Errorf("start llama-server: %w", err)
	}

	exited := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.exited = exited
	m.logFile = logFile
	m.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	m.logger.Info("Started llama-server pid=%d (%s)", cmd.Process.Pid, strings.Join(m.Args(modelPath), " "))
	if err := m.waitForHealth(ctx); err != nil {
		_ = m.Stop()
		return err
	}
	m.logger.Info("Local inference server ready: %s", m.opts.BaseURL)
	return nil
}

// Stop kills the server process this manager started, if any.
func (m *ServerManager) Stop() error {
	m.mu.Lock()
	cmd, logFile := m.cmd, m.logFile
	m.cmd, m.exited, m.logFile = nil, nil, nil
	m.mu.Unlock()

	var errs []error
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("stop llama-server: %w", err))
		} else {
			m.logger.Info("Stopped llama-server pid=%d", cmd.Process.Pid)
		}
	}
	if logFile != nil {
		if err := logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Running reports whether this manager owns a live process.
func (m *ServerManager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil && !processExited(m.exited)
}

func processExited(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (m *ServerManager) waitForHealth(ctx context.Context) error {
	deadline := time.Now().Add(m.opts.StartTimeout)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		healthCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		ok := m.checkHealth(healthCtx)
		cancel()
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("local inference server did not become ready at %s", m.opts.BaseURL)
		}
		time.Sleep(300 * time.Millisecond)
	}
}

func (m *ServerManager) checkHealth(ctx context.Context) bool {
	if m.opts.BaseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func splitHostPort(baseURL string) (string, string) {
	base := strings.TrimPrefix(baseURL, "http://")
	base = strings.TrimPrefix(base, "https://")
	hostPort := strings.SplitN(base, "/", 2)[0]
	if hostPort == "" {
		return "127.0.0.1", "8082"
	}
	if strings.Contains(hostPort, ":") {
		parts := strings.SplitN(hostPort, ":", 2)
		return parts[0], parts[1]
	}
	return hostPort, "8082"
}
