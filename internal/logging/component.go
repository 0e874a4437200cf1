package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a component logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// sink is shared by every component logger so they interleave on one writer.
type sink struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
}

var (
	sinkOnce     sync.Once
	globalSink   *sink
	bearerSecret = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	hfToken      = regexp.MustCompile(`hf_[A-Za-z0-9]{16,}`)
)

func defaultSink() *sink {
	sinkOnce.Do(func() {
		globalSink = &sink{out: os.Stderr, level: LevelInfo}
	})
	return globalSink
}

// Configure points every component logger at level and, when path is not
// empty, mirrors output into that file. Safe to call more than once.
func Configure(level Level, path string) error {
	s := defaultSink()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level = level
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.out = os.Stderr
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	s.file = file
	s.out = io.MultiWriter(os.Stderr, file)
	return nil
}

// SetOutput redirects component logger output, mainly for tests and the MCP
// stdio server where stdout belongs to the protocol.
func SetOutput(w io.Writer) {
	s := defaultSink()
	s.mu.Lock()
	defer s.mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	s.out = w
}

// ComponentLogger writes "timestamp [LEVEL] [component] file:line - message" lines.
type ComponentLogger struct {
	component string
	sink      *sink
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &ComponentLogger{component: component, sink: defaultSink()}
}

func (l *ComponentLogger) log(level Level, format string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "fission"
	}
	message := fmt.Sprintf(format, args...)
	entry := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line, message)
	_, _ = io.WriteString(s.out, redact(entry))
}

func (l *ComponentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *ComponentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *ComponentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *ComponentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

func redact(line string) string {
	line = bearerSecret.ReplaceAllString(line, "${1}[REDACTED]")
	return hfToken.ReplaceAllString(line, "[REDACTED]")
}
