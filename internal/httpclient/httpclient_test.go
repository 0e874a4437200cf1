package httpclient

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fission/internal/logging"
)

func TestReadAllWithLimit(t *testing.T) {
	payload := []byte("hello")

	got, err := ReadAllWithLimit(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = ReadAllWithLimit(bytes.NewReader(payload), 2)
	require.Error(t, err)
	assert.True(t, IsResponseTooLarge(err))
	assert.Contains(t, err.Error(), "limit of 2 bytes")

	got, err = ReadAllWithLimit(bytes.NewReader(payload), 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestErrorBody(t *testing.T) {
	assert.Equal(t, "model loading", ErrorBody(strings.NewReader("  model loading\n"), 100))
	assert.Equal(t, "abc", ErrorBody(strings.NewReader("abcdef"), 3))
	assert.Empty(t, ErrorBody(nil, 10))
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) add(format string, args ...any) {
	l.lines = append(l.lines, format)
}
func (l *recordingLogger) Debug(format string, args ...any) { l.add("DEBUG "+format, args...) }
func (l *recordingLogger) Info(format string, args ...any)  { l.add("INFO "+format, args...) }
func (l *recordingLogger) Warn(format string, args ...any)  { l.add("WARN "+format, args...) }
func (l *recordingLogger) Error(format string, args ...any) { l.add("ERROR "+format, args...) }

var _ logging.Logger = (*recordingLogger)(nil)

func TestNewLogsRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	logger := &recordingLogger{}
	client := New(time.Second, logger)
	assert.Equal(t, time.Second, client.Timeout)

	resp, err := client.Get(srv.URL + "/health?token=secret")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = client.Get(srv.URL + "/fail")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Len(t, logger.lines, 2)
	assert.True(t, strings.HasPrefix(logger.lines[0], "DEBUG "))
	assert.True(t, strings.HasPrefix(logger.lines[1], "WARN "))
}

func TestRedactURLDropsQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://hf.example/resolve/main/m.gguf?sig=abc", nil)
	assert.Equal(t, "https://hf.example/resolve/main/m.gguf", redactURL(req))
}
