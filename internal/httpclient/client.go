// Package httpclient builds the HTTP clients used to reach inference
// backends and model hosts.
package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"fission/internal/logging"
)

// New returns a client with the given overall timeout (zero means none)
// whose requests are logged at debug level.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: WrapTransportWithLogging(http.DefaultTransport, logger),
	}
}

// WrapTransportWithLogging logs method, URL, status and latency of every
// round trip through base.
func WrapTransportWithLogging(base http.RoundTripper, logger logging.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingRoundTripper{base: base, logger: logging.OrNop(logger)}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		t.logger.Debug("%s %s failed after %s: %v", req.Method, redactURL(req), elapsed, err)
		return nil, err
	}
	level := t.logger.Debug
	if resp.StatusCode >= http.StatusInternalServerError {
		level = t.logger.Warn
	}
	level("%s %s -> %d in %s", req.Method, redactURL(req), resp.StatusCode, elapsed)
	return resp, nil
}

// redactURL drops the query string, which may carry signed download tokens.
func redactURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return fmt.Sprintf("%s://%s%s", req.URL.Scheme, req.URL.Host, req.URL.Path)
}
