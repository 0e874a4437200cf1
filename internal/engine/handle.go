// Package engine owns the lifecycle of the inference client: created by the
// caller, initialised on first use, reused afterwards and closed at shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fission/internal/llm"
	"fission/internal/logging"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("engine: handle closed")

// InitFunc produces a ready client. It may provision weights or start a
// local server, so it can be slow.
type InitFunc func(ctx context.Context) (llm.Client, error)

// Handle lazily initialises an llm.Client exactly once per successful init.
// A failed init is not remembered; the next Acquire runs it again.
type Handle struct {
	init    InitFunc
	closers []func() error
	logger  logging.Logger

	group singleflight.Group

	mu     sync.RWMutex
	client llm.Client
	closed bool
}

// Option configures a Handle.
type Option func(*Handle)

// WithCloser registers fn to run on Close, e.g. stopping a spawned server.
func WithCloser(fn func() error) Option {
	return func(h *Handle) {
		if fn != nil {
			h.closers = append(h.closers, fn)
		}
	}
}

// WithLogger sets the handle's logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *Handle) {
		h.logger = logging.OrNop(logger)
	}
}

// NewHandle returns an uninitialised handle.
func NewHandle(init InitFunc, opts ...Option) *Handle {
	h := &Handle{init: init, logger: logging.NewComponentLogger("engine")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FromClient returns a handle that is already initialised with client.
func FromClient(client llm.Client) *Handle {
	h := NewHandle(func(context.Context) (llm.Client, error) {
		if client == nil {
			return nil, errors.New("engine: nil client")
		}
		return client, nil
	}, WithLogger(logging.Nop()))
	h.client = client
	return h
}

// Acquire returns the client, running init on first use. Concurrent first
// callers share one init.
func (h *Handle) Acquire(ctx context.Context) (llm.Client, error) {
	h.mu.RLock()
	client, closed := h.client, h.closed
	h.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if client != nil {
		return client, nil
	}
	if h.init == nil {
		return nil, errors.New("engine: no initialiser configured")
	}

	v, err, _ := h.group.Do("engine", func() (any, error) {
		h.mu.RLock()
		if h.client != nil {
			c := h.client
			h.mu.RUnlock()
			return c, nil
		}
		h.mu.RUnlock()

		start := time.Now()
		c, err := h.init(ctx)
		if err != nil {
			h.logger.Warn("engine init failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
			return nil, fmt.Errorf("engine init: %w", err)
		}
		if c == nil {
			return nil, errors.New("engine init: returned nil client")
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			return nil, ErrClosed
		}
		h.client = c
		h.logger.Info("engine ready (model=%s) in %s", c.Model(), time.Since(start).Round(time.Millisecond))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(llm.Client), nil
}

// Ready reports whether a client has been initialised.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client != nil && !h.closed
}

// Close drops the client and runs registered closers. It is safe to call
// more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.client = nil
	closers := h.closers
	h.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
