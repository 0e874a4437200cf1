package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fission/internal/llm"
)

func TestAcquireIsLazyAndIdempotent(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle(func(context.Context) (llm.Client, error) {
		calls.Add(1)
		return llm.NewMockClient("[]"), nil
	})

	assert.False(t, h.Ready())
	assert.EqualValues(t, 0, calls.Load())

	c1, err := h.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := h.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.True(t, h.Ready())
	assert.EqualValues(t, 1, calls.Load())
}

func TestFailedInitIsRetried(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle(func(context.Context) (llm.Client, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("weights missing")
		}
		return llm.NewMockClient("[]"), nil
	})

	_, err := h.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights missing")
	assert.False(t, h.Ready())

	_, err = h.Acquire(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestConcurrentAcquireSharesInit(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	h := NewHandle(func(context.Context) (llm.Client, error) {
		calls.Add(1)
		<-release
		return llm.NewMockClient("[]"), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Acquire(context.Background())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestCloseRunsClosersAndBlocksAcquire(t *testing.T) {
	var order []string
	h := NewHandle(func(context.Context) (llm.Client, error) {
		return llm.NewMockClient(), nil
	},
		WithCloser(func() error { order = append(order, "first"); return nil }),
		WithCloser(func() error { order = append(order, "second"); return errors.New("stop failed") }),
	)

	_, err := h.Acquire(context.Background())
	require.NoError(t, err)

	err = h.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
	assert.False(t, h.Ready())

	_, err = h.Acquire(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, h.Close())
}

func TestFromClient(t *testing.T) {
	mock := llm.NewMockClient("x")
	h := FromClient(mock)
	assert.True(t, h.Ready())

	c, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, llm.Client(mock), c)
}

func TestNilInitReturnsError(t *testing.T) {
	h := NewHandle(func(context.Context) (llm.Client, error) { return nil, nil })
	_, err := h.Acquire(context.Background())
	require.Error(t, err)
}
