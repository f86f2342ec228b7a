package handler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCore(t *testing.T) *HandlerCore {
	t.Helper()
	core := NewHandlerCore(context.Background(), false)
	go func() { _ = core.Run() }()
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func TestHandlerCore_PostRunsInOrder(t *testing.T) {
	core := startCore(t)

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, core.Post(func() { order = append(order, i) }))
	}
	require.NoError(t, core.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestHandlerCore_DoWaitsForResult(t *testing.T) {
	core := startCore(t)

	var result int
	err := core.Do(context.Background(), func() { result = 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestHandlerCore_RecoversPanic(t *testing.T) {
	core := startCore(t)

	core.Post(func() { panic("boom") })
	var ran atomic.Bool
	require.NoError(t, core.Do(context.Background(), func() { ran.Store(true) }))
	assert.True(t, ran.Load(), "panic の後もループは続く")
}

func TestHandlerCore_Close(t *testing.T) {
	core := NewHandlerCore(context.Background(), false)
	stopped := make(chan struct{})
	go func() {
		_ = core.Run()
		close(stopped)
	}()

	require.NoError(t, core.Close())
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.False(t, core.Post(func() {}))
	assert.ErrorIs(t, core.Do(context.Background(), func() {}), ErrCoreClosed)
	select {
	case <-core.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestHandlerCore_DoContextCancel(t *testing.T) {
	core := startCore(t)

	block := make(chan struct{})
	core.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := core.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandlerCore_Debug(t *testing.T) {
	core := NewHandlerCore(context.Background(), true)
	assert.True(t, core.IsDebug())
	core.SetDebug(false)
	assert.False(t, core.IsDebug())
}
