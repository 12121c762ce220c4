package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionHub_SignalWakesAllWaiters(t *testing.T) {
	h := newCompletionHub()
	h.poll = 10 * time.Millisecond
	var finished atomic.Bool
	var checks atomic.Int32

	var wg sync.WaitGroup
	results := make([]bool, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = h.wait(context.Background(), "k", 5*time.Second, func(context.Context) (bool, error) {
				checks.Add(1)
				return finished.Load(), nil
			})
		}()
	}

	require.Eventually(t, func() bool { return checks.Load() >= 3 }, time.Second, time.Millisecond)
	finished.Store(true)
	h.signal("k")
	wg.Wait()

	assert.Equal(t, []bool{true, true, true}, results)
	assert.Zero(t, h.waiters.Size())
}

func TestCompletionHub_TimeoutForgetsWaiter(t *testing.T) {
	h := newCompletionHub()
	h.poll = 5 * time.Millisecond
	never := func(context.Context) (bool, error) { return false, nil }

	ok, err := h.wait(context.Background(), "k", 30*time.Millisecond, never)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.waiters.Size())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err = h.wait(ctx, "k", time.Minute, never)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.waiters.Size())
}
