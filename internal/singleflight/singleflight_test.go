package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var (
		g     Group[string, int]
		calls atomic.Int64
		wg    sync.WaitGroup
		share atomic.Int64
	)
	release := make(chan struct{})
	const n = 32

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, shared, err := g.Do(context.Background(), "k", func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
			if shared {
				share.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return g.Waiters("k") == n-1 }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "fn must run once while a call is in flight")
	assert.Equal(t, int64(n-1), share.Load())
	assert.Zero(t, g.InFlight())
	assert.Zero(t, g.Waiters("k"))
}

func TestGroup_FollowerContextCancel(t *testing.T) {
	t.Parallel()

	var g Group[string, string]
	release := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, _, err := g.Do(context.Background(), "k", func() (string, error) {
			<-release
			return "", errors.New("boom")
		})
		leaderDone <- err
	}()
	require.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := g.Do(ctx, "k", func() (string, error) { return "unused", nil })
	assert.True(t, shared)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, g.Waiters("k"), "a follower that gave up no longer waits")

	close(release)
	assert.EqualError(t, <-leaderDone, "boom")

	// Once the call is done the key is free again.
	v, shared, err := g.Do(context.Background(), "k", func() (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "fresh", v)
}
