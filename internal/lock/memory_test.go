package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	t.Cleanup(l.Stop)

	key := Keys.Book(7)
	assert.Equal(t, "lock:book:7", key)

	acquired, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "second holder must be refused")

	held, err := l.IsHeld(ctx, key)
	require.NoError(t, err)
	assert.True(t, held)

	extended, err := l.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	released, err := l.Release(ctx, key)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = l.Release(ctx, key)
	require.NoError(t, err)
	assert.False(t, released)

	extended, err = l.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	t.Cleanup(l.Stop)

	acquired, err := l.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(20 * time.Millisecond)

	held, err := l.IsHeld(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held)

	acquired, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lock can be taken over")
}

func TestMemoryLocker_AcquireWithRetry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	t.Cleanup(l.Stop)

	acquired, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = l.AcquireWithRetry(ctx, "k", time.Minute, 2, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, acquired)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = l.Release(ctx, "k")
	}()
	acquired, err = l.AcquireWithRetry(ctx, "k", time.Minute, 200, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryLocker_CanceledContext(t *testing.T) {
	l := NewMemoryLocker()
	t.Cleanup(l.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	t.Cleanup(l.Stop)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk := NewLock(l, Keys.Book(1))
			ok, err := lk.AcquireWithRetry(ctx, time.Minute, 1000, time.Millisecond)
			if err != nil || !ok {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lk.Release(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestNoOpLocker(t *testing.T) {
	ctx := context.Background()
	l := NewNoOpLocker()

	for i := 0; i < 2; i++ {
		acquired, err := l.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	}
	held, err := l.IsHeld(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held)
}
