package cache

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

func TestMemoryGetSetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory[string](time.Minute)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory[int](time.Minute)

	require.NoError(t, c.Set(ctx, "k", 42, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrSetComputesOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory[int](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (int, time.Duration, error) {
		calls.Add(1)
		<-release
		return 7, time.Minute, nil
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := GetOrSet(ctx, c, "shared", fn)
			assert.NoError(t, err)
			assert.Equal(t, 7, got)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "singleflight collapses concurrent misses")
}

func TestGetOrSetErrorNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory[int](time.Minute)
	boom := errors.New("upstream down")
	var calls int

	fn := func(context.Context) (int, time.Duration, error) {
		calls++
		if calls == 1 {
			return 0, 0, boom
		}
		return 9, time.Minute, nil
	}

	_, err := GetOrSet(ctx, c, "flaky", fn)
	assert.ErrorIs(t, err, boom)

	got, err := GetOrSet(ctx, c, "flaky", fn)
	require.NoError(t, err)
	assert.Equal(t, 9, got, "failure leaves the key uncached so the next call retries")
}

func TestGetOrSetServesCachedValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory[string](time.Minute)
	require.NoError(t, c.Set(ctx, "k", "cached", time.Minute))

	got, err := GetOrSet(ctx, c, "k", func(context.Context) (string, time.Duration, error) {
		t.Fatal("compute must not run on a hit")
		return "", 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", got)
}
