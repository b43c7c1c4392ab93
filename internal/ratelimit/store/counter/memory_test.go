package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryStore_IncrementAndGet(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewInMemory(WithClock(clock.Now))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.IncrementAndGet(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	t.Run("keys are independent", func(t *testing.T) {
		n, err := store.IncrementAndGet(ctx, "other", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("expired key restarts at one", func(t *testing.T) {
		clock.Advance(time.Minute)
		n, err := store.IncrementAndGet(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.IncrementAndGet(cctx, "k", time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInMemoryStore_ConcurrentIncrementsAreAtomic(t *testing.T) {
	store := NewInMemory()
	const goroutines = 200
	const capacity = 50

	var mu sync.Mutex
	seen := make(map[int64]bool, goroutines)
	admitted := 0

	var g errgroup.Group
	for range goroutines {
		g.Go(func() error {
			n, err := store.IncrementAndGet(context.Background(), "shared", time.Minute)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			seen[n] = true
			if n <= capacity {
				admitted++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, goroutines, "every caller observes a distinct count")
	assert.Equal(t, capacity, admitted)
}

func TestInMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewInMemory(WithClock(clock.Now))
	ctx := context.Background()

	_, err := store.IncrementAndGet(ctx, "short", time.Second)
	require.NoError(t, err)
	_, err = store.IncrementAndGet(ctx, "long", time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStore_RunJanitorStops(t *testing.T) {
	store := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
