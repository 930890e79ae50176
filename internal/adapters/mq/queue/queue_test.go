package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	require.Equal(t, 0, q.Len())
	require.NoError(t, q.Enqueue(ctx, Trigger{Source: SourceManual}))
	require.Equal(t, 1, q.Len())

	got := <-q.Dequeue(ctx)
	require.Equal(t, SourceManual, got.Source)
	require.False(t, got.At.IsZero(), "enqueue should stamp the trigger time")
	require.Equal(t, 0, q.Len())
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(-1))
	ctx := context.Background()

	for i := 0; i < DefaultCapacity; i++ {
		require.NoError(t, q.Enqueue(ctx, Trigger{Source: SourceTimer}))
	}
	require.ErrorIs(t, q.Enqueue(ctx, Trigger{Source: SourceTimer}), ErrFull)
}

func TestInMemoryQueue_FullDoesNotBlock(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Trigger{Source: SourcePending}))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, Trigger{Source: SourcePending}) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrFull)
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}

func TestInMemoryQueue_Drain(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, Trigger{Source: SourceTimer}))
	}
	require.Equal(t, 3, q.Drain())
	require.Equal(t, 0, q.Len())
	require.Equal(t, 0, q.Drain())
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Trigger{Source: SourceStartup}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	require.True(t, q.IsClosed())
	require.ErrorIs(t, q.Enqueue(ctx, Trigger{Source: SourceManual}), ErrStopped)

	// Buffered triggers are still delivered, then the channel closes.
	ch := q.Dequeue(ctx)
	got, ok := <-ch
	require.True(t, ok)
	require.Equal(t, SourceStartup, got.Source)
	_, ok = <-ch
	require.False(t, ok)
}

func TestInMemoryQueue_CanceledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, q.Enqueue(ctx, Trigger{Source: SourceManual}), context.Canceled)
	require.Equal(t, 0, q.Len())
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(16))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if q.Enqueue(ctx, Trigger{Source: SourceTimer}) == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 16, accepted)
	require.Equal(t, 16, q.Len())
}
