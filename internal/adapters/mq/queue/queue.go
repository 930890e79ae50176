// Package queue is the bounded trigger queue between the places that ask for
// a sync (timer, connectivity, signals, manual calls) and the single worker
// that runs it. Writers never block.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/scoutsync/pkg/metrics"
)

// DefaultCapacity bounds the queue when no option is given.
const DefaultCapacity = 8

// Trigger sources.
const (
	SourceStartup      = "startup"
	SourceConnectivity = "connectivity"
	SourcePending      = "pending"
	SourceTimer        = "timer"
	SourceManual       = "manual"
)

// Trigger asks for one sync run.
type Trigger struct {
	Source string
	At     time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds t without blocking. It returns ErrFull when the buffer is
	// full and ErrStopped after Close.
	Enqueue(ctx context.Context, t Trigger) error

	// Dequeue returns the channel triggers are delivered on. It is closed
	// when the queue is closed.
	Dequeue(ctx context.Context) <-chan Trigger

	// Drain discards buffered triggers and returns how many were dropped.
	Drain() int

	// Len returns the number of buffered triggers.
	Len() int

	// Close stops the queue. Further Enqueue calls return ErrStopped.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	triggers chan Trigger
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.triggers = make(chan Trigger, q.capacity)

	metrics.UpdateTriggerQueueCapacity(q.capacity)
	metrics.UpdateTriggerQueueSize(0)
	return q
}

// Enqueue adds a trigger to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Trigger) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrStopped
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case q.triggers <- t:
		metrics.UpdateTriggerQueueSize(len(q.triggers))
		return nil
	default:
		metrics.RecordErrorByComponent("trigger_queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Trigger {
	return q.triggers
}

// Drain drops every buffered trigger.
func (q *InMemoryQueue) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-q.triggers:
			if !ok {
				return n
			}
			n++
		default:
			metrics.UpdateTriggerQueueSize(0)
			return n
		}
	}
}

// Len returns the current number of queued triggers.
func (q *InMemoryQueue) Len() int {
	size := len(q.triggers)
	metrics.UpdateTriggerQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.triggers)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
