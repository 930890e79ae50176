// Package worker runs the single consumer of the trigger queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/scoutsync/internal/adapters/mq/queue"
	"github.com/okian/scoutsync/pkg/logger"
	"github.com/okian/scoutsync/pkg/metrics"
)

// ErrHandlerPanic wraps a panic raised by a Handler.
var ErrHandlerPanic = errors.New("handler panicked")

// Handler processes one trigger. Errors are logged; the worker keeps going.
type Handler interface {
	Handle(ctx context.Context, t queue.Trigger) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t queue.Trigger) error

func (f HandlerFunc) Handle(ctx context.Context, t queue.Trigger) error { return f(ctx, t) }

// Queue defines how the worker receives triggers.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Trigger
}

// Worker drains a trigger queue one trigger at a time.
type Worker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a worker.
func New(q Queue, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes triggers until ctx is canceled, Shutdown is called or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	triggers := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-triggers:
			if !ok {
				return
			}
			w.process(ctx, t)
		}
	}
}

// Shutdown stops the worker after the trigger in progress, if any.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, t queue.Trigger) {
	start := time.Now()
	err := w.handle(ctx, t)
	if err == nil {
		return
	}
	metrics.RecordErrorByComponent("worker", "handler_error")
	metrics.RecordErrorLatency("worker", "handler_error", float64(time.Since(start).Milliseconds()))
	w.logger.Error(ctx, "trigger failed",
		logger.String("source", t.Source),
		logger.Duration("elapsed", time.Since(start)),
		logger.Error(err))
}

// handle calls the handler, recovering a panic into an error so one bad
// trigger does not take the consumer down.
func (w *Worker) handle(ctx context.Context, t queue.Trigger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return w.handler.Handle(ctx, t)
}
