// Package pending tracks ids of scouting records whose latest local state
// has not been confirmed by the remote store.
package pending

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/scoutsync/pkg/metrics"
)

// Store persists the whole id list. *repository.Local satisfies it and
// announces every write on its signal publisher.
type Store interface {
	PendingIDs(ctx context.Context) ([]string, error)
	SetPendingIDs(ctx context.Context, ids []string) error
}

// Queue is an ordered, duplicate-free id list. Every mutation is a
// read-modify-write of the persisted list serialized by mu, so the capture
// path and the pusher never lose each other's updates.
type Queue struct {
	mu    sync.Mutex
	store Store
}

// New creates a Queue over store.
func New(store Store) *Queue {
	return &Queue{store: store}
}

// Enqueue appends ids not already pending and returns how many were added.
func (q *Queue) Enqueue(ctx context.Context, ids ...string) (int, error) {
	return q.mutate(ctx, func(current []string) []string {
		seen := make(map[string]struct{}, len(current)+len(ids))
		for _, id := range current {
			seen[id] = struct{}{}
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			current = append(current, id)
		}
		return current
	})
}

// Dequeue removes ids and returns how many were present.
func (q *Queue) Dequeue(ctx context.Context, ids ...string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return q.mutate(ctx, func(current []string) []string {
		return filter(current, func(id string) bool {
			_, gone := drop[id]
			return !gone
		})
	})
}

// ReconcileAgainst drops every pending id missing from valid and returns
// how many were removed.
func (q *Queue) ReconcileAgainst(ctx context.Context, valid map[string]struct{}) (int, error) {
	return q.mutate(ctx, func(current []string) []string {
		return filter(current, func(id string) bool {
			_, ok := valid[id]
			return ok
		})
	})
}

// All returns a copy of the pending ids.
func (q *Queue) All(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids, err := q.store.PendingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pending ids: %w", err)
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Len returns the number of pending ids.
func (q *Queue) Len(ctx context.Context) (int, error) {
	ids, err := q.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// mutate applies fn to the persisted list and writes it back when the
// length changed. It returns the absolute change in length.
func (q *Queue) mutate(ctx context.Context, fn func([]string) []string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.store.PendingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("read pending ids: %w", err)
	}
	before := len(current)
	next := fn(current)
	delta := len(next) - before
	if delta == 0 {
		return 0, nil
	}
	if err := q.store.SetPendingIDs(ctx, next); err != nil {
		return 0, fmt.Errorf("write pending ids: %w", err)
	}
	metrics.UpdatePendingRecords(len(next))
	if delta < 0 {
		delta = -delta
	}
	return delta, nil
}

// filter keeps ids for which keep is true, preserving order.
func filter(ids []string, keep func(string) bool) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}
