// Package repository provides the local durable key-value store and the
// typed accessors the sync engine reads and writes through.
package repository

import "context"

// Collection names persisted per device.
const (
	CollectionScouting = "scouting"
	CollectionPending  = "pending"
	CollectionRoster   = "roster"
	CollectionSchedule = "schedule"
	CollectionMeta     = "meta"
)

// Store is a key-indexed durable store partitioned into named collections.
// Writes are last-write-wins; there are no transactions across keys.
type Store interface {
	// Get returns the value under key. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, key string) ([]byte, error)
	// Put creates or replaces the value under key.
	Put(ctx context.Context, collection, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// List returns every key/value pair of the collection.
	List(ctx context.Context, collection string) (map[string][]byte, error)
	// Close releases underlying resources.
	Close() error
}
