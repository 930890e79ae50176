// Package remote talks to the shared remote store: a collection-oriented
// backend with idempotent upsert by conflict key, full select and delete.
package remote

import (
	"context"
	"encoding/json"
)

// Remote collection names.
const (
	CollectionScouting = "scouting"
	CollectionRoster   = "roster"
	CollectionMatches  = "matches"
)

// DefaultConflictKey is the row field upserts are keyed by.
const DefaultConflictKey = "id"

// UpsertReport carries per-row results when the backend provides them.
// Accepted is nil when the backend only reports success or failure as a whole.
type UpsertReport struct {
	Accepted []string
}

// Client is the remote store contract. Every call is a suspension point and
// honours ctx.
type Client interface {
	// Upsert inserts or updates rows keyed by conflictKey. On error the
	// report may still list rows the backend confirmed.
	Upsert(ctx context.Context, collection string, rows []json.RawMessage, conflictKey string) (UpsertReport, error)
	// SelectAll returns every row of the collection.
	SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error)
	// DeleteByKeys removes rows by id.
	DeleteByKeys(ctx context.Context, collection string, keys []string) error
	// Ping checks reachability.
	Ping(ctx context.Context) error
}

// Marshal encodes typed rows for Upsert.
func Marshal[T any](rows []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// Unmarshal decodes rows returned by SelectAll. Rows that fail to decode are
// skipped and counted in bad.
func Unmarshal[T any](rows []json.RawMessage) (out []T, bad int) {
	out = make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			bad++
			continue
		}
		out = append(out, v)
	}
	return out, bad
}
