// Package normalize runs the local clean pass: one-time schema migrations,
// removal of malformed records and pending-queue self-healing.
package normalize

import (
	"context"
	"fmt"

	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/pkg/logger"
	"github.com/okian/scoutsync/pkg/metrics"
)

// Store is the local record storage the pass works on.
type Store interface {
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, v int) error
	RecordsByKey(ctx context.Context) (map[string]model.ScoutingRecord, []string, error)
	PutRecord(ctx context.Context, rec model.ScoutingRecord) error
	DeleteRecord(ctx context.Context, key string) error
}

// Pending is the queue healed against the surviving records.
type Pending interface {
	ReconcileAgainst(ctx context.Context, valid map[string]struct{}) (int, error)
}

// Report summarizes one pass.
type Report struct {
	Scanned        int `json:"scanned"`
	Dropped        int `json:"dropped"`
	Migrated       int `json:"migrated"`
	OrphansRemoved int `json:"orphans_removed"`
	SchemaVersion  int `json:"schema_version"`
}

// Normalizer runs the clean pass.
type Normalizer struct {
	store      Store
	pending    Pending
	migrations []Migration
	log        logger.Logger
}

// New creates a Normalizer running migrations in order.
func New(store Store, pending Pending, migrations []Migration) *Normalizer {
	return &Normalizer{
		store:      store,
		pending:    pending,
		migrations: migrations,
		log:        logger.Get().Named("normalize"),
	}
}

// Latest is the schema version reached after every migration has run.
func (n *Normalizer) Latest() int {
	latest := 0
	for _, m := range n.migrations {
		latest = max(latest, m.Version)
	}
	return latest
}

// Run migrates, drops malformed records and reconciles the pending queue.
// Running it again without new data changes nothing.
func (n *Normalizer) Run(ctx context.Context) (Report, error) {
	var rep Report

	version, err := n.store.SchemaVersion(ctx)
	if err != nil {
		return rep, fmt.Errorf("read schema version: %w", err)
	}
	rep.SchemaVersion = version

	recs, bad, err := n.store.RecordsByKey(ctx)
	if err != nil {
		return rep, fmt.Errorf("list records: %w", err)
	}
	rep.Scanned = len(recs) + len(bad)

	drop := append([]string(nil), bad...)
	valid := make(map[string]struct{}, len(recs))
	for key, rec := range recs {
		if err := rec.Validate(); err != nil || rec.ID != key {
			n.log.Debug(ctx, "dropping malformed record", logger.String("key", key), logger.Error(err))
			drop = append(drop, key)
			continue
		}

		if n.migrate(version, &rec) {
			if err := n.store.PutRecord(ctx, rec); err != nil {
				return rep, fmt.Errorf("save migrated record %s: %w", key, err)
			}
			rep.Migrated++
		}
		valid[key] = struct{}{}
	}

	for _, key := range drop {
		if err := n.store.DeleteRecord(ctx, key); err != nil {
			return rep, fmt.Errorf("drop record %s: %w", key, err)
		}
	}
	rep.Dropped = len(drop)
	metrics.RecordNormalizeDropped(rep.Dropped)

	if latest := n.Latest(); latest > version {
		if err := n.store.SetSchemaVersion(ctx, latest); err != nil {
			return rep, fmt.Errorf("write schema version: %w", err)
		}
		for _, m := range n.migrations {
			if m.Version > version {
				metrics.RecordMigrationApplied()
			}
		}
		rep.SchemaVersion = latest
	}

	removed, err := n.pending.ReconcileAgainst(ctx, valid)
	if err != nil {
		return rep, fmt.Errorf("reconcile pending: %w", err)
	}
	rep.OrphansRemoved = removed

	n.log.Info(ctx, "normalize pass complete",
		logger.Int("scanned", rep.Scanned),
		logger.Int("dropped", rep.Dropped),
		logger.Int("migrated", rep.Migrated),
		logger.Int("orphans_removed", rep.OrphansRemoved),
		logger.Int("schema_version", rep.SchemaVersion))
	return rep, nil
}

func (n *Normalizer) migrate(from int, rec *model.ScoutingRecord) bool {
	changed := false
	for _, m := range n.migrations {
		if m.Version <= from {
			continue
		}
		if m.Apply(rec) {
			changed = true
		}
	}
	return changed
}
