package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/scoutsync/internal/adapters/signal"
	"github.com/okian/scoutsync/internal/domain/model"
)

// Keys inside the single-document collections.
const (
	keyPendingIDs      = "ids"
	keySnapshot        = "snapshot"
	keyClientID        = "client_id"
	keySchemaVersion   = "schema_version"
	keyScheduleContext = "schedule_context"
)

// Local is the typed view of a Store used by the sync engine. Pending and
// roster writes are announced on the configured publisher.
type Local struct {
	store     Store
	publisher signal.Publisher

	recordMu sync.Mutex
}

// LocalOption configures a Local.
type LocalOption func(*Local)

// WithPublisher announces pending and roster changes on p.
func WithPublisher(p signal.Publisher) LocalOption {
	return func(l *Local) {
		if p != nil {
			l.publisher = p
		}
	}
}

// NewLocal wraps store.
func NewLocal(store Store, opts ...LocalOption) *Local {
	l := &Local{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying key-value store.
func (l *Local) Store() Store { return l.store }

// Record returns one scouting record. Returns ErrNotFound if absent.
func (l *Local) Record(ctx context.Context, id string) (model.ScoutingRecord, error) {
	var rec model.ScoutingRecord
	raw, err := l.store.Get(ctx, CollectionScouting, id)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("%w: record %s: %w", ErrCorrupt, id, err)
	}
	return rec, nil
}

// RecordsByKey returns every stored scouting record that decodes, keyed by
// its storage key. Undecodable keys are reported in bad.
func (l *Local) RecordsByKey(ctx context.Context) (recs map[string]model.ScoutingRecord, bad []string, err error) {
	all, err := l.store.List(ctx, CollectionScouting)
	if err != nil {
		return nil, nil, err
	}
	recs = make(map[string]model.ScoutingRecord, len(all))
	for key, raw := range all {
		var rec model.ScoutingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			bad = append(bad, key)
			continue
		}
		recs[key] = rec
	}
	sort.Strings(bad)
	return recs, bad, nil
}

// Records returns the decodable scouting records ordered by creation time then id.
func (l *Local) Records(ctx context.Context) ([]model.ScoutingRecord, error) {
	byKey, _, err := l.RecordsByKey(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]model.ScoutingRecord, 0, len(byKey))
	for _, rec := range byKey {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// RecordsByID resolves ids to records. Ids without a decodable record are
// returned in missing.
func (l *Local) RecordsByID(ctx context.Context, ids []string) (found []model.ScoutingRecord, missing []string, err error) {
	for _, id := range ids {
		rec, err := l.Record(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
			missing = append(missing, id)
		case err != nil:
			return nil, nil, err
		default:
			found = append(found, rec)
		}
	}
	return found, missing, nil
}

// LockRecords runs fn while holding the scouting record write lock.
// Read-check-write sequences on records run under it so a confirmation
// cannot overwrite a concurrent local edit.
func (l *Local) LockRecords(ctx context.Context, fn func(ctx context.Context) error) error {
	l.recordMu.Lock()
	defer l.recordMu.Unlock()
	return fn(ctx)
}

// PutRecord stores rec under its id.
func (l *Local) PutRecord(ctx context.Context, rec model.ScoutingRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return l.store.Put(ctx, CollectionScouting, rec.ID, raw)
}

// DeleteRecord removes the record stored under key.
func (l *Local) DeleteRecord(ctx context.Context, key string) error {
	return l.store.Delete(ctx, CollectionScouting, key)
}

// PendingIDs returns the persisted pending id list.
func (l *Local) PendingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := l.getJSON(ctx, CollectionPending, keyPendingIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetPendingIDs replaces the pending id list and announces the change.
func (l *Local) SetPendingIDs(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := l.putJSON(ctx, CollectionPending, keyPendingIDs, ids)
	if err != nil {
		return err
	}
	l.publish(signal.CollectionPending, raw)
	return nil
}

// Roster returns the roster snapshot.
func (l *Local) Roster(ctx context.Context) ([]model.RosterEntry, error) {
	var entries []model.RosterEntry
	if err := l.getJSON(ctx, CollectionRoster, keySnapshot, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SetRoster replaces the roster snapshot and announces the change.
func (l *Local) SetRoster(ctx context.Context, entries []model.RosterEntry) error {
	if entries == nil {
		entries = []model.RosterEntry{}
	}
	raw, err := l.putJSON(ctx, CollectionRoster, keySnapshot, entries)
	if err != nil {
		return err
	}
	l.publish(signal.CollectionRoster, raw)
	return nil
}

// Schedule returns the schedule snapshot.
func (l *Local) Schedule(ctx context.Context) ([]model.Match, error) {
	var matches []model.Match
	if err := l.getJSON(ctx, CollectionSchedule, keySnapshot, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// SetSchedule replaces the schedule snapshot.
func (l *Local) SetSchedule(ctx context.Context, matches []model.Match) error {
	if matches == nil {
		matches = []model.Match{}
	}
	_, err := l.putJSON(ctx, CollectionSchedule, keySnapshot, matches)
	return err
}

// ClientID returns the install identity, minting and persisting it on first use.
func (l *Local) ClientID(ctx context.Context) (string, error) {
	raw, err := l.store.Get(ctx, CollectionMeta, keyClientID)
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id := uuid.NewString()
	if err := l.store.Put(ctx, CollectionMeta, keyClientID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// SchemaVersion returns the stored schema version, 0 when never set.
func (l *Local) SchemaVersion(ctx context.Context) (int, error) {
	raw, err := l.store.Get(ctx, CollectionMeta, keySchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("decode schema version %q: %w", raw, err)
	}
	return v, nil
}

// SetSchemaVersion persists v.
func (l *Local) SetSchemaVersion(ctx context.Context, v int) error {
	return l.store.Put(ctx, CollectionMeta, keySchemaVersion, []byte(strconv.Itoa(v)))
}

// ScheduleContext returns the selected event key, empty when unset.
func (l *Local) ScheduleContext(ctx context.Context) (string, error) {
	raw, err := l.store.Get(ctx, CollectionMeta, keyScheduleContext)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetScheduleContext persists the selected event key.
func (l *Local) SetScheduleContext(ctx context.Context, eventKey string) error {
	return l.store.Put(ctx, CollectionMeta, keyScheduleContext, []byte(eventKey))
}

// ClearCaches drops the roster and schedule snapshots and the schedule
// context. Scouting records, pending ids and the client identity are kept.
func (l *Local) ClearCaches(ctx context.Context) error {
	for _, k := range []struct{ collection, key string }{
		{CollectionRoster, keySnapshot},
		{CollectionSchedule, keySnapshot},
		{CollectionMeta, keyScheduleContext},
	} {
		if err := l.store.Delete(ctx, k.collection, k.key); err != nil {
			return fmt.Errorf("clear %s/%s: %w", k.collection, k.key, err)
		}
	}
	return nil
}

func (l *Local) getJSON(ctx context.Context, collection, key string, dst any) error {
	raw, err := l.store.Get(ctx, collection, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrCorrupt, collection, key, err)
	}
	return nil
}

func (l *Local) putJSON(ctx context.Context, collection, key string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	if err := l.store.Put(ctx, collection, key, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (l *Local) publish(collection string, value []byte) {
	if l.publisher == nil {
		return
	}
	l.publisher.Publish(signal.Event{Collection: collection, Value: value})
}
