package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scoutsync/internal/adapters/mq/queue"
	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/internal/adapters/schedule"
	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/pkg/logger"
	"github.com/okian/scoutsync/pkg/metrics"
)

// Syncer accepts sync triggers without blocking.
type Syncer interface {
	Trigger(source string) bool
}

// ScheduleProvider fetches the matches of an event.
type ScheduleProvider interface {
	Matches(ctx context.Context, eventKey string) ([]model.Match, error)
}

// Enqueuer is the pending queue as seen by local writes.
type Enqueuer interface {
	Enqueue(ctx context.Context, ids ...string) (int, error)
}

// Service is the local write and read path. Writes never touch the network:
// they persist, enqueue and fire a trigger.
type Service struct {
	local    *repository.Local
	pending  Enqueuer
	syncer   Syncer
	provider ScheduleProvider
	eventKey string
	now      func() time.Time
	log      logger.Logger
}

// NewService creates a Service.
func NewService(local *repository.Local, pending Enqueuer, opts ...ServiceOption) *Service {
	s := &Service{
		local:   local,
		pending: pending,
		now:     time.Now,
		log:     logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture stores a new scouting record and queues it for push. A missing id
// is generated; the client identity and creation time are stamped.
func (s *Service) Capture(ctx context.Context, rec model.ScoutingRecord) (model.ScoutingRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	clientID, err := s.local.ClientID(ctx)
	if err != nil {
		return rec, fmt.Errorf("client identity: %w", err)
	}
	rec.ClientID = clientID
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().UnixMilli()
	}
	rec.Synced = false
	rec.SyncedAt = nil
	rec.Alliance = model.Alliance(strings.ToLower(string(rec.Alliance)))

	if err := validate(rec); err != nil {
		return rec, err
	}
	err = s.local.LockRecords(ctx, func(ctx context.Context) error {
		if err := s.local.PutRecord(ctx, rec); err != nil {
			return err
		}
		_, err := s.pending.Enqueue(ctx, rec.ID)
		return err
	})
	if err != nil {
		return rec, err
	}

	metrics.RecordRecordCaptured()
	s.log.Debug(ctx, "record captured",
		logger.String("id", rec.ID),
		logger.String("match", rec.MatchKey),
		logger.String("team", rec.TeamKey))
	s.trigger()
	return rec, nil
}

// UpdateRecord edits a stored record, synced or not, and queues it again.
// Identity fields (id, client id, creation time) are kept from the stored copy.
func (s *Service) UpdateRecord(ctx context.Context, rec model.ScoutingRecord) (model.ScoutingRecord, error) {
	err := s.local.LockRecords(ctx, func(ctx context.Context) error {
		stored, err := s.local.Record(ctx, rec.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: record %s", ErrNotFound, rec.ID)
		}
		if err != nil {
			return err
		}

		rec.ClientID = stored.ClientID
		rec.CreatedAt = stored.CreatedAt
		rec.Alliance = model.Alliance(strings.ToLower(string(rec.Alliance)))
		rec.MarkDirty(max(s.now().UnixMilli(), stored.UpdatedAt+1))

		if err := validate(rec); err != nil {
			return err
		}
		if err := s.local.PutRecord(ctx, rec); err != nil {
			return err
		}
		_, err = s.pending.Enqueue(ctx, rec.ID)
		return err
	})
	if err != nil {
		return rec, err
	}
	s.trigger()
	return rec, nil
}

// Records returns every local scouting record.
func (s *Service) Records(ctx context.Context) ([]model.ScoutingRecord, error) {
	return s.local.Records(ctx)
}

// SaveRosterEntry creates or replaces a roster entry and stamps UpdatedAt.
func (s *Service) SaveRosterEntry(ctx context.Context, entry model.RosterEntry) (model.RosterEntry, error) {
	if strings.TrimSpace(entry.Name) == "" {
		return entry, fmt.Errorf("%w: roster entry needs a name", ErrInvalidRecord)
	}
	if entry.Alliance != "" && !entry.Alliance.Valid() {
		return entry, fmt.Errorf("%w: alliance %q", ErrInvalidRecord, entry.Alliance)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	roster, err := s.local.Roster(ctx)
	if err != nil {
		return entry, err
	}
	entry.DeletedAt = nil
	entry.UpdatedAt = s.stamp(roster, entry.ID)

	replaced := false
	for i := range roster {
		if roster[i].ID == entry.ID {
			roster[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		roster = append(roster, entry)
	}
	if err := s.local.SetRoster(ctx, roster); err != nil {
		return entry, err
	}
	s.trigger()
	return entry, nil
}

// DeleteRosterEntry tombstones an entry. The row stays until both sides agree.
func (s *Service) DeleteRosterEntry(ctx context.Context, id string) error {
	roster, err := s.local.Roster(ctx)
	if err != nil {
		return err
	}
	for i := range roster {
		if roster[i].ID != id {
			continue
		}
		if roster[i].Deleted() {
			return nil
		}
		at := s.stamp(roster, id)
		roster[i].UpdatedAt = at
		roster[i].DeletedAt = &at
		if err := s.local.SetRoster(ctx, roster); err != nil {
			return err
		}
		s.trigger()
		return nil
	}
	return fmt.Errorf("%w: roster entry %s", ErrNotFound, id)
}

// Roster returns live roster entries ordered by alliance, position and name.
func (s *Service) Roster(ctx context.Context) ([]model.RosterEntry, error) {
	all, err := s.local.Roster(ctx)
	if err != nil {
		return nil, err
	}
	live := make([]model.RosterEntry, 0, len(all))
	for _, e := range all {
		if !e.Deleted() {
			live = append(live, e)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].Alliance != live[j].Alliance {
			return live[i].Alliance > live[j].Alliance
		}
		if live[i].Position != live[j].Position {
			return live[i].Position < live[j].Position
		}
		return live[i].Name < live[j].Name
	})
	return live, nil
}

// ImportSchedule fetches an event's matches from the schedule provider and
// merges them into the local schedule. An empty key uses the default event.
func (s *Service) ImportSchedule(ctx context.Context, eventKey string) (int, error) {
	if s.provider == nil {
		return 0, ErrNoProvider
	}
	if eventKey == "" {
		eventKey = s.eventKey
	}
	if eventKey == "" {
		return 0, fmt.Errorf("%w: event key is required", ErrInvalidRecord)
	}

	fetched, err := s.provider.Matches(ctx, eventKey)
	if err != nil {
		return 0, err
	}
	current, err := s.local.Schedule(ctx)
	if err != nil {
		return 0, err
	}

	stamp := s.now().UnixMilli()
	byID := make(map[string]int, len(current))
	for i, m := range current {
		byID[m.ID] = i
	}
	for _, m := range fetched {
		m.EventKey = eventKey
		m.UpdatedAt = stamp
		m.DeletedAt = nil
		if i, ok := byID[m.ID]; ok {
			current[i] = m
			continue
		}
		byID[m.ID] = len(current)
		current = append(current, m)
	}

	if err := s.local.SetSchedule(ctx, current); err != nil {
		return 0, err
	}
	if err := s.local.SetScheduleContext(ctx, eventKey); err != nil {
		return 0, err
	}
	s.log.Info(ctx, "schedule imported",
		logger.String("event", eventKey),
		logger.Int("matches", len(fetched)))
	return len(fetched), nil
}

// Schedule returns the live matches of the selected event, or of every event
// when none is selected.
func (s *Service) Schedule(ctx context.Context) ([]model.Match, error) {
	all, err := s.local.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	event, err := s.local.ScheduleContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Match, 0, len(all))
	for _, m := range all {
		if m.DeletedAt != nil || (event != "" && m.EventKey != event) {
			continue
		}
		out = append(out, m)
	}
	schedule.SortMatches(out)
	return out, nil
}

// stamp returns now, nudged past the entry's stored UpdatedAt so a local
// edit always wins against its own previous version.
func (s *Service) stamp(roster []model.RosterEntry, id string) int64 {
	at := s.now().UnixMilli()
	for _, e := range roster {
		if e.ID == id && e.UpdatedAt >= at {
			at = e.UpdatedAt + 1
		}
	}
	return at
}

func (s *Service) trigger() {
	if s.syncer != nil {
		s.syncer.Trigger(queue.SourcePending)
	}
}

func validate(rec model.ScoutingRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if rec.Alliance != "" && !rec.Alliance.Valid() {
		return fmt.Errorf("%w: alliance %q", ErrInvalidRecord, rec.Alliance)
	}
	return nil
}
