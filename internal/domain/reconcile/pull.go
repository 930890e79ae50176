package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/scoutsync/internal/adapters/remote"
	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/pkg/logger"
	"github.com/okian/scoutsync/pkg/metrics"
)

// Snapshots is the local storage of the pulled collections.
type Snapshots interface {
	Roster(ctx context.Context) ([]model.RosterEntry, error)
	SetRoster(ctx context.Context, entries []model.RosterEntry) error
	Schedule(ctx context.Context) ([]model.Match, error)
	SetSchedule(ctx context.Context, matches []model.Match) error
}

// CollectionResult summarizes the pull of one collection.
type CollectionResult struct {
	Collection    string `json:"collection"`
	Merged        int    `json:"merged"`
	LocalWins     int    `json:"local_wins"`
	RemoteWins    int    `json:"remote_wins"`
	Pushed        int    `json:"pushed"`
	BadRows       int    `json:"bad_rows"`
	BadTimestamps int    `json:"bad_timestamps"`
	Err           error  `json:"-"`
}

// PullResult summarizes one Pull.
type PullResult struct {
	Roster   CollectionResult `json:"roster"`
	Schedule CollectionResult `json:"schedule"`
	Skipped  bool             `json:"skipped"`
}

// Puller pulls remote snapshots, merges them into the local ones and sends
// locally authoritative entities back upstream. A nil client skips the pull.
type Puller struct {
	local  Snapshots
	client remote.Client
	log    logger.Logger
}

// NewPuller creates a Puller.
func NewPuller(local Snapshots, client remote.Client) *Puller {
	return &Puller{local: local, client: client, log: logger.Get().Named("puller")}
}

// Pull reconciles the roster and the schedule. Each collection is handled
// on its own; one failing does not stop the other. Errors are joined.
func (p *Puller) Pull(ctx context.Context) (PullResult, error) {
	if p.client == nil {
		return PullResult{Skipped: true}, nil
	}

	roster := pullCollection(ctx, p, remote.CollectionRoster,
		p.local.Roster, p.local.SetRoster,
		model.RosterWire.Entry, model.RosterEntry.Wire)
	sched := pullCollection(ctx, p, remote.CollectionMatches,
		p.local.Schedule, p.local.SetSchedule,
		model.MatchWire.Match, model.Match.Wire)

	return PullResult{Roster: roster, Schedule: sched}, errors.Join(roster.Err, sched.Err)
}

func pullCollection[L Entity, R Row](
	ctx context.Context,
	p *Puller,
	collection string,
	load func(context.Context) ([]L, error),
	save func(context.Context, []L) error,
	adopt func(R) L,
	toWire func(L) R,
) (res CollectionResult) {
	res.Collection = collection
	defer func() {
		if res.Err != nil {
			metrics.RecordPullError(collection)
			p.log.Warn(ctx, "pull failed", logger.String("collection", collection), logger.Error(res.Err))
		}
	}()

	raw, err := p.client.SelectAll(ctx, collection)
	if err != nil {
		res.Err = fmt.Errorf("select %s: %w", collection, err)
		return res
	}
	rows, bad := remote.Unmarshal[R](raw)
	res.BadRows = bad

	local, err := load(ctx)
	if err != nil {
		res.Err = fmt.Errorf("load local %s: %w", collection, err)
		return res
	}

	merged := Merge(local, rows, adopt)
	res.Merged = len(merged.Merged)
	res.BadTimestamps = merged.BadTimestamps
	for _, d := range merged.Decisions {
		if d.Winner == WinnerLocal {
			res.LocalWins++
		} else {
			res.RemoteWins++
		}
		metrics.RecordMergeDecision(collection, string(d.Winner))
	}
	if res.BadRows > 0 || res.BadTimestamps > 0 {
		p.log.Warn(ctx, "remote rows with unreadable fields",
			logger.String("collection", collection),
			logger.Int("bad_rows", res.BadRows),
			logger.Int("bad_timestamps", res.BadTimestamps))
	}

	if err := save(ctx, merged.Merged); err != nil {
		res.Err = fmt.Errorf("save merged %s: %w", collection, err)
		return res
	}

	if len(merged.ToUpsert) == 0 {
		return res
	}
	wire := make([]R, 0, len(merged.ToUpsert))
	for _, l := range merged.ToUpsert {
		wire = append(wire, toWire(l))
	}
	body, err := remote.Marshal(wire)
	if err != nil {
		res.Err = fmt.Errorf("encode %s upserts: %w", collection, err)
		return res
	}
	if _, err := p.client.Upsert(ctx, collection, body, remote.DefaultConflictKey); err != nil {
		res.Err = fmt.Errorf("push %s changes: %w", collection, err)
		return res
	}
	res.Pushed = len(wire)
	metrics.RecordUpstreamChanges(collection, res.Pushed)
	return res
}
