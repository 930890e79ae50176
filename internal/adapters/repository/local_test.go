package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okian/scoutsync/internal/adapters/signal"
	"github.com/okian/scoutsync/internal/domain/model"
)

type recordingPublisher struct {
	events []signal.Event
}

func (p *recordingPublisher) Publish(ev signal.Event) { p.events = append(p.events, ev) }

func TestLocal_Records(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryStore())

	require.NoError(t, local.PutRecord(ctx, model.ScoutingRecord{ID: "b", CreatedAt: 2}))
	require.NoError(t, local.PutRecord(ctx, model.ScoutingRecord{ID: "a", CreatedAt: 2}))
	require.NoError(t, local.PutRecord(ctx, model.ScoutingRecord{ID: "c", CreatedAt: 1}))
	require.NoError(t, local.Store().Put(ctx, CollectionScouting, "garbage", []byte("{not json")))

	recs, err := local.Records(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	require.Equal(t, []string{"c", "a", "b"}, ids)

	byKey, bad, err := local.RecordsByKey(ctx)
	require.NoError(t, err)
	require.Len(t, byKey, 3)
	require.Equal(t, []string{"garbage"}, bad)

	found, missing, err := local.RecordsByID(ctx, []string{"a", "zzz", "garbage"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, []string{"zzz", "garbage"}, missing)

	_, err = local.Record(ctx, "garbage")
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestLocal_PendingAndRosterPublish(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	local := NewLocal(NewMemoryStore(), WithPublisher(pub))

	ids, err := local.PendingIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, local.SetPendingIDs(ctx, []string{"x", "y"}))
	ids, err = local.PendingIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, ids)

	require.NoError(t, local.SetRoster(ctx, []model.RosterEntry{{ID: "s1", Name: "Ada", UpdatedAt: 5}}))
	require.NoError(t, local.SetSchedule(ctx, []model.Match{{ID: "m1"}}))

	require.Len(t, pub.events, 2)
	require.Equal(t, signal.CollectionPending, pub.events[0].Collection)
	require.JSONEq(t, `["x","y"]`, string(pub.events[0].Value))
	require.Equal(t, signal.CollectionRoster, pub.events[1].Collection)

	var roster []model.RosterEntry
	require.NoError(t, json.Unmarshal(pub.events[1].Value, &roster))
	require.Equal(t, "Ada", roster[0].Name)
}

func TestLocal_Meta(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryStore())

	id1, err := local.ClientID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	id2, err := local.ClientID(ctx)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "client identity must not be regenerated")

	v, err := local.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Zero(t, v)
	require.NoError(t, local.SetSchemaVersion(ctx, 2))
	v, err = local.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	require.NoError(t, local.SetScheduleContext(ctx, "2026casj"))
	ev, err := local.ScheduleContext(ctx)
	require.NoError(t, err)
	require.Equal(t, "2026casj", ev)
}

func TestLocal_ClearCachesKeepsRecords(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryStore())

	require.NoError(t, local.PutRecord(ctx, model.ScoutingRecord{ID: "r1"}))
	require.NoError(t, local.SetPendingIDs(ctx, []string{"r1"}))
	require.NoError(t, local.SetRoster(ctx, []model.RosterEntry{{ID: "s1"}}))
	require.NoError(t, local.SetSchedule(ctx, []model.Match{{ID: "m1"}}))
	require.NoError(t, local.SetScheduleContext(ctx, "2026casj"))
	clientID, err := local.ClientID(ctx)
	require.NoError(t, err)

	require.NoError(t, local.ClearCaches(ctx))

	roster, err := local.Roster(ctx)
	require.NoError(t, err)
	require.Empty(t, roster)
	schedule, err := local.Schedule(ctx)
	require.NoError(t, err)
	require.Empty(t, schedule)
	ev, err := local.ScheduleContext(ctx)
	require.NoError(t, err)
	require.Empty(t, ev)

	_, err = local.Record(ctx, "r1")
	require.NoError(t, err)
	ids, err := local.PendingIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, ids)
	again, err := local.ClientID(ctx)
	require.NoError(t, err)
	require.Equal(t, clientID, again)
}
