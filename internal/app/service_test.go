package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/internal/domain/pending"
	"github.com/okian/scoutsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type countingSyncer struct{ n atomic.Int32 }

func (c *countingSyncer) Trigger(string) bool {
	c.n.Add(1)
	return true
}

type fakeProvider struct {
	matches []model.Match
	err     error
}

func (f fakeProvider) Matches(_ context.Context, eventKey string) ([]model.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Match, len(f.matches))
	copy(out, f.matches)
	return out, nil
}

func TestServiceCapture(t *testing.T) {
	Convey("Given a capture service", t, func() {
		ctx := context.Background()
		local := repository.NewLocal(repository.NewMemoryStore())
		queue := pending.New(local)
		syncer := &countingSyncer{}
		clock := time.UnixMilli(1_000_000)
		svc := app.NewService(local, queue,
			app.WithSyncer(syncer),
			app.WithServiceClock(func() time.Time { return clock }))

		Convey("When a complete record is captured without an id", func() {
			rec, err := svc.Capture(ctx, model.ScoutingRecord{
				MatchKey: "2026casj_qm2", TeamKey: "frc1678", ObserverName: "grace", Alliance: "Blue",
			})
			So(err, ShouldBeNil)

			Convey("Then it should be stamped, stored and queued", func() {
				So(rec.ID, ShouldNotBeEmpty)
				So(rec.CreatedAt, ShouldEqual, 1_000_000)
				So(rec.Alliance, ShouldEqual, model.AllianceBlue)
				clientID, _ := local.ClientID(ctx)
				So(rec.ClientID, ShouldEqual, clientID)

				stored, err := local.Record(ctx, rec.ID)
				So(err, ShouldBeNil)
				So(stored.Synced, ShouldBeFalse)

				ids, _ := queue.All(ctx)
				So(ids, ShouldResemble, []string{rec.ID})
				So(syncer.n.Load(), ShouldEqual, 1)
			})

			Convey("And it is edited after being synced", func() {
				stored, _ := local.Record(ctx, rec.ID)
				stored.MarkSynced(2)
				So(local.PutRecord(ctx, stored), ShouldBeNil)
				_, _ = queue.Dequeue(ctx, rec.ID)

				edit := stored
				edit.TeamKey = "frc971"
				edit.ClientID = "forged"
				updated, err := svc.UpdateRecord(ctx, edit)

				Convey("Then it should be unsynced and queued again", func() {
					So(err, ShouldBeNil)
					So(updated.Synced, ShouldBeFalse)
					So(updated.UpdatedAt, ShouldEqual, 1_000_000)
					So(updated.ClientID, ShouldEqual, rec.ClientID)
					ids, _ := queue.All(ctx)
					So(ids, ShouldResemble, []string{rec.ID})
				})
			})
		})

		Convey("When a record misses required fields", func() {
			_, err := svc.Capture(ctx, model.ScoutingRecord{MatchKey: "2026casj_qm2"})

			Convey("Then nothing should be stored or queued", func() {
				So(errors.Is(err, app.ErrInvalidRecord), ShouldBeTrue)
				recs, _ := svc.Records(ctx)
				So(recs, ShouldBeEmpty)
				n, _ := queue.Len(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the alliance is unknown", func() {
			_, err := svc.Capture(ctx, model.ScoutingRecord{
				MatchKey: "m", TeamKey: "t", ObserverName: "o", Alliance: "green",
			})
			So(errors.Is(err, app.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When updating a record that does not exist", func() {
			_, err := svc.UpdateRecord(ctx, model.ScoutingRecord{ID: "nope"})
			So(errors.Is(err, app.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestServiceRoster(t *testing.T) {
	Convey("Given a roster managed through the service", t, func() {
		ctx := context.Background()
		local := repository.NewLocal(repository.NewMemoryStore())
		syncer := &countingSyncer{}
		now := int64(5_000)
		svc := app.NewService(local, pending.New(local),
			app.WithSyncer(syncer),
			app.WithServiceClock(func() time.Time { return time.UnixMilli(now) }))

		ada, err := svc.SaveRosterEntry(ctx, model.RosterEntry{Name: "ada", Alliance: model.AllianceRed, Position: 1})
		So(err, ShouldBeNil)
		_, err = svc.SaveRosterEntry(ctx, model.RosterEntry{Name: "grace", Alliance: model.AllianceBlue, Position: 1})
		So(err, ShouldBeNil)

		Convey("Then entries should be stamped and listed", func() {
			So(ada.ID, ShouldNotBeEmpty)
			So(ada.UpdatedAt, ShouldEqual, 5_000)
			live, _ := svc.Roster(ctx)
			So(len(live), ShouldEqual, 2)
			So(live[0].Name, ShouldEqual, "ada")
			So(syncer.n.Load(), ShouldEqual, 2)
		})

		Convey("When an entry is saved twice within the same millisecond", func() {
			ada.Position = 2
			again, err := svc.SaveRosterEntry(ctx, ada)

			Convey("Then the newer save should still carry a later timestamp", func() {
				So(err, ShouldBeNil)
				So(again.UpdatedAt, ShouldEqual, 5_001)
			})
		})

		Convey("When an entry is deleted", func() {
			now = 9_000
			So(svc.DeleteRosterEntry(ctx, ada.ID), ShouldBeNil)

			Convey("Then it should become a tombstone, not disappear", func() {
				all, _ := local.Roster(ctx)
				So(len(all), ShouldEqual, 2)
				live, _ := svc.Roster(ctx)
				So(len(live), ShouldEqual, 1)
				for _, e := range all {
					if e.ID == ada.ID {
						So(e.DeletedAtMS(), ShouldEqual, 9_000)
						So(e.UpdatedAt, ShouldEqual, 9_000)
					}
				}
			})

			Convey("Then deleting again should be a no-op", func() {
				So(svc.DeleteRosterEntry(ctx, ada.ID), ShouldBeNil)
			})
		})

		Convey("When deleting an unknown entry", func() {
			So(errors.Is(svc.DeleteRosterEntry(ctx, "missing"), app.ErrNotFound), ShouldBeTrue)
		})

		Convey("When saving an entry without a name", func() {
			_, err := svc.SaveRosterEntry(ctx, model.RosterEntry{})
			So(errors.Is(err, app.ErrInvalidRecord), ShouldBeTrue)
		})
	})
}

func TestServiceSchedule(t *testing.T) {
	Convey("Given a schedule provider", t, func() {
		ctx := context.Background()
		local := repository.NewLocal(repository.NewMemoryStore())
		provider := fakeProvider{matches: []model.Match{
			{ID: "2026casj_qm2", CompLevel: "qm", MatchNumber: 2},
			{ID: "2026casj_qm1", CompLevel: "qm", MatchNumber: 1},
			{ID: "2026casj_f1m1", CompLevel: "f", MatchNumber: 1},
		}}
		svc := app.NewService(local, pending.New(local),
			app.WithScheduleProvider(provider),
			app.WithDefaultEventKey("2026casj"),
			app.WithServiceClock(func() time.Time { return time.UnixMilli(7_000) }))

		So(local.SetSchedule(ctx, []model.Match{{ID: "2025old_qm1", EventKey: "2025old", CompLevel: "qm", MatchNumber: 1}}), ShouldBeNil)

		Convey("When the default event is imported", func() {
			n, err := svc.ImportSchedule(ctx, "")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			Convey("Then only the selected event should be listed in play order", func() {
				matches, err := svc.Schedule(ctx)
				So(err, ShouldBeNil)
				So(len(matches), ShouldEqual, 3)
				So(matches[0].ID, ShouldEqual, "2026casj_qm1")
				So(matches[2].ID, ShouldEqual, "2026casj_f1m1")
				So(matches[0].UpdatedAt, ShouldEqual, 7_000)
				So(matches[0].EventKey, ShouldEqual, "2026casj")
			})

			Convey("Then other events should be kept in the snapshot", func() {
				all, _ := local.Schedule(ctx)
				So(len(all), ShouldEqual, 4)
			})

			Convey("Then importing again should replace rather than duplicate", func() {
				_, err := svc.ImportSchedule(ctx, "2026casj")
				So(err, ShouldBeNil)
				all, _ := local.Schedule(ctx)
				So(len(all), ShouldEqual, 4)
			})
		})

		Convey("When no provider is configured", func() {
			_, err := app.NewService(local, pending.New(local)).ImportSchedule(ctx, "2026casj")
			So(err, ShouldEqual, app.ErrNoProvider)
		})

		Convey("When the provider fails", func() {
			boom := errors.New("boom")
			failing := app.NewService(local, pending.New(local), app.WithScheduleProvider(fakeProvider{err: boom}))
			_, err := failing.ImportSchedule(ctx, "2026casj")
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})
}
