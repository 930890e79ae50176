package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/okian/scoutsync/internal/adapters/remote"
	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/internal/domain/pending"
	"github.com/okian/scoutsync/internal/domain/push"
	"github.com/okian/scoutsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fixture struct {
	ctx    context.Context
	local  *repository.Local
	queue  *pending.Queue
	client *remote.MemoryClient
	sleeps []time.Duration
}

func newFixture(n int) *fixture {
	f := &fixture{
		ctx:    context.Background(),
		local:  repository.NewLocal(repository.NewMemoryStore()),
		client: remote.NewMemoryClient(),
	}
	f.queue = pending.New(f.local)
	for i := 0; i < n; i++ {
		rec := model.ScoutingRecord{
			ID:           fmt.Sprintf("r-%03d", i),
			MatchKey:     "2026casj_qm1",
			TeamKey:      fmt.Sprintf("frc%d", 100+i),
			ObserverName: "ada",
			Alliance:     model.AllianceRed,
			Position:     1,
			Payload:      model.Payload{Auto: json.RawMessage(`{"coral":1}`)},
			ClientID:     "client-a",
			CreatedAt:    int64(1000 + i),
		}
		if err := f.local.PutRecord(f.ctx, rec); err != nil {
			panic(err)
		}
		if _, err := f.queue.Enqueue(f.ctx, rec.ID); err != nil {
			panic(err)
		}
	}
	return f
}

func (f *fixture) pusher(client remote.Client, opts ...push.Option) *push.Pusher {
	base := []push.Option{
		push.WithClock(func() time.Time { return time.UnixMilli(5000) }),
		push.WithSleeper(func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return ctx.Err()
		}),
	}
	return push.New(f.local, f.queue, client, append(base, opts...)...)
}

func (f *fixture) record(id string) model.ScoutingRecord {
	rec, err := f.local.Record(f.ctx, id)
	So(err, ShouldBeNil)
	return rec
}

// editingClient edits a record locally while its batch is in flight.
type editingClient struct {
	*remote.MemoryClient
	local *repository.Local
	id    string
}

func (c editingClient) Upsert(ctx context.Context, collection string, rows []json.RawMessage, key string) (remote.UpsertReport, error) {
	rec, err := c.local.Record(ctx, c.id)
	if err == nil {
		rec.MarkDirty(9000)
		_ = c.local.PutRecord(ctx, rec)
	}
	return c.MemoryClient.Upsert(ctx, collection, rows, key)
}

func TestPush(t *testing.T) {
	Convey("Given pending scouting records", t, func() {
		f := newFixture(120)

		Convey("When no remote client is configured", func() {
			res, err := f.pusher(nil).Push(f.ctx)

			Convey("Then the push should be skipped and nothing touched", func() {
				So(err, ShouldBeNil)
				So(res.Skipped, ShouldBeTrue)
				n, _ := f.queue.Len(f.ctx)
				So(n, ShouldEqual, 120)
			})
		})

		Convey("When the remote is healthy", func() {
			res, err := f.pusher(f.client).Push(f.ctx)
			So(err, ShouldBeNil)

			Convey("Then records should go out in batches of fifty", func() {
				So(res.Pending, ShouldEqual, 120)
				So(res.Batches, ShouldEqual, 3)
				So(res.Pushed, ShouldEqual, 120)
				So(res.FailedBatches, ShouldEqual, 0)
				batches := f.client.UpsertBatches()
				So(len(batches), ShouldEqual, 3)
				So(len(batches[0]), ShouldEqual, 50)
				So(len(batches[2]), ShouldEqual, 20)
			})

			Convey("Then every record should be synced and dequeued", func() {
				n, _ := f.queue.Len(f.ctx)
				So(n, ShouldEqual, 0)
				rec := f.record("r-007")
				So(rec.Synced, ShouldBeTrue)
				So(*rec.SyncedAt, ShouldEqual, 5000)
				So(len(f.client.Rows(remote.CollectionScouting)), ShouldEqual, 120)
			})

			Convey("Then rows should use the wire shape", func() {
				var row map[string]any
				So(json.Unmarshal(f.client.Rows(remote.CollectionScouting)["r-000"], &row), ShouldBeNil)
				So(row["scouter_name"], ShouldEqual, "ada")
				So(row, ShouldNotContainKey, "synced")
			})

			Convey("Then a second push should have nothing to do", func() {
				again, err := f.pusher(f.client).Push(f.ctx)
				So(err, ShouldBeNil)
				So(again.Pending, ShouldEqual, 0)
				So(again.Batches, ShouldEqual, 0)
			})
		})

		Convey("When a pending id has no backing record", func() {
			_, _ = f.queue.Enqueue(f.ctx, "ghost")
			res, err := f.pusher(f.client).Push(f.ctx)

			Convey("Then it should be dropped from the queue", func() {
				So(err, ShouldBeNil)
				So(res.Orphaned, ShouldEqual, 1)
				So(res.Pushed, ShouldEqual, 120)
				ids, _ := f.queue.All(f.ctx)
				So(ids, ShouldBeEmpty)
			})
		})

		Convey("When the remote fails transiently", func() {
			transient := &remote.Error{Op: "upsert", Status: 503, Err: errors.New("busy")}
			f.client.FailNext(transient, transient)
			res, err := f.pusher(f.client).Push(f.ctx)

			Convey("Then the batch should be retried with doubling backoff", func() {
				So(err, ShouldBeNil)
				So(res.Retries, ShouldEqual, 2)
				So(res.Pushed, ShouldEqual, 120)
				So(f.sleeps, ShouldResemble, []time.Duration{500 * time.Millisecond, time.Second})
			})
		})

		Convey("When the remote stays unreachable", func() {
			f.client.SetOffline(true)
			res, err := f.pusher(f.client, push.WithBatchSize(200)).Push(f.ctx)

			Convey("Then retries should be bounded and the batch left fully pending", func() {
				So(err, ShouldBeNil)
				So(res.Batches, ShouldEqual, 1)
				So(res.FailedBatches, ShouldEqual, 1)
				So(res.Retries, ShouldEqual, 6)
				So(res.Pushed, ShouldEqual, 0)
				So(f.client.Calls("upsert"), ShouldEqual, 7)
				So(f.sleeps[5], ShouldEqual, 16*time.Second)
				n, _ := f.queue.Len(f.ctx)
				So(n, ShouldEqual, 120)
				So(f.record("r-000").Synced, ShouldBeFalse)
			})

			Convey("Then the next run should deliver once connectivity returns", func() {
				f.client.SetOffline(false)
				res, err := f.pusher(f.client).Push(f.ctx)
				So(err, ShouldBeNil)
				So(res.Pushed, ShouldEqual, 120)
			})
		})

		Convey("When the backoff is capped", func() {
			f.client.SetOffline(true)
			_, _ = f.pusher(f.client, push.WithBatchSize(200), push.WithMaxBackoff(2*time.Second)).Push(f.ctx)

			Convey("Then no delay should exceed the cap", func() {
				So(f.sleeps, ShouldResemble, []time.Duration{
					500 * time.Millisecond, time.Second, 2 * time.Second,
					2 * time.Second, 2 * time.Second, 2 * time.Second,
				})
			})
		})

		Convey("When the remote rejects the batch permanently", func() {
			f.client.FailNext(&remote.Error{Op: "upsert", Status: 400, Err: errors.New("bad")})
			res, err := f.pusher(f.client, push.WithBatchSize(200)).Push(f.ctx)

			Convey("Then it should not be retried", func() {
				So(err, ShouldBeNil)
				So(res.Retries, ShouldEqual, 0)
				So(res.FailedBatches, ShouldEqual, 1)
				So(f.client.Calls("upsert"), ShouldEqual, 1)
			})
		})

		Convey("When the remote reports which rows it accepted", func() {
			f.client.AcceptOnly(func(_, id string) bool { return id != "r-002" })
			res, err := f.pusher(f.client).Push(f.ctx)

			Convey("Then only accepted rows should be marked synced", func() {
				So(err, ShouldBeNil)
				So(res.Pushed, ShouldEqual, 119)
				So(res.FailedBatches, ShouldEqual, 1)
				ids, _ := f.queue.All(f.ctx)
				So(ids, ShouldResemble, []string{"r-002"})
				So(f.record("r-002").Synced, ShouldBeFalse)
			})
		})

		Convey("When a record is edited while its batch is in flight", func() {
			client := editingClient{MemoryClient: f.client, local: f.local, id: "r-001"}
			res, err := f.pusher(client, push.WithBatchSize(200)).Push(f.ctx)

			Convey("Then it should stay pending for the next push", func() {
				So(err, ShouldBeNil)
				So(res.Pushed, ShouldEqual, 119)
				ids, _ := f.queue.All(f.ctx)
				So(ids, ShouldResemble, []string{"r-001"})
				So(f.record("r-001").Synced, ShouldBeFalse)
			})
		})

		Convey("When the context ends during backoff", func() {
			ctx, cancel := context.WithCancel(f.ctx)
			f.client.SetOffline(true)
			p := push.New(f.local, f.queue, f.client, push.WithSleeper(func(ctx context.Context, _ time.Duration) error {
				cancel()
				return ctx.Err()
			}))
			res, err := p.Push(ctx)

			Convey("Then the push should stop and keep everything pending", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(res.Pushed, ShouldEqual, 0)
				n, _ := f.queue.Len(f.ctx)
				So(n, ShouldEqual, 120)
			})
		})
	})
}
