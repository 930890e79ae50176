package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/scoutsync/internal/adapters/http/api"
	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/internal/domain/pending"
	"github.com/okian/scoutsync/internal/domain/types"
	"github.com/okian/scoutsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeSyncer struct {
	busy     bool
	triggers []string
	last     app.RunReport
	hasLast  bool
	success  time.Time
}

func (f *fakeSyncer) Status(context.Context) string  { return "idle · 0 pending · online" }
func (f *fakeSyncer) State() app.State               { return app.StateIdle }
func (f *fakeSyncer) Busy() bool                     { return f.busy }
func (f *fakeSyncer) Online() bool                   { return true }
func (f *fakeSyncer) LastRun() (app.RunReport, bool) { return f.last, f.hasLast }
func (f *fakeSyncer) LastSuccess() time.Time         { return f.success }

func (f *fakeSyncer) Trigger(source string) bool {
	f.triggers = append(f.triggers, source)
	return !f.busy
}

func (f *fakeSyncer) run(source string) (app.RunReport, error) {
	if f.busy {
		return app.RunReport{}, app.ErrBusy
	}
	return app.RunReport{Trigger: source, StartedAt: time.UnixMilli(1), Outcome: app.OutcomeOK}, nil
}

func (f *fakeSyncer) SyncNow(context.Context) (app.RunReport, error)     { return f.run("manual") }
func (f *fakeSyncer) FullRefresh(context.Context) (app.RunReport, error) { return f.run("manual") }
func (f *fakeSyncer) HardReset(context.Context) (app.RunReport, error)   { return f.run("manual") }

type fakeProvider struct{}

func (fakeProvider) Matches(_ context.Context, eventKey string) ([]model.Match, error) {
	if eventKey == "broken" {
		return nil, errors.New("upstream down")
	}
	return []model.Match{
		{ID: eventKey + "_qm2", EventKey: eventKey, CompLevel: "qm", MatchNumber: 2},
		{ID: eventKey + "_qm1", EventKey: eventKey, CompLevel: "qm", MatchNumber: 1},
	}, nil
}

type harness struct {
	mux    *http.ServeMux
	syncer *fakeSyncer
	queue  *pending.Queue
}

func newHarness(opts ...app.ServiceOption) harness {
	local := repository.NewLocal(repository.NewMemoryStore())
	queue := pending.New(local)
	syncer := &fakeSyncer{}
	svc := app.NewService(local, queue, opts...)
	mux := http.NewServeMux()
	api.NewServer(syncer, svc, queue, true).Register(mux)
	return harness{mux: mux, syncer: syncer, queue: queue}
}

func (h harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func TestRecordsEndpoints(t *testing.T) {
	Convey("Given the admin API", t, func() {
		h := newHarness()
		ctx := context.Background()

		Convey("When a record is posted", func() {
			w := h.do(http.MethodPost, "/records",
				`{"match_key":"2026casj_qm1","team_key":"frc254","observer_name":"ada","alliance":"RED","position":2,"auto":{"coral":1}}`)

			Convey("Then it is created, stamped and queued", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var rec model.ScoutingRecord
				So(json.Unmarshal(w.Body.Bytes(), &rec), ShouldBeNil)
				So(rec.ID, ShouldNotBeEmpty)
				So(rec.ClientID, ShouldNotBeEmpty)
				So(rec.Alliance, ShouldEqual, model.AllianceRed)
				So(string(rec.Payload.Auto), ShouldEqual, `{"coral":1}`)

				n, err := h.queue.Len(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then it is listed among unsynced records", func() {
				list := h.do(http.MethodGet, "/records?synced=false", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				var recs []model.ScoutingRecord
				So(json.Unmarshal(list.Body.Bytes(), &recs), ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
			})

			Convey("Then it can be edited through its id", func() {
				var rec model.ScoutingRecord
				So(json.Unmarshal(w.Body.Bytes(), &rec), ShouldBeNil)
				upd := h.do(http.MethodPut, "/records/"+rec.ID,
					`{"match_key":"2026casj_qm1","team_key":"frc254","observer_name":"ada lovelace","alliance":"red","position":2}`)
				So(upd.Code, ShouldEqual, http.StatusOK)
				var got model.ScoutingRecord
				So(json.Unmarshal(upd.Body.Bytes(), &got), ShouldBeNil)
				So(got.ObserverName, ShouldEqual, "ada lovelace")
				So(got.CreatedAt, ShouldEqual, rec.CreatedAt)
			})
		})

		Convey("When a record is missing required fields", func() {
			w := h.do(http.MethodPost, "/records", `{"team_key":"frc254"}`)

			Convey("Then it is rejected with 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
			})
		})

		Convey("When the body carries unknown fields", func() {
			w := h.do(http.MethodPost, "/records", `{"match_key":"m","bogus":true}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an unknown record is updated", func() {
			w := h.do(http.MethodPut, "/records/nope",
				`{"match_key":"m","team_key":"t","observer_name":"o","alliance":"red"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the body id disagrees with the path", func() {
			w := h.do(http.MethodPut, "/records/a", `{"id":"b","match_key":"m"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestSyncEndpoints(t *testing.T) {
	Convey("Given the admin API", t, func() {
		h := newHarness()

		Convey("When a sync is requested without waiting", func() {
			w := h.do(http.MethodPost, "/sync", "")

			Convey("Then a manual trigger is queued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var resp types.TriggerResponse
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Queued, ShouldBeTrue)
				So(h.syncer.triggers, ShouldResemble, []string{"manual"})
			})
		})

		Convey("When a sync is requested inline", func() {
			w := h.do(http.MethodPost, "/sync?wait=true", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var rep app.RunReport
			So(json.Unmarshal(w.Body.Bytes(), &rep), ShouldBeNil)
			So(rep.Outcome, ShouldEqual, app.OutcomeOK)
		})

		Convey("When a refresh arrives during a run", func() {
			h.syncer.busy = true
			refresh := h.do(http.MethodPost, "/refresh", "")
			reset := h.do(http.MethodPost, "/reset", "")

			Convey("Then both are refused with 409", func() {
				So(refresh.Code, ShouldEqual, http.StatusConflict)
				So(reset.Code, ShouldEqual, http.StatusConflict)
				So(refresh.Body.String(), ShouldContainSubstring, "busy")
			})
		})

		Convey("When status is requested", func() {
			h.syncer.hasLast = true
			h.syncer.last = app.RunReport{Trigger: "timer", Outcome: app.OutcomePartial, Error: "push: offline"}
			h.syncer.success = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			_ = h.do(http.MethodPost, "/records",
				`{"match_key":"m","team_key":"t","observer_name":"o","alliance":"blue"}`)
			w := h.do(http.MethodGet, "/status", "")

			Convey("Then it reports state, queue length and the last run", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var st types.Status
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.State, ShouldEqual, "idle")
				So(st.Pending, ShouldEqual, 1)
				So(st.RemoteConfigured, ShouldBeTrue)
				So(st.LastOutcome, ShouldEqual, app.OutcomePartial)
				So(st.LastTrigger, ShouldEqual, "timer")
				So(st.LastError, ShouldEqual, "push: offline")
				So(st.LastSuccess, ShouldEqual, "2026-03-01T12:00:00Z")
			})
		})

		Convey("When metrics are scraped", func() {
			w := h.do(http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestRosterEndpoints(t *testing.T) {
	Convey("Given the admin API", t, func() {
		h := newHarness()

		Convey("When entries are saved", func() {
			So(h.do(http.MethodPost, "/roster", `{"id":"b1","name":"bo","alliance":"blue","position":1}`).Code, ShouldEqual, http.StatusOK)
			So(h.do(http.MethodPost, "/roster", `{"id":"r1","name":"ri","alliance":"red","position":1}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then the list shows red first", func() {
				var entries []model.RosterEntry
				So(json.Unmarshal(h.do(http.MethodGet, "/roster", "").Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].ID, ShouldEqual, "r1")
			})

			Convey("Then a deleted entry disappears", func() {
				So(h.do(http.MethodDelete, "/roster/r1", "").Code, ShouldEqual, http.StatusNoContent)
				var entries []model.RosterEntry
				So(json.Unmarshal(h.do(http.MethodGet, "/roster", "").Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].ID, ShouldEqual, "b1")
			})
		})

		Convey("When an unknown entry is deleted", func() {
			So(h.do(http.MethodDelete, "/roster/ghost", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When an entry has no name", func() {
			So(h.do(http.MethodPost, "/roster", `{"alliance":"red"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the roster is empty", func() {
			w := h.do(http.MethodGet, "/roster", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestScheduleEndpoints(t *testing.T) {
	Convey("Given an API without a schedule provider", t, func() {
		h := newHarness()

		Convey("When an import is requested", func() {
			w := h.do(http.MethodPost, "/schedule/import", `{"event_key":"2026casj"}`)

			Convey("Then it answers 503", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})

	Convey("Given an API with a schedule provider and a default event", t, func() {
		h := newHarness(app.WithScheduleProvider(fakeProvider{}), app.WithDefaultEventKey("2026casj"))

		Convey("When an import is requested without a body", func() {
			w := h.do(http.MethodPost, "/schedule/import", "")

			Convey("Then the default event is imported and listed in order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp types.ImportResponse
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Imported, ShouldEqual, 2)

				var matches []model.Match
				So(json.Unmarshal(h.do(http.MethodGet, "/schedule", "").Body.Bytes(), &matches), ShouldBeNil)
				So(matches, ShouldHaveLength, 2)
				So(matches[0].ID, ShouldEqual, "2026casj_qm1")
			})
		})

		Convey("When the provider fails", func() {
			w := h.do(http.MethodPost, "/schedule/import", `{"event_key":"broken"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}
