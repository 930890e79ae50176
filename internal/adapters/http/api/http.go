// Package api serves the admin HTTP API: sync status and control, record
// capture, roster and schedule management, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/domain/model"
)

// Syncer is the orchestrator as seen by the API.
type Syncer interface {
	Status(ctx context.Context) string
	State() app.State
	Busy() bool
	Online() bool
	LastRun() (app.RunReport, bool)
	LastSuccess() time.Time
	Trigger(source string) bool
	SyncNow(ctx context.Context) (app.RunReport, error)
	FullRefresh(ctx context.Context) (app.RunReport, error)
	HardReset(ctx context.Context) (app.RunReport, error)
}

// Recorder is the local write and read path.
type Recorder interface {
	Capture(ctx context.Context, rec model.ScoutingRecord) (model.ScoutingRecord, error)
	UpdateRecord(ctx context.Context, rec model.ScoutingRecord) (model.ScoutingRecord, error)
	Records(ctx context.Context) ([]model.ScoutingRecord, error)
	SaveRosterEntry(ctx context.Context, entry model.RosterEntry) (model.RosterEntry, error)
	DeleteRosterEntry(ctx context.Context, id string) error
	Roster(ctx context.Context) ([]model.RosterEntry, error)
	ImportSchedule(ctx context.Context, eventKey string) (int, error)
	Schedule(ctx context.Context) ([]model.Match, error)
}

// PendingCounter reports the pending queue length.
type PendingCounter interface {
	Len(ctx context.Context) (int, error)
}

// Server wires HTTP routes for the admin API.
type Server struct {
	healthHandler   *HealthHandler
	statusHandler   *StatusHandler
	syncHandler     *SyncHandler
	recordsHandler  *RecordsHandler
	rosterHandler   *RosterHandler
	scheduleHandler *ScheduleHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(syncer Syncer, recorder Recorder, pending PendingCounter, remoteConfigured bool) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statusHandler:   NewStatusHandler(syncer, pending, remoteConfigured),
		syncHandler:     NewSyncHandler(syncer),
		recordsHandler:  NewRecordsHandler(recorder),
		rosterHandler:   NewRosterHandler(recorder),
		scheduleHandler: NewScheduleHandler(recorder),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))

	mux.HandleFunc("POST /sync", MetricsMiddleware(s.syncHandler.HandleSync, "sync"))
	mux.HandleFunc("POST /refresh", MetricsMiddleware(s.syncHandler.HandleRefresh, "refresh"))
	mux.HandleFunc("POST /reset", MetricsMiddleware(s.syncHandler.HandleReset, "reset"))

	mux.HandleFunc("GET /records", MetricsMiddleware(s.recordsHandler.HandleList, "records"))
	mux.HandleFunc("POST /records", MetricsMiddleware(s.recordsHandler.HandleCapture, "records"))
	mux.HandleFunc("PUT /records/{id}", MetricsMiddleware(s.recordsHandler.HandleUpdate, "records"))

	mux.HandleFunc("GET /roster", MetricsMiddleware(s.rosterHandler.HandleList, "roster"))
	mux.HandleFunc("POST /roster", MetricsMiddleware(s.rosterHandler.HandleSave, "roster"))
	mux.HandleFunc("DELETE /roster/{id}", MetricsMiddleware(s.rosterHandler.HandleDelete, "roster"))

	mux.HandleFunc("GET /schedule", MetricsMiddleware(s.scheduleHandler.HandleList, "schedule"))
	mux.HandleFunc("POST /schedule/import", MetricsMiddleware(s.scheduleHandler.HandleImport, "schedule"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
