package api

import (
	"context"
	"net/http"

	"github.com/okian/scoutsync/internal/adapters/mq/queue"
	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/domain/types"
)

// SyncHandler serves the sync control endpoints.
type SyncHandler struct {
	syncer Syncer
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(syncer Syncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// HandleSync handles POST /sync. With ?wait=true the run happens inline and
// its report is returned; otherwise a manual trigger is queued.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		h.respond(w, r, h.syncer.SyncNow)
		return
	}
	queued := h.syncer.Trigger(queue.SourceManual)
	writeJSON(w, http.StatusAccepted, types.TriggerResponse{Queued: queued})
}

// HandleRefresh handles POST /refresh.
func (h *SyncHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.syncer.FullRefresh)
}

// HandleReset handles POST /reset.
func (h *SyncHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.syncer.HardReset)
}

// respond runs fn and writes its report. A run that completed with step
// errors is still a 200: the report carries the error.
func (h *SyncHandler) respond(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (app.RunReport, error)) {
	rep, err := fn(r.Context())
	if err != nil && rep.StartedAt.IsZero() {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
