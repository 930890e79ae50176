package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/scoutsync/internal/domain/types"
)

// StatusHandler serves GET /status.
type StatusHandler struct {
	syncer           Syncer
	pending          PendingCounter
	remoteConfigured bool
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(syncer Syncer, pending PendingCounter, remoteConfigured bool) *StatusHandler {
	return &StatusHandler{syncer: syncer, pending: pending, remoteConfigured: remoteConfigured}
}

// HandleStatus reports the sync state.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Snapshot builds the status DTO.
func (h *StatusHandler) Snapshot(ctx context.Context) (types.Status, error) {
	n, err := h.pending.Len(ctx)
	if err != nil {
		return types.Status{}, err
	}
	st := types.Status{
		Summary:          h.syncer.Status(ctx),
		State:            h.syncer.State().String(),
		Busy:             h.syncer.Busy(),
		Pending:          n,
		RemoteConfigured: h.remoteConfigured,
		Online:           h.syncer.Online(),
	}
	if last := h.syncer.LastSuccess(); !last.IsZero() {
		st.LastSuccess = last.UTC().Format(time.RFC3339)
	}
	if run, ok := h.syncer.LastRun(); ok {
		st.LastOutcome = run.Outcome
		st.LastTrigger = run.Trigger
		st.LastError = run.Error
	}
	return st, nil
}
