package api

import (
	"net/http"
	"strings"

	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/internal/domain/types"
)

// ScheduleHandler serves the match schedule.
type ScheduleHandler struct {
	recorder Recorder
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(recorder Recorder) *ScheduleHandler {
	return &ScheduleHandler{recorder: recorder}
}

// HandleList handles GET /schedule.
func (h *ScheduleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	matches, err := h.recorder.Schedule(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleImport handles POST /schedule/import. An empty event key imports
// the configured default event.
func (h *ScheduleHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req types.ImportRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	key := strings.TrimSpace(req.EventKey)
	n, err := h.recorder.ImportSchedule(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ImportResponse{EventKey: key, Imported: n})
}
