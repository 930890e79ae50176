package api

import (
	"net/http"

	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/internal/domain/types"
)

// RosterHandler serves the scouter roster.
type RosterHandler struct {
	recorder Recorder
}

// NewRosterHandler creates a roster handler.
func NewRosterHandler(recorder Recorder) *RosterHandler {
	return &RosterHandler{recorder: recorder}
}

// HandleList handles GET /roster.
func (h *RosterHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.recorder.Roster(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.RosterEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleSave handles POST /roster.
func (h *RosterHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req types.RosterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.recorder.SaveRosterEntry(r.Context(), model.RosterEntry{
		ID:       req.ID,
		Name:     req.Name,
		Alliance: model.Alliance(req.Alliance),
		Position: req.Position,
		IsRemote: req.IsRemote,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDelete handles DELETE /roster/{id}.
func (h *RosterHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.recorder.DeleteRosterEntry(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
