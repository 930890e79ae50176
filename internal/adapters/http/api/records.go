package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/internal/domain/types"
)

// RecordsHandler serves scouting record capture and listing.
type RecordsHandler struct {
	recorder Recorder
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(recorder Recorder) *RecordsHandler {
	return &RecordsHandler{recorder: recorder}
}

// HandleCapture handles POST /records.
func (h *RecordsHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req types.RecordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.recorder.Capture(r.Context(), toRecord(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleUpdate handles PUT /records/{id}.
func (h *RecordsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req types.RecordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, fmt.Errorf("%w: body id %q does not match path", ErrBadRequest, req.ID))
		return
	}
	req.ID = id
	rec, err := h.recorder.UpdateRecord(r.Context(), toRecord(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleList handles GET /records. ?synced=false limits the list to records
// still waiting for the remote store.
func (h *RecordsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.recorder.Records(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("synced") == "false" {
		unsynced := recs[:0]
		for _, rec := range recs {
			if !rec.Synced {
				unsynced = append(unsynced, rec)
			}
		}
		recs = unsynced
	}
	if recs == nil {
		recs = []model.ScoutingRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func toRecord(req types.RecordRequest) model.ScoutingRecord {
	return model.ScoutingRecord{
		ID:           req.ID,
		MatchKey:     strings.TrimSpace(req.MatchKey),
		TeamKey:      strings.TrimSpace(req.TeamKey),
		ObserverName: strings.TrimSpace(req.ObserverName),
		Alliance:     model.Alliance(req.Alliance),
		Position:     req.Position,
		Payload: model.Payload{
			Auto:    req.Auto,
			Teleop:  req.Teleop,
			Endgame: req.Endgame,
			Defense: req.Defense,
		},
	}
}
