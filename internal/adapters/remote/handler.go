package remote

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/pkg/logger"
)

const maxBodyBytes = 8 << 20

// storePrefix keeps backend rows apart from device-local collections when
// both share one store.
const storePrefix = "remote:"

// Handler is a reference backend serving the collection API over a
// repository.Store. It backs `scoutsync remote` and HTTP client tests.
type Handler struct {
	store  repository.Store
	apiKey string
	mux    *http.ServeMux
}

// NewHandler creates a Handler. An empty apiKey disables authentication.
func NewHandler(store repository.Store, apiKey string) *Handler {
	h := &Handler{store: store, apiKey: apiKey, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("POST /v1/collections/{collection}/upsert", h.authed(h.upsert))
	h.mux.HandleFunc("GET /v1/collections/{collection}", h.authed(h.selectAll))
	h.mux.HandleFunc("POST /v1/collections/{collection}/delete", h.authed(h.deleteByKeys))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid api key", nil)
				return
			}
		}
		next(w, r)
	}
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	conflictKey := r.URL.Query().Get("on_conflict")
	if conflictKey == "" {
		conflictKey = DefaultConflictKey
	}

	var req upsertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}

	accepted := make([]string, 0, len(req.Rows))
	var rejected []string
	for _, raw := range req.Rows {
		id, err := conflictValue(raw, conflictKey)
		if err != nil {
			rejected = append(rejected, err.Error())
			continue
		}
		if err := h.store.Put(r.Context(), storePrefix+collection, id, raw); err != nil {
			logger.Get().Named("remote").Error(r.Context(), "store row failed",
				logger.String("collection", collection), logger.String("id", id), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "storage", "failed to store row", accepted)
			return
		}
		accepted = append(accepted, id)
	}

	if len(rejected) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid_row", strings.Join(rejected, "; "), accepted)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{Accepted: accepted})
}

func (h *Handler) selectAll(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	all, err := h.store.List(r.Context(), storePrefix+collection)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", "failed to list rows", nil)
		return
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, json.RawMessage(all[id]))
	}
	writeJSON(w, http.StatusOK, selectResponse{Rows: rows})
}

func (h *Handler) deleteByKeys(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	var req deleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}
	for _, k := range req.Keys {
		if err := h.store.Delete(r.Context(), storePrefix+collection, k); err != nil && !errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "storage", "failed to delete row", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.Keys)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, accepted []string) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Accepted: accepted})
}
