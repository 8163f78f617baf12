package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/signlearn/internal/store"
)

// SessionsHandler serves the recorded session log:
//
//	GET /api/sessions
//	GET /api/sessions/{id}
//	GET /api/sessions/{id}/predictions
type SessionsHandler struct {
	store store.Backend
}

// NewSessionsHandler creates a new SessionsHandler with the given backend.
func NewSessionsHandler(s store.Backend) *SessionsHandler {
	return &SessionsHandler{store: s}
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type listPredictionsResponse struct {
	SessionID   string              `json:"session_id"`
	Predictions []*store.Prediction `json:"predictions"`
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, ok := limitParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	if path == "" {
		h.list(w, r, limit)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		h.get(w, r, id)
	case "predictions":
		h.predictions(w, r, id, limit)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request, limit int) {
	sessions, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionsHandler) predictions(w http.ResponseWriter, r *http.Request, id string, limit int) {
	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	preds, err := h.store.ListPredictions(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}
	if preds == nil {
		preds = []*store.Prediction{}
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{SessionID: id, Predictions: preds})
}
