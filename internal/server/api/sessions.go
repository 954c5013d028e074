package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/moodlens/internal/session"
	"github.com/ayusman/moodlens/internal/store"
)

// Snapshotter reports the live session.
type Snapshotter interface {
	Snapshot() session.Summary
}

// SessionsHandler serves persisted and live video session summaries.
type SessionsHandler struct {
	store *store.Store
	live  Snapshotter
}

// NewSessionsHandler creates a SessionsHandler. live may be nil.
func NewSessionsHandler(s *store.Store, live Snapshotter) *SessionsHandler {
	return &SessionsHandler{store: s, live: live}
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

// ServeHTTP routes /api/sessions, /api/sessions/current and /api/sessions/{id}.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
	case path == "current":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.current(w)
	default:
		switch r.Method {
		case http.MethodGet:
			h.get(w, path)
		case http.MethodDelete:
			h.delete(w, path)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

func (h *SessionsHandler) current(w http.ResponseWriter) {
	if h.live == nil {
		writeError(w, http.StatusNotFound, "No live session")
		return
	}
	writeJSON(w, http.StatusOK, h.live.Snapshot())
}

func (h *SessionsHandler) get(w http.ResponseWriter, id string) {
	sess, err := h.store.Sessions().GetByID(id)
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

func (h *SessionsHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PredictionsHandler lists recorded classifier predictions.
type PredictionsHandler struct {
	store *store.Store
}

// NewPredictionsHandler creates a PredictionsHandler.
func NewPredictionsHandler(s *store.Store) *PredictionsHandler {
	return &PredictionsHandler{store: s}
}

type listPredictionsResponse struct {
	Predictions []*store.Prediction `json:"predictions"`
}

// ServeHTTP handles GET /api/predictions?kind=&limit=.
func (h *PredictionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind := store.PredictionKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown kind")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	predictions, err := h.store.Predictions().List(kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}

	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: predictions})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}
