package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"practice-sync-client/internal/store"
	"practice-sync-client/internal/sync"
)

type Handler struct {
	engine *sync.Engine
	store  store.Store
}

func NewHandler(engine *sync.Engine, st store.Store) *Handler {
	return &Handler{
		engine: engine,
		store:  st,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync/trigger", h.TriggerSync)
		r.Post("/sync/stop", h.StopSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/stats", h.GetSyncStats)

		r.Post("/operations", h.EnqueueOperation)

		r.Get("/conflicts", h.ListConflicts)
		r.Post("/conflicts/{id}/resolve", h.ResolveConflict)

		r.Put("/preferences", h.UpdatePreferences)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Sync(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrAlreadyRunning):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, sync.ErrOffline):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, result)
}

func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := "idle"
	if h.engine.Running() {
		status = "running"
	}
	writeJSON(w, map[string]string{"status": status})
}

func (h *Handler) GetSyncStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

type enqueueRequest struct {
	Type         store.OperationType `json:"type"`
	ResourceType string              `json:"resourceType"`
	ResourceID   string              `json:"resourceId"`
	Data         json.RawMessage     `json:"data"`
	Priority     int                 `json:"priority"`
}

func (h *Handler) EnqueueOperation(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ResourceType == "" || req.ResourceID == "" {
		http.Error(w, "resourceType and resourceId are required", http.StatusBadRequest)
		return
	}
	switch req.Type {
	case store.OpCreate, store.OpUpdate, store.OpDelete:
	default:
		http.Error(w, "type must be create, update or delete", http.StatusBadRequest)
		return
	}

	op, err := h.engine.Enqueue(r.Context(), req.Type, req.ResourceType, req.ResourceID, req.Data, req.Priority)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, op)
}

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.store.ListConflicts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conflicts == nil {
		conflicts = []*store.Conflict{}
	}
	writeJSON(w, conflicts)
}

type resolveRequest struct {
	Resolution string          `json:"resolution"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.ResolveConflict(r.Context(), id, req.Resolution, req.Data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "resolved"})
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs store.UserPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.UpdatePreferences(r.Context(), &prefs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, &prefs)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
