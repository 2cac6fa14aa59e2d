// REST surface for local UI clients: queue inspection, manual recovery,
// sync triggering, and the connectivity simulator.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/kimhsiao/inventorylite/internal/connectivity"
	"github.com/kimhsiao/inventorylite/internal/errors"
	"github.com/kimhsiao/inventorylite/internal/logging"
	"github.com/kimhsiao/inventorylite/internal/models"
	"github.com/kimhsiao/inventorylite/internal/queue"
	syncpkg "github.com/kimhsiao/inventorylite/internal/sync"
	"github.com/kimhsiao/inventorylite/internal/uuid"
)

type server struct {
	store   *queue.Store
	engine  *syncpkg.Engine
	monitor *connectivity.Monitor
	hub     *wsHub
}

func newServer(store *queue.Store, engine *syncpkg.Engine, monitor *connectivity.Monitor, hub *wsHub) *server {
	return &server{store: store, engine: engine, monitor: monitor, hub: hub}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/queue", s.handleListQueue)
	mux.HandleFunc("POST /api/queue", s.handleEnqueue)
	mux.HandleFunc("POST /api/queue/{id}/retry", s.handleRetry)
	mux.HandleFunc("DELETE /api/queue/{id}", s.handleDiscard)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/connectivity", s.handleConnectivity)
	mux.HandleFunc("GET /ws", s.hub.handleWS)

	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "inventory-agent",
	})
}

// handleListQueue returns the queue snapshot in insertion order.
func (s *server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	actions, err := s.store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if actions == nil {
		actions = []models.QueuedAction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

// handleEnqueue appends a new action to the queue. The payload is decoded
// into its typed form before storage so a malformed or unknown-kind body
// is rejected here instead of poisoning a later pass.
func (s *server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind    models.ActionKind `json:"kind"`
		Payload json.RawMessage   `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": "invalid request body"})
		return
	}

	payload, err := models.DecodePayload(body.Kind, body.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": err.Error()})
		return
	}

	action, err := s.store.Append(payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, action)
}

// handleRetry resets a failed action so the next pass attempts it again.
// The pass itself is not run here; the caller follows up with POST /api/sync.
func (s *server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": err.Error()})
		return
	}

	if _, err := s.store.Get(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Retry(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDiscard removes a queued action unconditionally.
func (s *server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": err.Error()})
		return
	}

	if err := s.engine.Discard(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSync requests a reconciliation pass. The engine drops the
// request when offline or already mid-pass, so this always accepts.
func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	go s.engine.RequestSync()
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, err)
		return
	}

	status := map[string]interface{}{
		"online":  s.monitor.Online(),
		"syncing": s.engine.InProgress(),
		"queue":   stats,
	}
	if last := s.engine.LastFinished(); !last.IsZero() {
		status["last_sync"] = last.Unix()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleConnectivity forces the reachability state, or clears the
// override when no state is given. Development and testing aid.
func (s *server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": "invalid request body"})
		return
	}

	if body.Online == nil {
		s.monitor.ClearOverride()
	} else {
		s.monitor.SetOnline(*body.Online)
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errors.ErrNotFound) {
		status = http.StatusNotFound
	} else if errors.Is(err, errors.ErrInvalid) || errors.Is(err, errors.ErrValidation) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]interface{}{"detail": err.Error()})
}
