// Package api provides the REST and WebSocket surface of the sync queue.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
)

// Engine is the queue surface the handlers use. *queue.Engine satisfies it.
type Engine interface {
	Enqueue(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (models.QueuedAction, error)
	SyncNow(ctx context.Context) (queue.DrainResult, error)
	Retry(ctx context.Context, id string) (bool, error)
	Discard(ctx context.Context, id string) (bool, error)
	Snapshot() queue.Status
}

// Connectivity receives manual online/offline signals.
// *scheduler.Scheduler satisfies it.
type Connectivity interface {
	SetOnlineStatus(isOnline bool)
	IsOnline() bool
}

// SyncHandler handles sync queue operations.
type SyncHandler struct {
	engine Engine
	conn   Connectivity
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine Engine, conn Connectivity) *SyncHandler {
	return &SyncHandler{engine: engine, conn: conn}
}

// StatusResponse is the body of GET /api/sync/status.
type StatusResponse struct {
	queue.Status
	IsOnline bool `json:"is_online"`
}

// GetStatus handles GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   h.engine.Snapshot(),
		IsOnline: h.conn.IsOnline(),
	})
}

// EnqueueAction handles POST /api/sync/actions
func (h *SyncHandler) EnqueueAction(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ActionType models.ActionType `json:"action_type"`
		Payload    json.RawMessage   `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}

	if len(request.Payload) > 0 {
		if err := models.ValidatePayload(request.ActionType, request.Payload); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "invalid payload", err))
			return
		}
	}

	action, err := h.engine.Enqueue(r.Context(), request.ActionType, request.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

// SyncNow handles POST /api/sync/now
// Answers 409 when another drain is already running.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if result.SkipReason == queue.SkipInProgress {
		writeError(w, errors.New(errors.ErrSyncInProgress, "a sync is already in progress"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RetryFailed handles POST /api/sync/failed/{id}/retry
func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	found, err := h.engine.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, errors.Newf(errors.ErrNotFound, "no failed action with id %s", id))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "retrying",
		"id":     id,
	})
}

// DiscardFailed handles DELETE /api/sync/failed/{id}
func (h *SyncHandler) DiscardFailed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	found, err := h.engine.Discard(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, errors.Newf(errors.ErrNotFound, "no failed action with id %s", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetConnectivity handles POST /api/connectivity
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}
	if request.Online == nil {
		writeError(w, errors.New(errors.ErrInvalid, "online is required"))
		return
	}

	h.conn.SetOnlineStatus(*request.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"is_online": h.conn.IsOnline()})
}

// Health handles GET /api/health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// statusFor maps error codes to HTTP statuses.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalid:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrSyncInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrInternal
	}
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", string(code), err)
	}

	message := err.Error()
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}
