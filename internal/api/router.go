package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
)

// NewRouter wires the REST routes, the WebSocket endpoint and, when metrics
// is non-nil, the Prometheus endpoint.
func NewRouter(h *SyncHandler, hub *Hub, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", Health).Methods(http.MethodGet)
	api.HandleFunc("/sync/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/actions", h.EnqueueAction).Methods(http.MethodPost)
	api.HandleFunc("/sync/now", h.SyncNow).Methods(http.MethodPost)
	api.HandleFunc("/sync/failed/{id}/retry", h.RetryFailed).Methods(http.MethodPost)
	api.HandleFunc("/sync/failed/{id}", h.DiscardFailed).Methods(http.MethodDelete)
	api.HandleFunc("/connectivity", h.SetConnectivity).Methods(http.MethodPost)

	if hub != nil {
		router.Handle("/ws", hub)
	}
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs each API request at debug level. The WebSocket endpoint
// is passed through untouched since the upgrade needs the raw writer.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logging.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
