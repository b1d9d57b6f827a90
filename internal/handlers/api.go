package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
)

// APIHandler serves system endpoints: version, health, API 404s.
type APIHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
	started time.Time
}

func NewAPIHandler(storage interfaces.StorageManager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		storage: storage,
		logger:  logger,
		started: time.Now(),
	}
}

// VersionHandler returns build information.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// HealthHandler reports liveness, including the TTL store's reachability.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	overall := "healthy"
	storageStatus := "ok"
	status := http.StatusOK
	if err := h.storage.TTLStore().Ping(); err != nil {
		h.logger.Error().Err(err).Msg("Storage health check failed")
		overall = "degraded"
		storageStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	WriteJSON(w, status, map[string]interface{}{
		"status":  overall,
		"storage": storageStatus,
		"uptime":  time.Since(h.started).String(),
	})
}

// NotFoundHandler catches unmatched API routes.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Unknown API endpoint: "+r.URL.Path)
}
