package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// DownloadHandler exposes the acquisition orchestrator over HTTP.
type DownloadHandler struct {
	downloads interfaces.DownloadService
	detector  interfaces.AuthDetector
	validate  *validator.Validate
	logger    arbor.ILogger
}

func NewDownloadHandler(downloads interfaces.DownloadService, detector interfaces.AuthDetector, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		detector:  detector,
		validate:  validator.New(),
		logger:    logger,
	}
}

// DownloadHandler handles POST /api/download. The request blocks until the
// acquisition completes or fails; interactive auth may open a browser window
// on the host.
func (h *DownloadHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = userIDOf(r)
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.downloads.Fetch(r.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("Download request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, result)
}

// ListDownloadsHandler handles GET /api/downloads.
func (h *DownloadHandler) ListDownloadsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.downloads.History(userIDOf(r), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*models.DownloadRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"downloads": records,
		"count":     len(records),
	})
}

// detectRequest is the body for POST /api/detect. The optional fields tune
// the network probe per call.
type detectRequest struct {
	URL             string `json:"url" validate:"required"`
	UserAgent       string `json:"user_agent,omitempty"`
	FollowRedirects *bool  `json:"follow_redirects,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
}

func (r *detectRequest) detectOptions() *models.DetectOptions {
	if r.UserAgent == "" && r.FollowRedirects == nil && r.TimeoutSeconds <= 0 {
		return nil
	}
	return &models.DetectOptions{
		UserAgent:       r.UserAgent,
		FollowRedirects: r.FollowRedirects,
		ProbeTimeout:    time.Duration(r.TimeoutSeconds) * time.Second,
	}
}

// DetectHandler handles POST /api/detect: runs the auth-requirement
// classifier without downloading anything.
func (h *DownloadHandler) DetectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result := h.detector.DetectAuthRequirement(r.Context(), req.URL, req.detectOptions())
	WriteJSON(w, http.StatusOK, result)
}
