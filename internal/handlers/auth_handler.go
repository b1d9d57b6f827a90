package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// AuthHandler manages interactive login sessions over HTTP. The detached
// flow is driven by an extension or front end that opens the login page,
// watches the user sign in and reports the captured cookies back.
type AuthHandler struct {
	sessions interfaces.SessionService
	logger   arbor.ILogger
}

func NewAuthHandler(sessions interfaces.SessionService, logger arbor.ILogger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

// startSessionRequest is the body for POST /api/auth/sessions. The optional
// fields tune the login detection for sites the defaults do not cover.
type startSessionRequest struct {
	AuthURL          string            `json:"auth_url"`
	SuccessIndicator string            `json:"success_indicator,omitempty"`
	CustomHeaders    map[string]string `json:"custom_headers,omitempty"`
	TimeoutSeconds   int               `json:"timeout_seconds,omitempty"`
}

func (r *startSessionRequest) loginOptions() *models.LoginOptions {
	if r.SuccessIndicator == "" && len(r.CustomHeaders) == 0 && r.TimeoutSeconds <= 0 {
		return nil
	}
	return &models.LoginOptions{
		SuccessIndicator: r.SuccessIndicator,
		CustomHeaders:    r.CustomHeaders,
		Timeout:          time.Duration(r.TimeoutSeconds) * time.Second,
	}
}

// SessionsHandler handles /api/auth/sessions: POST starts a detached
// session, GET lists live sessions.
func (h *AuthHandler) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startSession(w, r)
	case http.MethodGet:
		sessions := h.sessions.ListSessions(userIDOf(r))
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if req.AuthURL == "" {
		WriteError(w, http.StatusBadRequest, "auth_url is required")
		return
	}

	session, err := h.sessions.StartDetachedSession(r.Context(), userIDOf(r), req.AuthURL, req.loginOptions())
	if err != nil {
		h.logger.Error().Err(err).Str("auth_url", req.AuthURL).Msg("Failed to start login session")
		if errors.Is(err, interfaces.ErrBrowserUnavailable) {
			WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, session)
}

// SessionRoutes handles /api/auth/sessions/{id} and subpaths:
//
//	GET    /api/auth/sessions/{id}          session snapshot
//	DELETE /api/auth/sessions/{id}          cancel a pending session
//	POST   /api/auth/sessions/{id}/cookies  deliver captured cookies
func (h *AuthHandler) SessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/auth/sessions/")
	if rest == "" {
		WriteError(w, http.StatusBadRequest, "Session id is required")
		return
	}

	if strings.HasSuffix(rest, "/cookies") {
		sessionID := strings.TrimSuffix(rest, "/cookies")
		h.updateCookies(w, r, sessionID)
		return
	}

	sessionID := rest
	switch r.Method {
	case http.MethodGet:
		session, err := h.sessions.GetSession(sessionID)
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		if err := h.sessions.CancelSession(sessionID); err != nil {
			h.writeSessionError(w, err)
			return
		}
		WriteSuccess(w, "Session cancelled")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// updateCookiesRequest is the body for POST /api/auth/sessions/{id}/cookies.
type updateCookiesRequest struct {
	Cookies []models.Cookie `json:"cookies"`
}

func (h *AuthHandler) updateCookies(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req updateCookiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	if err := h.sessions.UpdateSessionCookies(sessionID, req.Cookies); err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.logger.Info().
		Str("session_id", sessionID).
		Int("cookie_count", len(req.Cookies)).
		Msg("Session cookies delivered")
	WriteSuccess(w, "Cookies stored")
}

func (h *AuthHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interfaces.ErrSessionTerminal):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		WriteError(w, http.StatusBadRequest, err.Error())
	}
}
