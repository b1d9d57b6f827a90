package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (session status stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Downloads
	mux.HandleFunc("/api/download", s.app.DownloadHandler.DownloadHandler)       // POST - acquire media
	mux.HandleFunc("/api/downloads", s.app.DownloadHandler.ListDownloadsHandler) // GET - download history
	mux.HandleFunc("/api/detect", s.app.DownloadHandler.DetectHandler)           // POST - classify auth requirement

	// API routes - Authentication sessions
	mux.HandleFunc("/api/auth/sessions", s.app.AuthHandler.SessionsHandler) // POST (start), GET (list)
	mux.HandleFunc("/api/auth/sessions/", s.app.AuthHandler.SessionRoutes)  // GET/DELETE /{id}, POST /{id}/cookies

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
