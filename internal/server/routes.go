package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (task status events)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Render tasks
	mux.HandleFunc("/api/render", s.app.RenderHandler.SubmitHandler) // POST (submit)
	mux.HandleFunc("/api/tasks", s.app.RenderHandler.ListTasksHandler)
	mux.HandleFunc("/api/tasks/", s.app.RenderHandler.GetTaskHandler)

	// API routes - Profiles
	mux.HandleFunc("/api/profiles", s.app.ProfileHandler.ProfilesHandler)             // GET (list), POST (create)
	mux.HandleFunc("/api/profiles/active", s.app.ProfileHandler.ActiveProfileHandler) // GET
	mux.HandleFunc("/api/profiles/", s.app.ProfileHandler.ProfileRoutesHandler)       // GET/DELETE /{id}, POST /{id}/activate, POST /{id}/cookies

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// isWebSocketPath reports whether the path carries a websocket upgrade
func isWebSocketPath(path string) bool {
	return path == "/ws" || strings.HasPrefix(path, "/ws/")
}
