package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// BasePath is the prefix of the voice platform surface.
const BasePath = "/smart-strip/v1.0"

// healthTimeout bounds the infrastructure health check.
const healthTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	// Operator root page (basic auth)
	r.With(s.basicAuthMiddleware).Get("/", s.handleRoot)

	r.Route(BasePath, func(r chi.Router) {
		// Platform availability probe (no auth required)
		r.Head("/", s.handlePlatformHealth)
		r.Get("/", s.handlePlatformHealth)

		// Voice platform (bearer token)
		r.Group(func(r chi.Router) {
			r.Use(s.bearerMiddleware)

			r.Get("/user/devices", s.handleUserDevices)
			r.Post("/user/devices/query", s.handleQuery)
			r.Post("/user/devices/action", s.handleAction)
			r.Post("/user/unlink", s.handleUnlink)
		})

		// Operator and controllers (X-API-Key)
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)

			r.Get("/devices", s.handleListDeviceIDs)
			r.Get("/users", s.handleListUserIDs)
			r.Post("/users/sessions", s.handleSeedSession)

			for path, instance := range instanceRoutes {
				r.Get(path, s.handleGetInstance(instance))
				r.Post(path, s.handleSetInstance(instance))
			}

			r.Get("/websocket/{device_id}", s.handleDeviceWebSocket)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Operator JWT
		r.Group(func(r chi.Router) {
			r.Use(s.operatorJWTMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handlePlatformHealth answers the platform's availability probe.
func (s *Server) handlePlatformHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleHealth reports server and infrastructure health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()
	body := map[string]any{
		"status":            "ok",
		"version":           s.version,
		"devices":           stats.Total,
		"devices_connected": stats.Connected,
		"connections":       s.connections.Count(),
		"event_clients":     s.hub.ClientCount(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health(ctx); err != nil {
			body["status"] = "degraded"
			body["code"] = ErrCodeUnavailable
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// handleRoot greets an authenticated operator.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hi"})
}
