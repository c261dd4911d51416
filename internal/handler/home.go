// Package handler contains the HTTP handlers.
//
// Handlers parse the request, call a service and pick a response (page,
// redirect or flash). They hold no business rules and never touch the
// database directly.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HomeHandler serves the landing page and the health check.
type HomeHandler struct {
	render *Renderer
	db     Pinger
	logger *slog.Logger
}

// NewHomeHandler creates a HomeHandler.
func NewHomeHandler(render *Renderer, db Pinger, logger *slog.Logger) *HomeHandler {
	return &HomeHandler{render: render, db: db, logger: logger}
}

// HandleIndex serves the public landing page.
//
// HTTP: GET /
func (h *HomeHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.render.Page(w, r, http.StatusOK, "index.html", "Home", nil)
}

// HandleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (h *HomeHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		h.render.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleNotFound renders the 404 page for unknown routes.
func (h *HomeHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render.NotFound(w, r)
}
