package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/service"
)

const adminUsersPath = "/admin/users"

// AdminHandler serves the user management panel. The whole route group sits
// behind auth.RequireAdmin, so every handler here can assume an active
// administrator in the context.
type AdminHandler struct {
	service *service.AdminService
	render  *Renderer
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *service.AdminService, render *Renderer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, render: render, logger: logger}
}

type adminUsersView struct {
	Users []model.User
}

// HandleListUsers renders every user, newest first.
//
// HTTP: GET /admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.Page(w, r, http.StatusOK, "admin_users.html", "Users", adminUsersView{Users: users})
}

// adminAction is the shape of AdminService.Activate/Deactivate/Delete.
type adminAction func(ctx context.Context, actorID, targetID int64) (*model.User, error)

// HandleActivate: POST /admin/users/{id}/activate
func (h *AdminHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Activate, "activated")
}

// HandleDeactivate: POST /admin/users/{id}/deactivate
func (h *AdminHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Deactivate, "deactivated")
}

// HandleDelete: POST /admin/users/{id}/delete
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.Delete, "deleted")
}

// run parses {id}, applies action and maps the result:
//
//	success       → flash "User {email} has been {verb}." + 303 to the list
//	self-action   → error flash + 303 to the list, nothing changed
//	unknown id    → 404 page
//	anything else → 500 page
func (h *AdminHandler) run(w http.ResponseWriter, r *http.Request, action adminAction, verb string) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		// RequireAdmin guarantees a user; this only trips on a miswired router.
		h.render.ServerError(w, r, errors.New("handler: admin route without a user"))
		return
	}

	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || targetID <= 0 {
		h.render.NotFound(w, r)
		return
	}

	target, err := action(r.Context(), actor.ID, targetID)
	switch {
	case err == nil:
		h.render.FlashRedirect(w, r, auth.FlashSuccess,
			fmt.Sprintf("User %s has been %s.", target.Email, verb), adminUsersPath)
	case errors.Is(err, apperror.ErrNotFound):
		h.render.NotFound(w, r)
	case isUserFacing(err):
		h.render.FlashRedirect(w, r, auth.FlashError, apperror.Message(err, msgInternalError), adminUsersPath)
	default:
		h.render.ServerError(w, r, err)
	}
}
