package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/service"
	"github.com/sakif/sumday/internal/timezone"
)

const msgProfileUpdated = "Profile updated successfully!"

// ProfileHandler serves the logged-in user's own profile. Every route is
// behind auth.RequireUser.
type ProfileHandler struct {
	service *service.ProfileService
	render  *Renderer
	logger  *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(svc *service.ProfileService, render *Renderer, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{service: svc, render: render, logger: logger}
}

type profileView struct {
	Timezones []string
	LocalTime string
}

// HandleShow renders the profile page, including the current time in the
// user's timezone.
//
// HTTP: GET /profile
func (h *ProfileHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	h.render.Page(w, r, http.StatusOK, "profile.html", "Profile", profileView{
		Timezones: timezone.All(),
		LocalTime: h.localTime(user.Timezone, time.Now()),
	})
}

// localTime formats now in the named zone. A zone that no longer loads
// falls back to UTC rather than failing the page.
func (h *ProfileHandler) localTime(zone string, now time.Time) string {
	loc, err := timezone.Location(zone)
	if err != nil {
		h.logger.Warn("loading user timezone",
			slog.String("timezone", zone),
			slog.String("error", err.Error()),
		)
		loc = time.UTC
	}
	return now.In(loc).Format("Mon 2 Jan 15:04 MST")
}

// HandleUpdate saves the profile form and redirects back to /profile
// (Post/Redirect/Get) with a flash either way.
//
// HTTP: POST /profile/update (first_name, last_name, timezone)
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	_, err := h.service.Update(r.Context(), user.ID, service.ProfileInput{
		FirstName: r.PostForm.Get("first_name"),
		LastName:  r.PostForm.Get("last_name"),
		Timezone:  r.PostForm.Get("timezone"),
	})
	switch {
	case err == nil:
		h.render.FlashRedirect(w, r, auth.FlashSuccess, msgProfileUpdated, "/profile")
	case isUserFacing(err):
		h.render.FlashRedirect(w, r, auth.FlashError, apperror.Message(err, msgInternalError), "/profile")
	default:
		h.render.ServerError(w, r, err)
	}
}

// HandleToggleAdmin flips the current user's administrator flag.
//
// HTTP: POST /profile/toggle-admin
func (h *ProfileHandler) HandleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	updated, err := h.service.ToggleAdministrator(r.Context(), user.ID)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	status := "disabled"
	if updated.IsAdministrator {
		status = "enabled"
	}
	h.render.FlashRedirect(w, r, auth.FlashSuccess, "Administrator status "+status+".", "/profile")
}
