package handler

// RESPONSE HELPERS:
// Every HTML response goes through Renderer so the session cookie is written
// exactly once, before the status line. Flashes queued by earlier requests
// are popped while rendering, which is what makes them one-shot.
//
// ERROR MAPPING:
// Services return *apperror.AppError for anything the user should see.
//   ErrValidation, ErrConflict, ErrSelfAction → flash + redirect/re-render
//   ErrNotFound                               → 404 page
//   anything else                             → 500 page, details only logged

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/model"
)

const msgInternalError = "Something went wrong on our side. Please try again."

// pages lists every template that can be rendered as a full page.
var pages = []string{"index.html", "register.html", "profile.html", "admin_users.html", "error.html"}

// page is the data every template receives.
type page struct {
	Title   string
	User    *model.User
	Flashes []auth.Flash
	Data    any
}

// errorPage is the Data of error.html.
type errorPage struct {
	Status     int
	StatusText string
	Message    string
}

// Renderer renders HTML pages and redirects, saving the session first.
type Renderer struct {
	pages    map[string]*template.Template
	sessions *auth.SessionStore
	logger   *slog.Logger
}

// NewRenderer parses base.html together with each page so they can
// reference each other: base defines the layout with {{template "content" .}}
// and each page fills "content". Parsing happens once at startup.
func NewRenderer(templates fs.FS, sessions *auth.SessionStore, logger *slog.Logger) (*Renderer, error) {
	parsed := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		tmpl, err := template.ParseFS(templates, "base.html", name)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing template %s: %w", name, err)
		}
		parsed[name] = tmpl
	}
	return &Renderer{pages: parsed, sessions: sessions, logger: logger}, nil
}

// Page renders name inside the base layout.
//
// The template is executed into a buffer first so a failing template turns
// into a clean 500 instead of half a page.
func (rd *Renderer) Page(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	tmpl, ok := rd.pages[name]
	if !ok {
		rd.ServerError(w, r, fmt.Errorf("handler: unknown template %s", name))
		return
	}

	sess := auth.SessionFromContext(r.Context())
	user, _ := auth.UserFromContext(r.Context())
	view := page{Title: title, User: user, Data: data}

	// Pop into the view, but only commit the pop once rendering succeeded.
	flashes := sess.Flashes
	view.Flashes = flashes
	sess.Flashes = nil

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", view); err != nil {
		sess.Flashes = flashes
		rd.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	rd.saveSession(w, r, sess)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Redirect saves the session and redirects.
func (rd *Renderer) Redirect(w http.ResponseWriter, r *http.Request, to string, status int) {
	rd.saveSession(w, r, auth.SessionFromContext(r.Context()))
	http.Redirect(w, r, to, status)
}

// FlashRedirect queues a flash and redirects with 303 See Other.
func (rd *Renderer) FlashRedirect(w http.ResponseWriter, r *http.Request, category, message, to string) {
	auth.SessionFromContext(r.Context()).AddFlash(category, message)
	rd.Redirect(w, r, to, http.StatusSeeOther)
}

// Error renders the error page with a user-facing message.
func (rd *Renderer) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	rd.Page(w, r, status, "error.html", http.StatusText(status), errorPage{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    message,
	})
}

// NotFound renders the generic 404 page.
func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.Error(w, r, http.StatusNotFound, "The page or user you were looking for does not exist.")
}

// ServerError logs err and renders a generic 500. The raw error may contain
// SQL or provider details, so it never reaches the page.
func (rd *Renderer) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	rd.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("requestID", chimiddleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
	rd.Error(w, r, http.StatusInternalServerError, msgInternalError)
}

// isUserFacing reports whether err carries a message meant for a flash.
func isUserFacing(err error) bool {
	return errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrConflict) ||
		errors.Is(err, apperror.ErrSelfAction) ||
		errors.Is(err, apperror.ErrForbidden)
}

func (rd *Renderer) saveSession(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	if err := rd.sessions.Save(w, sess); err != nil {
		rd.logger.Error("failed to save session",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// JSON sends a JSON response with the given status code. Headers and
// status must go out before the body, so an encoding failure can only be
// logged.
func (rd *Renderer) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			rd.logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}
