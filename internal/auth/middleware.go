package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create keys of this type, so nobody else can read or
// shadow the values stored under them.
type contextKey string

const (
	sessionKey contextKey = "session"
	userKey    contextKey = "user"
)

// Messages shown by the guards.
const (
	MsgLoginRequired      = "Please log in to access this page."
	MsgAdminRequired      = "You need administrator privileges to access this page."
	MsgAccountDeactivated = "Your account has been deactivated. Please contact an administrator."
)

// UserLoader loads a user by primary key. repository.UserRepository and the
// user cache both satisfy it.
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// LoadSession decodes the session cookie and stores the *Session in the
// request context. Handlers mutate it and call SessionStore.Save.
func LoadSession(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), sessionKey, store.Load(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the request's session. Outside LoadSession it
// returns a fresh empty session rather than nil.
func SessionFromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionKey).(*Session); ok {
		return s
	}
	return &Session{}
}

// ErrorHandler writes the response for a request that failed inside
// middleware, before any handler ran. handler.Renderer.ServerError fits.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// LoadUser resolves the session's user ID to a *model.User for the rest of
// the chain. Must run after LoadSession.
//
// A session pointing at a deleted or deactivated user is downgraded to
// anonymous and the cookie rewritten. This is how deactivation takes effect
// for users who are already logged in. Any other lookup failure goes to
// onError; a nil onError answers with a plain 500.
func LoadUser(users UserLoader, store *SessionStore, logger *slog.Logger, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if !sess.IsAuthenticated() {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), sess.UserID)
			switch {
			case errors.Is(err, apperror.ErrNotFound):
				logger.Info("session user no longer exists", slog.Int64("userID", sess.UserID))
				sess.Clear()
				saveSession(w, r, store, logger, sess)
				next.ServeHTTP(w, r)
				return
			case err != nil:
				onError(w, r, fmt.Errorf("auth: loading session user %d: %w", sess.UserID, err))
				return
			case !user.IsActive:
				logger.Info("session user is deactivated", slog.Int64("userID", user.ID))
				sess.Clear()
				sess.AddFlash(FlashError, MsgAccountDeactivated)
				saveSession(w, r, store, logger, sess)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the logged-in, active user, or (nil, false) for
// anonymous requests.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// RequireUser sends anonymous requests to /login.
func RequireUser(store *SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserFromContext(r.Context()); !ok {
				redirectWithFlash(w, r, store, logger, "/login", MsgLoginRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards every route it wraps: the request needs an active,
// logged-in user with IsAdministrator set. Everyone else goes to the home
// page with the same message, whatever the reason.
func RequireAdmin(store *SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || !user.IsAdministrator {
				redirectWithFlash(w, r, store, logger, "/", MsgAdminRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, store *SessionStore, logger *slog.Logger, to, message string) {
	sess := SessionFromContext(r.Context())
	sess.AddFlash(FlashError, message)
	saveSession(w, r, store, logger, sess)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// saveSession logs a failed Save. The request carries on: the browser keeps
// its previous cookie and the user only misses a flash.
func saveSession(w http.ResponseWriter, r *http.Request, store *SessionStore, logger *slog.Logger, sess *Session) {
	if err := store.Save(w, sess); err != nil {
		logger.Error("failed to save session",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
