package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/auth"
	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/service"
	"github.com/sakif/sumday/internal/timezone"
)

// Flash messages set by the login flow.
const (
	MsgAuthFailed      = "Authentication failed. Please try again."
	MsgAccountCreated  = "Account created successfully!"
	msgInvalidCallback = "This login link is invalid or has expired. Please log in again."
)

// IdentityProvider is the part of *auth.OIDCProvider the handlers use.
type IdentityProvider interface {
	AuthURL(attempt *auth.LoginAttempt) string
	Exchange(ctx context.Context, code string, attempt *auth.LoginAttempt) (*auth.Identity, error)
	LogoutURL(returnTo string) string
}

// AuthHandler runs the login, registration and logout flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin     → remember a login attempt, redirect to the provider
//   - HandleCallback  → check state, exchange the code, log in or stash claims
//   - HandleRegister  → show/submit the registration form for stashed claims
//   - HandleLogout    → drop the session, end the provider session too
type AuthHandler struct {
	idp     IdentityProvider
	service *service.AuthService
	render  *Renderer
	baseURL string
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. baseURL is the app's external URL
// and is where the provider sends the browser after logout.
func NewAuthHandler(idp IdentityProvider, svc *service.AuthService, render *Renderer, baseURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		idp:     idp,
		service: svc,
		render:  render,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// HandleLogin starts a login.
//
// HTTP: GET /login
//
// The state, nonce and PKCE verifier live in the signed session cookie until
// the callback, so only the browser that started the login can finish it.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); ok {
		h.render.Redirect(w, r, "/profile", http.StatusFound)
		return
	}

	attempt := auth.NewLoginAttempt()
	sess := auth.SessionFromContext(r.Context())
	sess.Login = attempt
	h.render.Redirect(w, r, h.idp.AuthURL(attempt), http.StatusFound)
}

// HandleCallback completes the login.
//
// HTTP: GET /callback?code=...&state=...
//
// Any exchange or verification failure aborts the whole attempt: login
// attempt and pending claims are dropped and no user ID is set.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	q := r.URL.Query()

	attempt := sess.Login
	if attempt == nil || q.Get("state") == "" || q.Get("state") != attempt.State {
		h.logger.Warn("OAuth callback with unknown state", slog.Bool("hasAttempt", attempt != nil))
		h.render.Error(w, r, http.StatusBadRequest, msgInvalidCallback)
		return
	}
	// One attempt, one callback.
	sess.Login = nil

	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Info("provider returned an error",
			slog.String("error", providerErr),
			slog.String("description", q.Get("error_description")),
		)
		h.abortLogin(w, r, sess)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.render.Error(w, r, http.StatusBadRequest, msgInvalidCallback)
		return
	}

	identity, err := h.idp.Exchange(r.Context(), code, attempt)
	if err != nil {
		h.logger.Warn("OAuth exchange failed", slog.String("error", err.Error()))
		h.abortLogin(w, r, sess)
		return
	}

	result, err := h.service.CompleteLogin(r.Context(), identity)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	switch result.Outcome {
	case service.LoginSucceeded:
		sess.Pending = nil
		sess.UserID = result.User.ID
		h.render.Redirect(w, r, "/profile", http.StatusFound)
	case service.LoginDeactivated:
		sess.Clear()
		h.render.FlashRedirect(w, r, auth.FlashError, auth.MsgAccountDeactivated, "/")
	case service.LoginNeedsRegistration:
		sess.UserID = 0
		sess.Pending = result.Pending
		h.render.Redirect(w, r, "/register", http.StatusFound)
	default:
		h.render.ServerError(w, r, errors.New("handler: unexpected login outcome "+result.Outcome.String()))
	}
}

func (h *AuthHandler) abortLogin(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	sess.Clear()
	h.render.FlashRedirect(w, r, auth.FlashError, MsgAuthFailed, "/")
}

// registerForm is the Data of register.html.
type registerForm struct {
	Email     string
	Form      service.RegistrationInput
	Timezones []string
}

// HandleRegister shows the registration form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	pending, ok := h.pendingOrRedirect(w, r)
	if !ok {
		return
	}

	first, last := splitName(pending.Name)
	h.render.Page(w, r, http.StatusOK, "register.html", "Register", registerForm{
		Email:     pending.Email,
		Form:      service.RegistrationInput{FirstName: first, LastName: last, Timezone: model.DefaultTimezone},
		Timezones: timezone.All(),
	})
}

// HandleRegisterSubmit creates the account.
//
// HTTP: POST /register (first_name, last_name, timezone)
//
// Invalid input re-renders the form with 422 and the submitted values.
func (h *AuthHandler) HandleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	pending, ok := h.pendingOrRedirect(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	input := service.RegistrationInput{
		FirstName: r.PostForm.Get("first_name"),
		LastName:  r.PostForm.Get("last_name"),
		Timezone:  r.PostForm.Get("timezone"),
	}

	user, err := h.service.Register(r.Context(), pending, input)
	if err != nil {
		if !isUserFacing(err) {
			h.render.ServerError(w, r, err)
			return
		}
		sess := auth.SessionFromContext(r.Context())
		sess.AddFlash(auth.FlashError, apperror.Message(err, msgInternalError))
		h.render.Page(w, r, http.StatusUnprocessableEntity, "register.html", "Register", registerForm{
			Email:     pending.Email,
			Form:      input,
			Timezones: timezone.All(),
		})
		return
	}

	sess := auth.SessionFromContext(r.Context())
	sess.Pending = nil
	sess.UserID = user.ID
	h.render.FlashRedirect(w, r, auth.FlashSuccess, MsgAccountCreated, "/profile")
}

// pendingOrRedirect returns the stashed claims, or redirects and returns
// false when the request has no business on /register.
func (h *AuthHandler) pendingOrRedirect(w http.ResponseWriter, r *http.Request) (*auth.PendingRegistration, bool) {
	if _, ok := auth.UserFromContext(r.Context()); ok {
		h.render.Redirect(w, r, "/profile", http.StatusSeeOther)
		return nil, false
	}
	pending := auth.SessionFromContext(r.Context()).Pending
	if pending == nil {
		h.render.FlashRedirect(w, r, auth.FlashError, service.MsgLoginFirst, "/login")
		return nil, false
	}
	return pending, true
}

// HandleLogout drops the session and sends the browser to the provider's
// logout endpoint, which redirects back to our home page.
//
// HTTP: GET /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		h.logger.Info("user logged out", slog.Int64("userID", user.ID))
	}
	h.render.sessions.Destroy(w)
	http.Redirect(w, r, h.idp.LogoutURL(h.baseURL+"/"), http.StatusFound)
}

// splitName turns the provider's display name into a first/last guess for
// the registration form.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
