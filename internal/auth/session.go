// Package auth is the glue between the external identity provider and our
// own notion of "who is making this request".
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. GET /login stores a login attempt (state, nonce, PKCE verifier) in the
//     session and redirects to the provider.
//  2. The provider redirects to GET /callback with a code. We exchange it for
//     tokens and verify the ID token (OIDCProvider.Exchange).
//  3. Known, active subject → the session gets the user's ID.
//     Unknown subject → the claims wait in the session until /register.
//  4. On every request LoadSession decodes the cookie and LoadUser turns the
//     session's user ID into a *model.User in the request context.
//
// WHY A SIGNED COOKIE?
// The session is small (a user ID, sometimes pending claims and a couple of
// flash messages), so it travels in the cookie itself as an HS256 JWT. No
// server-side session table is needed and the signature stops clients from
// editing their user ID.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookieName is the cookie carrying the signed session.
	SessionCookieName = "sumday_session"
	sessionIssuer     = "sumday"
)

// Flash categories used by the templates for styling.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// LoginAttempt is what we need to remember between redirecting to the
// provider and handling its callback.
type LoginAttempt struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"` // PKCE code verifier
}

// PendingRegistration holds verified provider claims for a subject that has
// no local account yet.
type PendingRegistration struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// Session is the decoded contents of the session cookie.
type Session struct {
	UserID  int64                `json:"uid,omitempty"`
	Login   *LoginAttempt        `json:"login,omitempty"`
	Pending *PendingRegistration `json:"pending,omitempty"`
	Flashes []Flash              `json:"flashes,omitempty"`
}

// IsAuthenticated reports whether the session belongs to a logged-in user.
func (s *Session) IsAuthenticated() bool {
	return s.UserID != 0
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}

// Clear drops everything except queued flashes, which the caller may still
// want to show (e.g. "account deactivated").
func (s *Session) Clear() {
	*s = Session{Flashes: s.Flashes}
}

func (s *Session) empty() bool {
	return s.UserID == 0 && s.Login == nil && s.Pending == nil && len(s.Flashes) == 0
}

// sessionClaims is the JWT payload: the session under "ses" plus the
// standard registered claims (iss, sub, iat, exp).
type sessionClaims struct {
	Data Session `json:"ses"`
	jwt.RegisteredClaims
}

// SessionStore encodes sessions into signed cookies and back.
type SessionStore struct {
	key    []byte
	ttl    time.Duration
	secure bool
}

// NewSessionStore creates a store signing with key. secure marks the cookie
// HTTPS-only and must be true in production.
func NewSessionStore(key []byte, ttl time.Duration, secure bool) (*SessionStore, error) {
	if len(key) < 32 {
		return nil, errors.New("auth: session key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session TTL must be positive")
	}
	return &SessionStore{key: key, ttl: ttl, secure: secure}, nil
}

// Encode signs the session into a JWT string that expires after the store's TTL.
func (st *SessionStore) Encode(s *Session) (string, error) {
	return st.encodeWithTTL(s, st.ttl)
}

func (st *SessionStore) encodeWithTTL(s *Session, ttl time.Duration) (string, error) {
	now := time.Now()
	c := sessionClaims{
		Data: *s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.UserID != 0 {
		c.Subject = strconv.FormatInt(s.UserID, 10)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(st.key)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Decode verifies a session token and returns its contents.
//
// Only HS256 is accepted (no "none", no algorithm confusion), the issuer must
// be ours and an expiry is required.
func (st *SessionStore) Decode(token string) (*Session, error) {
	parsed, err := jwt.ParseWithClaims(
		token,
		&sessionClaims{},
		func(*jwt.Token) (any, error) { return st.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: session expired")
		}
		return nil, fmt.Errorf("auth: invalid session: %w", err)
	}

	c, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("auth: invalid session claims")
	}
	return &c.Data, nil
}

// Load reads the session from the request cookie. A missing, tampered or
// expired cookie yields an empty session; it is never an error for the caller.
func (st *SessionStore) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}
	}
	s, err := st.Decode(cookie.Value)
	if err != nil {
		return &Session{}
	}
	return s
}

// maxCookieValue is the largest token Save writes. Browsers drop cookies
// over about 4KB without telling anyone.
const maxCookieValue = 4000

// ErrSessionTooLarge is returned by Save when the encoded session would not
// fit in a cookie. The previous cookie is left untouched.
var ErrSessionTooLarge = errors.New("auth: session too large for a cookie")

// Save writes the session cookie. An empty session deletes the cookie.
// Must be called before the response status is written.
func (st *SessionStore) Save(w http.ResponseWriter, s *Session) error {
	if s.empty() {
		st.Destroy(w)
		return nil
	}

	token, err := st.Encode(s)
	if err != nil {
		return err
	}
	if len(token) > maxCookieValue {
		return fmt.Errorf("%w (%d bytes)", ErrSessionTooLarge, len(token))
	}

	// HttpOnly: scripts can't read the cookie.
	// SameSite=Lax: not sent on cross-site POSTs, which covers CSRF for our forms.
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(st.ttl.Seconds()),
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy tells the browser to drop the session cookie.
func (st *SessionStore) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
