package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/xid"
	"golang.org/x/oauth2"
)

// Identity is the subset of ID token claims we use.
type Identity struct {
	Subject string // "sub": stable per user, e.g. "auth0|65f..." or "google-oauth2|1234"
	Email   string
	Name    string
}

// ProviderConfig describes the Auth0-style tenant we delegate login to.
type ProviderConfig struct {
	Domain       string // e.g. "sumday.eu.auth0.com"
	ClientID     string
	ClientSecret string
	CallbackURL  string // must match an "Allowed Callback URL" in the tenant
}

// OIDCProvider drives the OpenID Connect authorization code flow.
//
// OAUTH 2.0 + OIDC AUTHORIZATION CODE FLOW:
//  1. Redirect the browser to the provider's authorization endpoint with our
//     client ID, scopes, a random state, a nonce and a PKCE challenge.
//  2. The user logs in at the provider.
//  3. The provider redirects back to CallbackURL with a short-lived code.
//  4. We exchange the code (plus client secret and PKCE verifier) for tokens,
//     server to server.
//  5. We verify the ID token: signature against the provider's published
//     keys, issuer, audience (our client ID), expiry and nonce.
//
// Unlike the plain OAuth flow there is no extra /userinfo call; the
// verified ID token already carries sub and email.
type OIDCProvider struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	logoutURL  string
	clientID   string
	httpClient *http.Client
}

// NewOIDCProvider runs OIDC discovery against
// https://{Domain}/.well-known/openid-configuration and builds a provider
// from the advertised endpoints. It performs network I/O, so call it once at
// startup with a bounded context.
func NewOIDCProvider(ctx context.Context, cfg ProviderConfig) (*OIDCProvider, error) {
	if cfg.Domain == "" || cfg.ClientID == "" {
		return nil, errors.New("auth: provider domain and client ID are required")
	}

	domain := strings.TrimSuffix(strings.TrimPrefix(cfg.Domain, "https://"), "/")
	// Auth0 issuers end with a slash; go-oidc compares the issuer exactly.
	issuer := "https://" + domain + "/"

	client := &http.Client{Timeout: 10 * time.Second}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: discovering OIDC provider %s: %w", issuer, err)
	}

	return newOIDCProvider(
		cfg,
		provider.Endpoint(),
		provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		"https://"+domain+"/v2/logout",
		client,
	), nil
}

// newOIDCProvider assembles a provider from already-known parts. Tests use it
// to point at an httptest token endpoint with a static key set.
func newOIDCProvider(cfg ProviderConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, logoutURL string, client *http.Client) *OIDCProvider {
	return &OIDCProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier:   verifier,
		logoutURL:  logoutURL,
		clientID:   cfg.ClientID,
		httpClient: client,
	}
}

// NewLoginAttempt generates the per-login values that must survive the round
// trip to the provider. State and nonce are xids; the PKCE verifier comes
// from crypto/rand via oauth2.GenerateVerifier, so even a guessed state can't
// be used to redeem someone else's code.
func NewLoginAttempt() *LoginAttempt {
	return &LoginAttempt{
		State:    xid.New().String(),
		Nonce:    xid.New().String(),
		Verifier: oauth2.GenerateVerifier(),
	}
}

// AuthURL returns the provider authorization URL for this attempt.
func (p *OIDCProvider) AuthURL(attempt *LoginAttempt) string {
	return p.oauth.AuthCodeURL(attempt.State,
		oidc.Nonce(attempt.Nonce),
		oauth2.S256ChallengeOption(attempt.Verifier),
	)
}

// Exchange trades an authorization code for a verified identity.
//
// Any failure (provider unreachable, code rejected, no ID token, bad
// signature, nonce mismatch, missing sub/email) is returned as an error; the
// caller must then abandon the login attempt entirely.
func (p *OIDCProvider) Exchange(ctx context.Context, code string, attempt *LoginAttempt) (*Identity, error) {
	ctx = oidc.ClientContext(ctx, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(attempt.Verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("auth: token response has no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying ID token: %w", err)
	}

	// The nonce ties this ID token to the browser session that started the
	// login, so a token captured elsewhere can't be replayed here.
	if idToken.Nonce != attempt.Nonce {
		return nil, errors.New("auth: ID token nonce mismatch")
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("auth: decoding ID token claims: %w", err)
	}

	if idToken.Subject == "" {
		return nil, errors.New("auth: ID token has no subject")
	}
	if claims.Email == "" {
		return nil, errors.New("auth: ID token has no email claim")
	}

	return &Identity{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

// LogoutURL is where the browser goes after we drop our own session, so the
// provider ends its session too and then sends the user back to returnTo.
func (p *OIDCProvider) LogoutURL(returnTo string) string {
	q := url.Values{}
	q.Set("returnTo", returnTo)
	q.Set("client_id", p.clientID)
	return p.logoutURL + "?" + q.Encode()
}
