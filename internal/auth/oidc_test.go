package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://tenant.example.com/"
	testClientID = "client-id"
)

// fakeIdP is a minimal token endpoint. It answers every code exchange with
// the ID token produced by idToken, signed with the test RSA key.
type fakeIdP struct {
	t       *testing.T
	key     *rsa.PrivateKey
	server  *httptest.Server
	claims  jwt.MapClaims // claims for the next ID token
	status  int           // non-200 simulates a rejected code
	noToken bool          // omit id_token from the response
	gotForm url.Values
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}

	f := &fakeIdP{t: t, key: key, status: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(f.handleToken))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.gotForm = r.PostForm

	if f.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	body := map[string]any{
		"access_token": "access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !f.noToken {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, f.claims).SignedString(f.key)
		if err != nil {
			f.t.Errorf("signing ID token: %v", err)
		}
		body["id_token"] = signed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (f *fakeIdP) provider() *OIDCProvider {
	verifier := oidc.NewVerifier(testIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&f.key.PublicKey}},
		&oidc.Config{ClientID: testClientID},
	)
	return newOIDCProvider(
		ProviderConfig{ClientID: testClientID, ClientSecret: "secret", CallbackURL: "http://localhost:5555/callback"},
		oauth2.Endpoint{
			AuthURL:   f.server.URL + "/authorize",
			TokenURL:  f.server.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		verifier,
		"https://tenant.example.com/v2/logout",
		f.server.Client(),
	)
}

func validClaims(nonce string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "auth0|user-1",
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"nonce":          nonce,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestExchange_Success(t *testing.T) {
	idp := newFakeIdP(t)
	attempt := NewLoginAttempt()
	idp.claims = validClaims(attempt.Nonce)

	identity, err := idp.provider().Exchange(context.Background(), "the-code", attempt)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if identity.Subject != "auth0|user-1" {
		t.Errorf("Subject = %q", identity.Subject)
	}
	if identity.Email != "ada@example.com" {
		t.Errorf("Email = %q", identity.Email)
	}
	if identity.Name != "Ada Lovelace" {
		t.Errorf("Name = %q", identity.Name)
	}

	// The exchange must carry the code and the PKCE verifier.
	if got := idp.gotForm.Get("code"); got != "the-code" {
		t.Errorf("token request code = %q", got)
	}
	if got := idp.gotForm.Get("code_verifier"); got != attempt.Verifier {
		t.Errorf("token request code_verifier = %q, want %q", got, attempt.Verifier)
	}
}

func TestExchange_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeIdP, attempt *LoginAttempt)
	}{
		{"code rejected", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			f.status = http.StatusForbidden
		}},
		{"no id_token", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			f.noToken = true
		}},
		{"nonce mismatch", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims("someone-elses-nonce")
		}},
		{"wrong audience", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			f.claims["aud"] = "another-client"
		}},
		{"wrong issuer", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			f.claims["iss"] = "https://evil.example.com/"
		}},
		{"expired", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			f.claims["exp"] = time.Now().Add(-time.Hour).Unix()
		}},
		{"missing email", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			delete(f.claims, "email")
		}},
		{"missing subject", func(f *fakeIdP, a *LoginAttempt) {
			f.claims = validClaims(a.Nonce)
			delete(f.claims, "sub")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := newFakeIdP(t)
			attempt := NewLoginAttempt()
			tt.setup(idp, attempt)

			identity, err := idp.provider().Exchange(context.Background(), "code", attempt)
			if err == nil {
				t.Fatalf("Exchange() = %+v, want error", identity)
			}
		})
	}
}

func TestExchange_SignedByUnknownKey(t *testing.T) {
	idp := newFakeIdP(t)
	attempt := NewLoginAttempt()
	idp.claims = validClaims(attempt.Nonce)
	p := idp.provider()

	// Rotate the signing key after the verifier captured the old public key.
	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	idp.key = other

	if _, err := p.Exchange(context.Background(), "code", attempt); err == nil {
		t.Fatal("Exchange() should reject an ID token signed by an unknown key")
	}
}

func TestAuthURL(t *testing.T) {
	idp := newFakeIdP(t)
	attempt := NewLoginAttempt()

	raw := idp.provider().AuthURL(attempt)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthURL() is not a URL: %v", err)
	}
	q := u.Query()

	checks := map[string]string{
		"client_id":             testClientID,
		"redirect_uri":          "http://localhost:5555/callback",
		"response_type":         "code",
		"state":                 attempt.State,
		"nonce":                 attempt.Nonce,
		"code_challenge_method": "S256",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if !strings.Contains(q.Get("scope"), "openid") || !strings.Contains(q.Get("scope"), "email") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
	if q.Get("code_challenge") == "" {
		t.Error("code_challenge missing")
	}
}

func TestNewLoginAttempt_Unique(t *testing.T) {
	a, b := NewLoginAttempt(), NewLoginAttempt()
	if a.State == b.State || a.Nonce == b.Nonce || a.Verifier == b.Verifier {
		t.Errorf("login attempts share values: %+v %+v", a, b)
	}
}

func TestLogoutURL(t *testing.T) {
	idp := newFakeIdP(t)

	raw := idp.provider().LogoutURL("http://localhost:5555/")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("LogoutURL() is not a URL: %v", err)
	}
	if u.Host != "tenant.example.com" || u.Path != "/v2/logout" {
		t.Errorf("LogoutURL() = %q", raw)
	}
	if got := u.Query().Get("returnTo"); got != "http://localhost:5555/" {
		t.Errorf("returnTo = %q", got)
	}
	if got := u.Query().Get("client_id"); got != testClientID {
		t.Errorf("client_id = %q", got)
	}
}

func TestNewOIDCProvider_RequiresDomain(t *testing.T) {
	if _, err := NewOIDCProvider(context.Background(), ProviderConfig{ClientID: "x"}); err == nil {
		t.Fatal("NewOIDCProvider() should require a domain")
	}
}
