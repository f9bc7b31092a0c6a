package provider_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeIdP is a minimal authorization server: a token endpoint that checks
// PKCE and a revocation endpoint that counts calls.
type fakeIdP struct {
	srv *httptest.Server

	lock      sync.Mutex
	challenge string
	nonce     string
	revoked   []string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", idp.token)
	mux.HandleFunc("POST /revoke", idp.revoke)
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func (idp *fakeIdP) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    "cli",
		RedirectURL: "http://127.0.0.1/callback",
		Scopes:      []string{"openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   idp.srv.URL + "/authorize",
			TokenURL:  idp.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (idp *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	idp.lock.Lock()
	defer idp.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		sum := sha256.Sum256([]byte(r.Form.Get("code_verifier")))
		if r.Form.Get("code") != "good-code" || base64.RawURLEncoding.EncodeToString(sum[:]) != idp.challenge {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		idToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   "idp-user-1",
			"email": "jane@example.com",
			"name":  "Jane",
			"nonce": idp.nonce,
			"roles": []string{"user"},
		}).SignedString([]byte("idp-secret"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"expires_in":    900,
			"refresh_token": "rt-1",
			"id_token":      idToken,
		})
	case "refresh_token":
		if r.Form.Get("refresh_token") != "rt-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-2",
			"token_type":   "Bearer",
			"expires_in":   900,
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (idp *fakeIdP) revoke(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	idp.lock.Lock()
	idp.revoked = append(idp.revoked, r.Form.Get("token_type_hint")+":"+r.Form.Get("token"))
	idp.lock.Unlock()
	w.WriteHeader(http.StatusOK)
}

// approvingBroker plays the user approving the consent screen.
type approvingBroker struct {
	idp *fakeIdP
}

func (b approvingBroker) Authorize(_ context.Context, authURL, state string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if q.Get("state") != state || q.Get("code_challenge_method") != "S256" {
		return "", autherrors.ErrInternal
	}
	b.idp.lock.Lock()
	b.idp.challenge = q.Get("code_challenge")
	b.idp.nonce = q.Get("nonce")
	b.idp.lock.Unlock()
	return "good-code", nil
}

type brokerFunc func(ctx context.Context, authURL, state string) (string, error)

func (f brokerFunc) Authorize(ctx context.Context, authURL, state string) (string, error) {
	return f(ctx, authURL, state)
}

func TestInteractive_SignInAndRefresh(t *testing.T) {
	idp := newFakeIdP(t)
	ctx := context.Background()
	p := provider.NewInteractive(idp.oauthConfig(), approvingBroker{idp: idp}, provider.WithHTTPClient(idp.srv.Client()))

	caps := p.Capabilities()
	assert.False(t, caps.HasCredentialLogin)
	assert.True(t, caps.HasInteractiveLogin)

	s, err := p.SignIn(ctx, provider.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "at-1", s.AccessToken)
	assert.Equal(t, "rt-1", s.RefreshToken)
	assert.Equal(t, "idp-user-1", s.User.ID)
	assert.Equal(t, "jane@example.com", s.User.Email)
	assert.True(t, s.User.HasRole("user"))
	assert.Equal(t, provider.IDInteractive, s.Provider)
	assert.False(t, s.ExpiresAt.IsZero())

	renewed, err := p.Refresh(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "at-2", renewed.AccessToken)
	assert.Equal(t, "rt-1", renewed.RefreshToken, "refresh token is kept when the server does not rotate it")
	assert.Equal(t, s.User.ID, renewed.User.ID)
}

func TestInteractive_Cancelled(t *testing.T) {
	idp := newFakeIdP(t)

	cancelled := brokerFunc(func(context.Context, string, string) (string, error) {
		return "", autherrors.ErrInteractiveCancelled
	})
	p := provider.NewInteractive(idp.oauthConfig(), cancelled)
	_, err := p.SignIn(context.Background(), provider.Credentials{})
	assert.ErrorIs(t, err, autherrors.ErrInteractiveCancelled)

	ctx, cancel := context.WithCancel(context.Background())
	blocking := brokerFunc(func(ctx context.Context, _, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	p = provider.NewInteractive(idp.oauthConfig(), blocking)
	_, err = p.SignIn(ctx, provider.Credentials{})
	assert.ErrorIs(t, err, autherrors.ErrInteractiveCancelled)
}

func TestInteractive_ExchangeRejected(t *testing.T) {
	idp := newFakeIdP(t)
	badCode := brokerFunc(func(context.Context, string, string) (string, error) {
		return "bad-code", nil
	})
	p := provider.NewInteractive(idp.oauthConfig(), badCode, provider.WithHTTPClient(idp.srv.Client()))

	_, err := p.SignIn(context.Background(), provider.Credentials{})
	assert.ErrorIs(t, err, autherrors.ErrInvalidCredentials)
}

func TestInteractive_RefreshFailures(t *testing.T) {
	idp := newFakeIdP(t)
	ctx := context.Background()
	p := provider.NewInteractive(idp.oauthConfig(), approvingBroker{idp: idp}, provider.WithHTTPClient(idp.srv.Client()))

	_, err := p.Refresh(ctx, &provider.Session{AccessToken: "at"})
	assert.ErrorIs(t, err, autherrors.ErrNoRefreshToken)

	_, err = p.Refresh(ctx, &provider.Session{AccessToken: "at", RefreshToken: "revoked"})
	assert.ErrorIs(t, err, autherrors.ErrRefreshFailed)
}

func TestInteractive_SignOutRevokes(t *testing.T) {
	idp := newFakeIdP(t)
	ctx := context.Background()
	p := provider.NewInteractive(idp.oauthConfig(), approvingBroker{idp: idp},
		provider.WithHTTPClient(idp.srv.Client()),
		provider.WithRevocationURL(idp.srv.URL+"/revoke"),
	)

	require.NoError(t, p.SignOut(ctx, &provider.Session{AccessToken: "at-1", RefreshToken: "rt-1"}))
	assert.Equal(t, []string{"refresh_token:rt-1", "access_token:at-1"}, idp.revoked)

	withoutRevocation := provider.NewInteractive(idp.oauthConfig(), approvingBroker{idp: idp})
	assert.NoError(t, withoutRevocation.SignOut(ctx, &provider.Session{AccessToken: "at-1"}))
}

func TestNewInteractiveFromDiscovery(t *testing.T) {
	idp := newFakeIdP(t)

	var issuer string
	discovery := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": idp.srv.URL + "/authorize",
			"token_endpoint":         idp.srv.URL + "/token",
			"jwks_uri":               issuer + "/jwks",
			"revocation_endpoint":    idp.srv.URL + "/revoke",
		})
	}))
	defer discovery.Close()
	issuer = discovery.URL

	ctx := context.Background()
	p, err := provider.NewInteractiveFromDiscovery(ctx, provider.DiscoveryConfig{
		Issuer:   issuer,
		ClientID: "cli",
	}, approvingBroker{idp: idp})
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, &provider.Session{RefreshToken: "rt-1"}))
	assert.Equal(t, []string{"refresh_token:rt-1"}, idp.revoked)

	_, err = provider.NewInteractiveFromDiscovery(ctx, provider.DiscoveryConfig{Issuer: idp.srv.URL}, approvingBroker{idp: idp})
	assert.Error(t, err)
}
