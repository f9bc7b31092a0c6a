package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Broker drives the external, user-facing part of an authorization-code
// exchange (a browser or native broker). It opens authURL and returns the code
// delivered to the redirect URI for the given state. Returning
// errors.ErrInteractiveCancelled, or any error once ctx is cancelled, means
// the user abandoned the flow.
type Broker interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// IDClaims are the identity claims read from an ID token.
type IDClaims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Nonce   string   `json:"nonce"`
	Roles   []string `json:"roles"`
}

// IDTokenVerifier validates a raw ID token and returns its claims.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (IDClaims, error)
}

// UnverifiedIDTokens reads ID token claims without checking the signature. It
// is only suitable when the token came straight from the token endpoint over
// TLS.
type UnverifiedIDTokens struct{}

type idTokenClaims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Nonce string   `json:"nonce"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (UnverifiedIDTokens) Verify(_ context.Context, raw string) (IDClaims, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return IDClaims{}, errors.Wrap(err, "[UnverifiedIDTokens.Verify]")
	}
	return IDClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Nonce:   claims.Nonce,
		Roles:   claims.Roles,
	}, nil
}

var _ Provider = (*Interactive)(nil)

// Interactive signs users in through an OAuth2 authorization-code flow with
// PKCE. Renewal uses the refresh token silently; when that fails the caller
// has to fall back to SignIn.
type Interactive struct {
	oauth     *oauth2.Config
	broker    Broker
	verifier  IDTokenVerifier
	revokeURL string
	client    *http.Client
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

type InteractiveOption func(*Interactive)

func WithIDTokenVerifier(v IDTokenVerifier) InteractiveOption {
	return func(i *Interactive) {
		i.verifier = v
	}
}

// WithRevocationURL enables RFC 7009 token revocation on SignOut.
func WithRevocationURL(u string) InteractiveOption {
	return func(i *Interactive) {
		i.revokeURL = u
	}
}

// WithHTTPClient sets the client used for token exchange and revocation.
func WithHTTPClient(c *http.Client) InteractiveOption {
	return func(i *Interactive) {
		i.client = c
	}
}

func WithInteractiveNowFunc(now func() time.Time) InteractiveOption {
	return func(i *Interactive) {
		i.nowFunc = now
	}
}

func WithInteractiveLogger(logger zerolog.Logger) InteractiveOption {
	return func(i *Interactive) {
		i.logger = logger
	}
}

func NewInteractive(cfg *oauth2.Config, broker Broker, opts ...InteractiveOption) *Interactive {
	i := &Interactive{
		oauth:    cfg,
		broker:   broker,
		verifier: UnverifiedIDTokens{},
		nowFunc:  time.Now,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interactive) ID() ID { return IDInteractive }

func (i *Interactive) Capabilities() Capabilities {
	return Capabilities{HasInteractiveLogin: true, HasSilentRefresh: true}
}

func (i *Interactive) SignIn(ctx context.Context, _ Credentials) (*Session, error) {
	state, err := randomString(16)
	if err != nil {
		return nil, errors.Wrap(err, "[Interactive.SignIn] state")
	}
	nonce, err := randomString(16)
	if err != nil {
		return nil, errors.Wrap(err, "[Interactive.SignIn] nonce")
	}
	verifier := oauth2.GenerateVerifier()

	authURL := i.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	code, err := i.broker.Authorize(ctx, authURL, state)
	if err != nil {
		if errors.Is(err, autherrors.ErrInteractiveCancelled) || ctx.Err() != nil ||
			errors.Is(err, context.Canceled) {
			return nil, autherrors.Wrapf(autherrors.ErrInteractiveCancelled, "[Interactive.SignIn] %v", err)
		}
		return nil, errors.Wrap(err, "[Interactive.SignIn] broker")
	}

	tok, err := i.oauth.Exchange(i.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classifyTokenError("[Interactive.SignIn] exchange", err, autherrors.ErrInvalidCredentials)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, errors.New("[Interactive.SignIn] no id_token in token response")
	}
	claims, err := i.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Interactive.SignIn] verify id_token")
	}
	if claims.Nonce != nonce {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidCredentials, "[Interactive.SignIn] nonce mismatch")
	}

	profile := users.Profile{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Roles:       users.NewRoles(claims.Roles...),
	}
	i.logger.Debug().Str("user_id", profile.ID).Msg("interactive sign-in")
	return &Session{
		User:         profile,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Provider:     IDInteractive,
	}, nil
}

// SignOut revokes the refresh token when a revocation endpoint is
// configured. Failures are returned; the caller still clears local state.
func (i *Interactive) SignOut(ctx context.Context, session *Session) error {
	if i.revokeURL == "" || session == nil {
		return nil
	}
	if session.RefreshToken != "" {
		if err := i.revoke(ctx, session.RefreshToken, "refresh_token"); err != nil {
			return err
		}
	}
	if session.AccessToken != "" {
		return i.revoke(ctx, session.AccessToken, "access_token")
	}
	return nil
}

func (i *Interactive) CurrentSession(ctx context.Context, stored *Session) (*Session, error) {
	if stored == nil || stored.AccessToken == "" {
		return nil, autherrors.ErrNoSession
	}
	if stored.Expired(i.nowFunc()) {
		return i.Refresh(ctx, stored)
	}
	return stored.Clone(), nil
}

// Refresh renews silently with the refresh token grant.
func (i *Interactive) Refresh(ctx context.Context, session *Session) (*Session, error) {
	if session == nil || session.RefreshToken == "" {
		return nil, autherrors.ErrNoRefreshToken
	}

	// no access token, so the source always goes to the token endpoint
	stale := &oauth2.Token{RefreshToken: session.RefreshToken}
	tok, err := i.oauth.TokenSource(i.clientContext(ctx), stale).Token()
	if err != nil {
		return nil, classifyTokenError("[Interactive.Refresh]", err, autherrors.ErrRefreshFailed)
	}

	renewed := session.Clone()
	renewed.AccessToken = tok.AccessToken
	renewed.RefreshToken = tok.RefreshToken
	renewed.ExpiresAt = tok.Expiry
	renewed.Provider = IDInteractive
	return renewed, nil
}

func (i *Interactive) revoke(ctx context.Context, tokenValue, hint string) error {
	form := url.Values{}
	form.Set("token", tokenValue)
	form.Set("token_type_hint", hint)
	form.Set("client_id", i.oauth.ClientID)
	if i.oauth.ClientSecret != "" {
		form.Set("client_secret", i.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Interactive.revoke] NewRequest")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.httpClient().Do(req)
	if err != nil {
		return autherrors.Wrapf(autherrors.ErrNetwork, "[Interactive.revoke] %s: %v", hint, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return autherrors.Wrapf(autherrors.ErrNetwork, "[Interactive.revoke] %s: status %d", hint, resp.StatusCode)
	}
	return nil
}

func (i *Interactive) httpClient() *http.Client {
	if i.client != nil {
		return i.client
	}
	return http.DefaultClient
}

// clientContext hands the configured HTTP client to the oauth2 package.
func (i *Interactive) clientContext(ctx context.Context) context.Context {
	if i.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, i.client)
}

// classifyTokenError maps token endpoint rejections to kind and everything
// else to ErrNetwork.
func classifyTokenError(op string, err error, kind error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return autherrors.Wrapf(kind, "%s %v", op, err)
	}
	return autherrors.Wrapf(autherrors.ErrNetwork, "%s %v", op, err)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
