package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CredentialChecker resolves a username/password pair to a profile. It
// returns errors.ErrInvalidCredentials when there is no match.
type CredentialChecker interface {
	Check(ctx context.Context, username, password string) (users.Profile, error)
}

// TableChecker checks credentials against an in-process table.
type TableChecker struct {
	Table *users.CredentialTable
}

func (c TableChecker) Check(_ context.Context, username, password string) (users.Profile, error) {
	p, err := c.Table.Verify(username, password)
	if errors.Is(err, users.ErrNoMatch) {
		return users.Profile{}, autherrors.ErrInvalidCredentials
	}
	return p, err
}

// RemoteChecker posts credentials as JSON to a login endpoint which answers
// 200 with a profile, or 401/403 when they do not match.
type RemoteChecker struct {
	URL    string
	Client *http.Client
}

type remoteLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c RemoteChecker) Check(ctx context.Context, username, password string) (users.Profile, error) {
	body, err := json.Marshal(remoteLoginRequest{Username: username, Password: password})
	if err != nil {
		return users.Profile{}, errors.Wrap(err, "[RemoteChecker.Check] marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return users.Profile{}, errors.Wrap(err, "[RemoteChecker.Check] NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return users.Profile{}, autherrors.Wrapf(autherrors.ErrNetwork, "[RemoteChecker.Check] %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return users.Profile{}, autherrors.ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return users.Profile{}, autherrors.Wrapf(autherrors.ErrNetwork, "[RemoteChecker.Check] status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var p users.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return users.Profile{}, errors.Wrap(err, "[RemoteChecker.Check] decode profile")
	}
	return p, nil
}

var _ Provider = (*Direct)(nil)

// Direct signs users in with a username and password and mints its own
// tokens. Renewal needs no user interaction: a new access token is minted from
// the stored profile as long as a refresh token was persisted.
type Direct struct {
	checker CredentialChecker
	minter  *token.Minter
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type DirectOption func(*Direct)

func WithDirectNowFunc(now func() time.Time) DirectOption {
	return func(d *Direct) {
		d.nowFunc = now
	}
}

func WithDirectLogger(logger zerolog.Logger) DirectOption {
	return func(d *Direct) {
		d.logger = logger
	}
}

func NewDirect(checker CredentialChecker, minter *token.Minter, opts ...DirectOption) *Direct {
	d := &Direct{
		checker: checker,
		minter:  minter,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Direct) ID() ID { return IDDirect }

func (d *Direct) Capabilities() Capabilities {
	return Capabilities{HasCredentialLogin: true, HasSilentRefresh: true}
}

func (d *Direct) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, autherrors.ErrInvalidCredentials
	}
	profile, err := d.checker.Check(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}

	access, exp, err := d.minter.AccessToken(profile)
	if err != nil {
		return nil, errors.Wrap(err, "[Direct.SignIn] AccessToken")
	}
	refresh, err := token.NewRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Direct.SignIn] NewRefreshToken")
	}

	d.logger.Debug().Str("user_id", profile.ID).Msg("direct sign-in")
	return &Session{
		User:         profile,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		Provider:     IDDirect,
	}, nil
}

// SignOut has nothing to revoke remotely.
func (d *Direct) SignOut(context.Context, *Session) error {
	return nil
}

func (d *Direct) CurrentSession(ctx context.Context, stored *Session) (*Session, error) {
	if stored == nil || stored.AccessToken == "" {
		return nil, autherrors.ErrNoSession
	}
	if stored.Expired(d.nowFunc()) {
		return d.Refresh(ctx, stored)
	}
	return stored.Clone(), nil
}

func (d *Direct) Refresh(_ context.Context, session *Session) (*Session, error) {
	if session == nil || session.RefreshToken == "" {
		return nil, autherrors.ErrNoRefreshToken
	}
	access, exp, err := d.minter.AccessToken(session.User)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrRefreshFailed, "[Direct.Refresh] %v", err)
	}

	renewed := session.Clone()
	renewed.AccessToken = access
	renewed.ExpiresAt = exp
	renewed.Provider = IDDirect
	return renewed, nil
}
