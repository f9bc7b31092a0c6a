package controller

import (
	"context"

	"github.com/jrsteele09/go-auth-client/credstore"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Controller routes session operations to the configured provider and keeps
// the persisted credential record in step. It holds no session state of its
// own; the store is the only memory between calls.
//
// Provider calls and persistence are separate steps (Authenticate then Save,
// Renew then SaveTokens) so the caller can decide whether a result is still
// wanted before it is written.
type Controller struct {
	provider provider.Provider
	store    credstore.Store
	logger   zerolog.Logger
}

type Option func(*Controller)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(p provider.Provider, store credstore.Store, opts ...Option) *Controller {
	c := &Controller{
		provider: p,
		store:    store,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) ProviderID() provider.ID {
	return c.provider.ID()
}

func (c *Controller) Capabilities() provider.Capabilities {
	return c.provider.Capabilities()
}

// Authenticate runs the provider sign-in without touching the store.
func (c *Controller) Authenticate(ctx context.Context, creds provider.Credentials) (*provider.Session, error) {
	s, err := c.provider.SignIn(ctx, creds)
	if err != nil {
		return nil, autherrors.Normalize("signIn", err)
	}
	if s.Provider == "" {
		s.Provider = c.provider.ID()
	}
	return s, nil
}

// Save persists the whole record for s.
func (c *Controller) Save(ctx context.Context, s *provider.Session) error {
	err := credstore.SaveRecord(ctx, c.store, toRecord(s))
	if err != nil {
		c.logger.Warn().Err(err).Msg("credential record not persisted")
		return autherrors.Normalize("save", err)
	}
	return nil
}

// SaveTokens rewrites the token slots of the record, leaving the profile alone.
func (c *Controller) SaveTokens(ctx context.Context, s *provider.Session) error {
	err := credstore.UpdateTokens(ctx, c.store, s.AccessToken, s.RefreshToken, s.ExpiresAt)
	if err != nil {
		c.logger.Warn().Err(err).Msg("renewed tokens not persisted")
		return autherrors.Normalize("saveTokens", err)
	}
	return nil
}

// SignOut asks the provider to end the session and always clears the local
// record, even when the provider call fails. The provider error wins over a
// storage error.
func (c *Controller) SignOut(ctx context.Context) error {
	stored, loadErr := c.StoredSession(ctx)
	if loadErr != nil {
		c.logger.Warn().Err(loadErr).Msg("signOut: stored session unreadable")
	}

	providerErr := c.provider.SignOut(ctx, stored)
	if providerErr != nil {
		c.logger.Warn().Err(providerErr).Str("provider", c.provider.ID().String()).Msg("provider sign-out failed")
	}

	clearErr := c.ClearLocal(ctx)
	if providerErr != nil {
		return autherrors.Normalize("signOut", providerErr)
	}
	return clearErr
}

// ClearLocal removes the persisted record without contacting the provider.
func (c *Controller) ClearLocal(ctx context.Context) error {
	if err := credstore.ClearRecord(ctx, c.store); err != nil {
		c.logger.Error().Err(err).Msg("credential record not cleared")
		return autherrors.Normalize("clear", err)
	}
	return nil
}

// CurrentUser returns the persisted session once the provider has validated
// it, or nil. It never fails: a missing record and a failed lookup look the
// same to the caller. A session renewed during the lookup is persisted.
func (c *Controller) CurrentUser(ctx context.Context) *provider.Session {
	stored, err := c.StoredSession(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("currentUser: stored session unreadable")
		return nil
	}
	if stored == nil {
		return nil
	}
	if stored.Provider != c.provider.ID() {
		c.logger.Info().
			Str("stored", stored.Provider.String()).
			Str("configured", c.provider.ID().String()).
			Msg("currentUser: stored session belongs to another provider")
		return nil
	}

	s, err := c.provider.CurrentSession(ctx, stored)
	if err != nil {
		c.logger.Info().Err(err).Msg("currentUser: stored session rejected")
		return nil
	}
	if s.AccessToken != stored.AccessToken {
		_ = c.SaveTokens(ctx, s)
	}
	return s
}

// Renew asks the provider for fresh tokens for the persisted session without
// writing them back.
func (c *Controller) Renew(ctx context.Context) (*provider.Session, error) {
	stored, err := c.StoredSession(ctx)
	if err != nil {
		return nil, autherrors.Normalize("refresh", err)
	}
	if stored == nil {
		return nil, autherrors.Normalize("refresh", autherrors.ErrNoSession)
	}
	s, err := c.provider.Refresh(ctx, stored)
	if err != nil {
		return nil, autherrors.Normalize("refresh", err)
	}
	return s, nil
}

// StoredSession reads the persisted record. A missing record is (nil, nil).
func (c *Controller) StoredSession(ctx context.Context) (*provider.Session, error) {
	rec, err := credstore.LoadRecord(ctx, c.store)
	if err != nil || rec == nil {
		return nil, err
	}
	return &provider.Session{
		User:         rec.Profile,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
		Provider:     provider.ID(rec.ProviderID),
	}, nil
}

func toRecord(s *provider.Session) credstore.Record {
	return credstore.Record{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		Profile:      s.User,
		ProviderID:   s.Provider.String(),
	}
}
