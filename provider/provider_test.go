package provider_test

import (
	"context"
	"testing"
	"time"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	for _, in := range []string{"direct", "interactive", "unimplemented", " Direct "} {
		_, err := provider.ParseID(in)
		assert.NoError(t, err, in)
	}

	for _, in := range []string{"", "mock", "realAuth"} {
		_, err := provider.ParseID(in)
		assert.ErrorIs(t, err, autherrors.ErrInvalidProvider, in)
	}

	var id provider.ID
	require.NoError(t, id.UnmarshalText([]byte("interactive")))
	assert.Equal(t, provider.IDInteractive, id)
	assert.Error(t, id.UnmarshalText([]byte("bogus")))
	assert.Equal(t, provider.IDInteractive, id, "a failed parse leaves the value alone")
}

func TestResolve(t *testing.T) {
	direct := provider.NewUnimplemented()
	builders := provider.Builders{
		Direct: func() (provider.Provider, error) { return direct, nil },
	}

	p, err := provider.Resolve(provider.IDDirect, builders)
	require.NoError(t, err)
	assert.Same(t, direct, p)

	p, err = provider.Resolve(provider.IDUnimplemented, provider.Builders{})
	require.NoError(t, err)
	assert.Equal(t, provider.IDUnimplemented, p.ID())

	_, err = provider.Resolve(provider.IDInteractive, builders)
	assert.ErrorIs(t, err, autherrors.ErrInvalidProvider)

	_, err = provider.Resolve(provider.ID("other"), builders)
	assert.ErrorIs(t, err, autherrors.ErrInvalidProvider)
}

func TestUnimplemented_FailsEverything(t *testing.T) {
	ctx := context.Background()
	p := provider.NewUnimplemented()

	assert.Equal(t, provider.Capabilities{}, p.Capabilities())

	_, err := p.SignIn(ctx, provider.Credentials{Username: "a", Password: "b"})
	assert.ErrorIs(t, err, autherrors.ErrProviderNotImplemented)
	assert.ErrorIs(t, p.SignOut(ctx, nil), autherrors.ErrProviderNotImplemented)
	_, err = p.CurrentSession(ctx, nil)
	assert.ErrorIs(t, err, autherrors.ErrProviderNotImplemented)
	_, err = p.Refresh(ctx, nil)
	assert.ErrorIs(t, err, autherrors.ErrProviderNotImplemented)
}

func TestSession_ExpiredAndClone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := &provider.Session{AccessToken: "a", ExpiresAt: now}
	assert.True(t, s.Expired(now))
	assert.False(t, s.Expired(now.Add(-time.Second)))
	assert.False(t, (&provider.Session{AccessToken: "a"}).Expired(now))

	var nilSession *provider.Session
	assert.Nil(t, nilSession.Clone())

	c := s.Clone()
	c.AccessToken = "b"
	assert.Equal(t, "a", s.AccessToken)
}
