package provider

import (
	"context"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

var _ Provider = (*Unimplemented)(nil)

// Unimplemented fails every operation so an unconfigured provider choice is
// loud rather than silently falling back to a working one.
type Unimplemented struct{}

func NewUnimplemented() *Unimplemented {
	return &Unimplemented{}
}

func (*Unimplemented) ID() ID { return IDUnimplemented }

func (*Unimplemented) Capabilities() Capabilities { return Capabilities{} }

func (*Unimplemented) SignIn(context.Context, Credentials) (*Session, error) {
	return nil, autherrors.ErrProviderNotImplemented
}

func (*Unimplemented) SignOut(context.Context, *Session) error {
	return autherrors.ErrProviderNotImplemented
}

func (*Unimplemented) CurrentSession(context.Context, *Session) (*Session, error) {
	return nil, autherrors.ErrProviderNotImplemented
}

func (*Unimplemented) Refresh(context.Context, *Session) (*Session, error) {
	return nil, autherrors.ErrProviderNotImplemented
}
