package provider

import (
	"context"
	"strings"
	"time"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
)

// ID selects the active provider. It is fixed at boot.
type ID string

const (
	IDDirect        ID = "direct"
	IDInteractive   ID = "interactive"
	IDUnimplemented ID = "unimplemented"
)

// ParseID accepts exactly one of the known provider names. There is no
// default: an empty or unknown value is an error.
func ParseID(s string) (ID, error) {
	switch id := ID(strings.ToLower(strings.TrimSpace(s))); id {
	case IDDirect, IDInteractive, IDUnimplemented:
		return id, nil
	default:
		return "", autherrors.Wrapf(autherrors.ErrInvalidProvider, "provider %q", s)
	}
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Capabilities describe which affordances a provider supports so a UI can
// decide what to show without type-testing the provider.
type Capabilities struct {
	HasCredentialLogin  bool `json:"hasCredentialLogin"`
	HasInteractiveLogin bool `json:"hasInteractiveLogin"`
	HasSilentRefresh    bool `json:"hasSilentRefresh"`
}

// Credentials are the sign-in inputs. Interactive providers ignore them.
type Credentials struct {
	Username string
	Password string
}

// Session is the user identity plus credential material considered valid.
type Session struct {
	User         users.Profile
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero when unknown
	Provider     ID
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}

// Provider obtains, renews and revokes sessions for one authentication method.
type Provider interface {
	ID() ID
	Capabilities() Capabilities
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, session *Session) error
	// CurrentSession validates a previously persisted session, renewing it
	// when needed. stored may be nil.
	CurrentSession(ctx context.Context, stored *Session) (*Session, error)
	Refresh(ctx context.Context, session *Session) (*Session, error)
}

// Builders construct the configurable variants on demand.
type Builders struct {
	Direct      func() (Provider, error)
	Interactive func() (Provider, error)
}

// Resolve builds the provider selected by id. The unimplemented arm never
// needs a builder; a missing builder for another arm is a configuration error.
func Resolve(id ID, b Builders) (Provider, error) {
	var build func() (Provider, error)
	switch id {
	case IDUnimplemented:
		return NewUnimplemented(), nil
	case IDDirect:
		build = b.Direct
	case IDInteractive:
		build = b.Interactive
	default:
		return nil, autherrors.Wrapf(autherrors.ErrInvalidProvider, "[provider.Resolve] %q", string(id))
	}
	if build == nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidProvider, "[provider.Resolve] no builder for %q", string(id))
	}
	return build()
}
