package config

import (
	"errors"
	"time"
)

// InteractiveConfig covers the OIDC authorization-code provider.
type InteractiveConfig interface {
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCRedirectURL() string
	GetOIDCScopes() []string
	GetLoginTimeout() time.Duration
}

type OAuth struct {
	Issuer       string        `env:"ISSUER"`
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"` // empty for public clients using PKCE only
	RedirectURL  string        `env:"REDIRECT_URL" envDefault:"http://127.0.0.1:8765/callback"`
	Scopes       []string      `env:"SCOPES" envSeparator:","`
	LoginTimeout time.Duration `env:"LOGIN_TIMEOUT" envDefault:"5m"`
}

var _ InteractiveConfig = OAuth{}

func (o OAuth) GetOIDCIssuer() string {
	return o.Issuer
}

func (o OAuth) GetOIDCClientID() string {
	return o.ClientID
}

func (o OAuth) GetOIDCClientSecret() string {
	return o.ClientSecret
}

func (o OAuth) GetOIDCRedirectURL() string {
	return o.RedirectURL
}

// GetOIDCScopes returns nil when unset, which selects the provider defaults.
func (o OAuth) GetOIDCScopes() []string {
	return o.Scopes
}

func (o OAuth) GetLoginTimeout() time.Duration {
	return o.LoginTimeout
}

func (o *OAuth) sanitize() {
	scopes := o.Scopes[:0]
	for _, s := range o.Scopes {
		if s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		scopes = nil
	}
	o.Scopes = scopes
}

func (o OAuth) validate() error {
	if o.Issuer == "" {
		return errors.New("[config.Validate] OIDC_ISSUER is required for the interactive provider")
	}
	if o.ClientID == "" {
		return errors.New("[config.Validate] OIDC_CLIENT_ID is required for the interactive provider")
	}
	if o.RedirectURL == "" {
		return errors.New("[config.Validate] OIDC_REDIRECT_URL is required for the interactive provider")
	}
	return nil
}
