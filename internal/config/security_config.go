package config

import (
	"errors"
	"net/url"
	"time"
)

// devTokenSecret lets the demo run without setup. Validate refuses it outside DEV.
const devTokenSecret = "insecure-dev-secret"

// DirectConfig covers the direct provider: how credentials are checked and
// how its tokens are signed.
type DirectConfig interface {
	GetTokenSecret() string
	GetTokenTTL() time.Duration
	GetTokenIssuer() string
	GetCredentialsFile() string
	GetRemoteLoginURL() string
}

type Direct struct {
	TokenSecret     string        `env:"TOKEN_SECRET"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"15m"`
	TokenIssuer     string        `env:"TOKEN_ISSUER" envDefault:"go-auth-client"`
	CredentialsFile string        `env:"CREDENTIALS_FILE"` // YAML table; empty means the demo account
	RemoteLoginURL  string        `env:"REMOTE_LOGIN_URL"` // when set, credentials are checked by this endpoint
}

var _ DirectConfig = Direct{}

func (d Direct) GetTokenSecret() string {
	return d.TokenSecret
}

func (d Direct) GetTokenTTL() time.Duration {
	return d.TokenTTL
}

func (d Direct) GetTokenIssuer() string {
	return d.TokenIssuer
}

func (d Direct) GetCredentialsFile() string {
	return d.CredentialsFile
}

func (d Direct) GetRemoteLoginURL() string {
	return d.RemoteLoginURL
}

func (d *Direct) sanitize(isDev bool) {
	if d.TokenSecret == "" && isDev {
		d.TokenSecret = devTokenSecret
	}
}

func (d Direct) validate() error {
	if d.TokenSecret == "" {
		return errors.New("[config.Validate] TOKEN_SECRET is required for the direct provider outside DEV")
	}
	if d.TokenTTL <= 0 {
		return errors.New("[config.Validate] TOKEN_TTL must be positive")
	}
	if d.RemoteLoginURL != "" {
		if _, err := url.ParseRequestURI(d.RemoteLoginURL); err != nil {
			return errors.New("[config.Validate] REMOTE_LOGIN_URL is not a valid URL")
		}
	}
	return nil
}
