package config

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// TransportConfig covers calls to the protected backend.
type TransportConfig interface {
	GetAPIBaseURL() string
	GetAuthScheme() string
	GetRefreshSkew() time.Duration
	GetRequestTimeout() time.Duration
}

type Transport struct {
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	AuthScheme     string        `env:"AUTH_SCHEME" envDefault:"Bearer"`
	RefreshSkew    time.Duration `env:"REFRESH_SKEW" envDefault:"30s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

var _ TransportConfig = Transport{}

func (t Transport) GetAPIBaseURL() string {
	return t.APIBaseURL
}

func (t Transport) GetAuthScheme() string {
	return t.AuthScheme
}

func (t Transport) GetRefreshSkew() time.Duration {
	return t.RefreshSkew
}

func (t Transport) GetRequestTimeout() time.Duration {
	return t.RequestTimeout
}

func (t *Transport) sanitize() {
	t.APIBaseURL = strings.TrimRight(strings.TrimSpace(t.APIBaseURL), "/")
	t.AuthScheme = strings.TrimSpace(t.AuthScheme)
}

func (t Transport) validate() error {
	u, err := url.Parse(t.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("[config.Validate] API_BASE_URL must be an absolute URL")
	}
	if t.AuthScheme == "" || strings.ContainsAny(t.AuthScheme, " \t") {
		return errors.New("[config.Validate] AUTH_SCHEME must be a single token")
	}
	if t.RefreshSkew < 0 {
		return errors.New("[config.Validate] REFRESH_SKEW must not be negative")
	}
	return nil
}
