package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-auth-client/provider"
)

type Config interface {
	EnvConfig
	ProviderConfig
	DirectConfig
	InteractiveConfig
	StoreConfig
	TransportConfig
}

type ProviderConfig interface {
	GetProvider() provider.ID
}

// Settings is the parsed environment. Each embedded struct serves one of the
// per-concern interfaces.
type Settings struct {
	EnvVars
	Provider provider.ID `env:"AUTH_PROVIDER,required,notEmpty"`
	Direct
	OAuth    `envPrefix:"OIDC_"`
	Store    `envPrefix:"STORE_"`
	Transport
}

var _ Config = (*Settings)(nil)

func (s *Settings) GetProvider() provider.ID {
	return s.Provider
}

// Load reads an optional .env file (or the given files), then the process
// environment, and validates the result. Missing .env files are not an error.
func Load(files ...string) (*Settings, error) {
	if err := godotenv.Load(files...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("[config.Load] load .env file: %w", err)
		}
	}

	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("[config.Load] parse environment: %w", err)
	}
	s.sanitize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) sanitize() {
	s.EnvVars.sanitize()
	s.Direct.sanitize(s.IsDev())
	s.OAuth.sanitize()
	s.Store.sanitize(s.GetDataFolder())
	s.Transport.sanitize()
}

// Validate fails fast on settings the selected provider or store cannot run
// with.
func (s *Settings) Validate() error {
	if _, err := provider.ParseID(s.Provider.String()); err != nil {
		return fmt.Errorf("[config.Validate] AUTH_PROVIDER: %w", err)
	}
	if err := s.EnvVars.validate(); err != nil {
		return err
	}
	switch s.Provider {
	case provider.IDDirect:
		if err := s.Direct.validate(); err != nil {
			return err
		}
	case provider.IDInteractive:
		if err := s.OAuth.validate(); err != nil {
			return err
		}
	}
	if err := s.Store.validate(); err != nil {
		return err
	}
	return s.Transport.validate()
}
