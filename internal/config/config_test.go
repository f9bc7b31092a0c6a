package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBaseEnv pins every variable the tests assert on, so the host
// environment cannot leak in.
func setBaseEnv(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"ENV":              "DEV",
		"LOG_LEVEL":        "info",
		"FOLDER":           t.TempDir(),
		"PORT":             "8080",
		"TOKEN_SECRET":     "",
		"TOKEN_TTL":        "15m",
		"CREDENTIALS_FILE": "",
		"REMOTE_LOGIN_URL": "",
		"OIDC_ISSUER":      "",
		"OIDC_CLIENT_ID":   "",
		"OIDC_SCOPES":      "",
		"STORE_BACKEND":    "memory",
		"STORE_PATH":       "",
		"API_BASE_URL":     "http://localhost:8080",
		"AUTH_SCHEME":      "Bearer",
		"REFRESH_SKEW":     "30s",
	} {
		t.Setenv(k, v)
	}
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_DirectDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_PROVIDER", " Direct ")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, provider.IDDirect, cfg.GetProvider())
	assert.NotEmpty(t, cfg.GetTokenSecret(), "DEV gets a development secret")
	assert.Equal(t, 15*time.Minute, cfg.GetTokenTTL())
	assert.Equal(t, ":8080", cfg.GetPort())
	assert.Equal(t, zerolog.InfoLevel, cfg.GetLogLevel())
	assert.Equal(t, config.StoreMemory, cfg.GetStoreBackend())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
	assert.Equal(t, 30*time.Second, cfg.GetRefreshSkew())
	assert.True(t, cfg.IsDev())
}

func TestLoad_ProviderIsRequired(t *testing.T) {
	setBaseEnv(t)

	t.Run("missing", func(t *testing.T) {
		unsetEnv(t, "AUTH_PROVIDER")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER", "")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER", "cognito")
		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), autherrors.ErrInvalidProvider.Error())
	})

	t.Run("unimplemented is a valid choice", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER", "unimplemented")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, provider.IDUnimplemented, cfg.GetProvider())
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "direct outside DEV needs a secret",
			env:     map[string]string{"AUTH_PROVIDER": "direct", "ENV": "PROD"},
			wantErr: true,
		},
		{
			name: "direct outside DEV with a secret",
			env:  map[string]string{"AUTH_PROVIDER": "direct", "ENV": "PROD", "TOKEN_SECRET": "s3cret"},
		},
		{
			name:    "interactive needs an issuer and client",
			env:     map[string]string{"AUTH_PROVIDER": "interactive"},
			wantErr: true,
		},
		{
			name: "interactive configured",
			env: map[string]string{
				"AUTH_PROVIDER":  "interactive",
				"OIDC_ISSUER":    "https://idp.example",
				"OIDC_CLIENT_ID": "cli",
			},
		},
		{
			name:    "unknown store backend",
			env:     map[string]string{"AUTH_PROVIDER": "direct", "STORE_BACKEND": "etcd"},
			wantErr: true,
		},
		{
			name:    "bad log level",
			env:     map[string]string{"AUTH_PROVIDER": "direct", "LOG_LEVEL": "loud"},
			wantErr: true,
		},
		{
			name:    "relative API URL",
			env:     map[string]string{"AUTH_PROVIDER": "direct", "API_BASE_URL": "/api"},
			wantErr: true,
		},
		{
			name:    "scheme with spaces",
			env:     map[string]string{"AUTH_PROVIDER": "direct", "AUTH_SCHEME": "Bearer token"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad_SQLitePathDefaultsUnderDataFolder(t *testing.T) {
	setBaseEnv(t)
	folder := t.TempDir()
	t.Setenv("AUTH_PROVIDER", "direct")
	t.Setenv("FOLDER", folder)
	t.Setenv("STORE_BACKEND", "SQLite")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.StoreSQLite, cfg.GetStoreBackend())
	assert.Equal(t, filepath.Join(folder, "credentials.db"), cfg.GetSQLitePath())
}

func TestLoad_DotEnvFile(t *testing.T) {
	setBaseEnv(t)
	// godotenv never overrides variables that are already set
	unsetEnv(t, "AUTH_PROVIDER", "OIDC_ISSUER", "OIDC_CLIENT_ID", "OIDC_SCOPES")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"AUTH_PROVIDER=interactive\nOIDC_ISSUER=https://idp.example\nOIDC_CLIENT_ID=cli\nOIDC_SCOPES=openid,,email\n",
	), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, provider.IDInteractive, cfg.GetProvider())
	assert.Equal(t, []string{"openid", "email"}, cfg.GetOIDCScopes())
	assert.Equal(t, "http://127.0.0.1:8765/callback", cfg.GetOIDCRedirectURL())
}
