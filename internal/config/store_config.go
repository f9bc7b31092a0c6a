package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// StoreConfig selects where the credential record is persisted.
type StoreConfig interface {
	GetStoreBackend() string
	GetSQLitePath() string
	GetStoreEncryptionKey() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

type Store struct {
	Backend       string `env:"BACKEND" envDefault:"sqlite"`
	Path          string `env:"PATH"` // sqlite file; defaults to <FOLDER>/credentials.db
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"authclient:"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string {
	return s.Backend
}

func (s Store) GetSQLitePath() string {
	return s.Path
}

// GetStoreEncryptionKey returns the passphrase values are sealed with; empty
// disables encryption.
func (s Store) GetStoreEncryptionKey() string {
	return s.EncryptionKey
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

func (s Store) GetRedisKeyPrefix() string {
	return s.RedisPrefix
}

func (s *Store) sanitize(dataFolder string) {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Path == "" {
		s.Path = filepath.Join(dataFolder, "credentials.db")
	}
}

func (s Store) validate() error {
	switch s.Backend {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("[config.Validate] STORE_REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("[config.Validate] STORE_BACKEND %q: want %s, %s or %s", s.Backend, StoreMemory, StoreSQLite, StoreRedis)
	}
	return nil
}
