package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	IsDev() bool
	GetLogLevel() zerolog.Level
	GetDataFolder() string
	GetPort() string
}

type EnvVars struct {
	AppName    string `env:"APP_NAME" envDefault:"Auth Client"`
	Env        string `env:"ENV" envDefault:"DEV"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	DataFolder string `env:"FOLDER" envDefault:"./data"`
	Port       string `env:"PORT" envDefault:"8080"` // demo API listen port
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) IsDev() bool {
	return e.Env == "DEV"
}

// GetLogLevel returns the configured level; validate has already rejected
// unknown names.
func (e EnvVars) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(e.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e *EnvVars) sanitize() {
	e.Env = strings.ToUpper(strings.TrimSpace(e.Env))
	e.LogLevel = strings.ToLower(strings.TrimSpace(e.LogLevel))
}

func (e EnvVars) validate() error {
	if _, err := zerolog.ParseLevel(e.LogLevel); err != nil {
		return fmt.Errorf("[config.Validate] LOG_LEVEL %q: %w", e.LogLevel, err)
	}
	return nil
}
