package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                   = "FOLIO"
	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultDatabasePath         = "folio.db"
	defaultLogLevel             = "info"
	defaultIdentityHeader       = "X-Folio-User"
	defaultLockTTLMinutes       = 30
	defaultCommitTimeoutSeconds = 20
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	IdentityHeader string
	LockTTL        time.Duration
	CommitTimeout  time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("identity.header", defaultIdentityHeader)
	configViper.SetDefault("lock.ttl_minutes", defaultLockTTLMinutes)
	configViper.SetDefault("commit.timeout_seconds", defaultCommitTimeoutSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		IdentityHeader: configViper.GetString("identity.header"),
		LockTTL:        time.Duration(configViper.GetInt("lock.ttl_minutes")) * time.Minute,
		CommitTimeout:  time.Duration(configViper.GetInt("commit.timeout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.IdentityHeader) == "" {
		return fmt.Errorf("identity.header is required")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock.ttl_minutes must be positive")
	}
	if c.CommitTimeout <= 0 {
		return fmt.Errorf("commit.timeout_seconds must be positive")
	}
	return nil
}
