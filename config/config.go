// Package config loads the projauth server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store backends selectable with PROJAUTH_STORE
const (
	StoreFS   = "fs"
	StoreGorm = "gorm"
	StorePG   = "pg"
	StoreGAE  = "gae"
)

// Config holds every setting of the server
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	JWTSecret       string        `env:"PROJAUTH_JWT_SECRET,required"`
	JWTIssuer       string        `env:"PROJAUTH_JWT_ISSUER" envDefault:"projauth"`
	SessionTTL      time.Duration `env:"PROJAUTH_SESSION_TTL" envDefault:"168h"`
	StateTTL        time.Duration `env:"PROJAUTH_STATE_TTL" envDefault:"5m"`
	ResetTokenTTL   time.Duration `env:"PROJAUTH_RESET_TOKEN_TTL" envDefault:"60m"`
	BcryptCost      int           `env:"PROJAUTH_BCRYPT_COST" envDefault:"10"`
	FrontendURL     string        `env:"PROJAUTH_FRONTEND_URL" envDefault:"http://localhost:3000"`
	ProviderTimeout time.Duration `env:"PROJAUTH_PROVIDER_TIMEOUT" envDefault:"10s"`

	Store         string `env:"PROJAUTH_STORE" envDefault:"fs"`
	FSPath        string `env:"PROJAUTH_FS_PATH" envDefault:"./data"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DatastoreProj string `env:"DATASTORE_PROJECT_ID"`
	DatastoreNS   string `env:"DATASTORE_NAMESPACE"`

	// Service account key file. Empty uses application default credentials.
	DatastoreCredentials string `env:"DATASTORE_CREDENTIALS_FILE"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	GithubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`
	GithubCallbackURL  string `env:"OAUTH2_GITHUB_CALLBACK_URL"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Projauth"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig parses the environment and checks the settings that depend on each other
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreFS:
		if c.FSPath == "" {
			return fmt.Errorf("PROJAUTH_FS_PATH is required for the fs store")
		}
	case StoreGorm, StorePG:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.Store)
		}
	case StoreGAE:
		if c.DatastoreProj == "" {
			return fmt.Errorf("DATASTORE_PROJECT_ID is required for the gae store")
		}
	default:
		return fmt.Errorf("unknown PROJAUTH_STORE %q", c.Store)
	}
	if c.SessionTTL <= 0 || c.StateTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}

// GithubEnabled returns true if the GitHub client is configured
func (c *Config) GithubEnabled() bool {
	return c.GithubClientID != "" && c.GithubClientSecret != ""
}

// SMTPEnabled returns true if reset emails should go through SMTP
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}
