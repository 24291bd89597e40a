package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PROJAUTH_JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 168*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.StateTTL)
	assert.Equal(t, 60*time.Minute, cfg.ResetTokenTTL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, StoreFS, cfg.Store)
	assert.False(t, cfg.GithubEnabled())
	assert.False(t, cfg.SMTPEnabled())
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	t.Setenv("PROJAUTH_JWT_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PROJAUTH_JWT_SECRET", "secret")
	t.Setenv("PROJAUTH_STORE", "pg")
	t.Setenv("DATABASE_URL", "postgres://localhost/projauth")
	t.Setenv("PROJAUTH_RESET_TOKEN_TTL", "15m")
	t.Setenv("OAUTH2_GITHUB_CLIENT_ID", "id")
	t.Setenv("OAUTH2_GITHUB_CLIENT_SECRET", "shh")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorePG, cfg.Store)
	assert.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	assert.True(t, cfg.GithubEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"fs ok", Config{Store: StoreFS, FSPath: "/tmp/x", SessionTTL: time.Hour, StateTTL: time.Minute, ResetTokenTTL: time.Hour}, false},
		{"gorm without dsn", Config{Store: StoreGorm, SessionTTL: time.Hour, StateTTL: time.Minute, ResetTokenTTL: time.Hour}, true},
		{"gae without project", Config{Store: StoreGAE, SessionTTL: time.Hour, StateTTL: time.Minute, ResetTokenTTL: time.Hour}, true},
		{"unknown store", Config{Store: "mongo", SessionTTL: time.Hour, StateTTL: time.Minute, ResetTokenTTL: time.Hour}, true},
		{"zero ttl", Config{Store: StoreFS, FSPath: "/tmp/x", StateTTL: time.Minute, ResetTokenTTL: time.Hour}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
