package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Notification.ReminderWindow)
	assert.Zero(t, cfg.Notification.ReminderInterval)
	assert.Equal(t, "log", cfg.Notification.Sender)
	assert.True(t, cfg.Database.IsEmbedded())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: postgres
  url: postgres://library@localhost/library
inventory:
  lock_retries: 3
`), 0o600))

	t.Setenv("ALEXANDER_SERVER_PORT", "9191")
	t.Setenv("ALEXANDER_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://library@localhost/library", cfg.Database.DSN())
	assert.False(t, cfg.Database.IsEmbedded())
	assert.Equal(t, 3, cfg.Inventory.LockRetries)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		chdir(t, t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"bad sender", func(c *Config) { c.Notification.Sender = "pigeon" }, "notification.sender"},
		{"negative reminder interval", func(c *Config) { c.Notification.ReminderInterval = -time.Second }, "notification.reminder_interval"},
		{"reminders without window", func(c *Config) {
			c.Notification.ReminderInterval = time.Hour
			c.Notification.ReminderWindow = 0
		}, "notification.reminder_window"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"conflict retries", func(c *Config) { c.Inventory.MaxConflictRetries = 0 }, "inventory.max_conflict_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
