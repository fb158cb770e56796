package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, env, body string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", env+".yaml"), []byte(body), 0o600))
	t.Chdir(dir)
	t.Setenv("APP_ENV", env)
}

func TestLoadAppliesDefaultsAndFile(t *testing.T) {
	writeConfig(t, "testing", `
bot:
  offline: true
database:
  driver: memory
admin:
  password: secret
  session_secret: 0123456789abcdef
`)

	cfg, v, err := Load()
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "testing", cfg.AppEnv)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.ConnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectDelay)
	assert.Equal(t, "idempotent", cfg.Purchases.BundlePolicy)
	assert.InDelta(t, 0.8, cfg.Purchases.Discount, 1e-9)
	assert.InDelta(t, 30.0, cfg.Broadcast.RatePerSecond, 1e-9)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	writeConfig(t, "testing", `
bot:
  offline: true
database:
  driver: memory
admin:
  password: secret
  session_secret: 0123456789abcdef
`)
	t.Setenv("PURCHASES_BUNDLE_POLICY", "reject")
	t.Setenv("BROADCAST_MAX_RETRIES", "0")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reject", cfg.Purchases.BundlePolicy)
	assert.Zero(t, cfg.Broadcast.MaxRetries)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing token",
			body: "database:\n  driver: memory\nadmin:\n  password: x\n  session_secret: 0123456789abcdef\n",
		},
		{
			name: "unknown bundle policy",
			body: "bot:\n  offline: true\ndatabase:\n  driver: memory\nadmin:\n  password: x\n  session_secret: 0123456789abcdef\npurchases:\n  bundle_policy: twice\n",
		},
		{
			name: "no admin credential",
			body: "bot:\n  offline: true\ndatabase:\n  driver: memory\nadmin:\n  session_secret: 0123456789abcdef\n",
		},
		{
			name: "postgres without dsn",
			body: "bot:\n  offline: true\nadmin:\n  password: x\n  session_secret: 0123456789abcdef\n",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			writeConfig(t, "testing", tc.body)

			_, _, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestBotConfigIsAdmin(t *testing.T) {
	cfg := BotConfig{AdminIDs: []int64{10, 20}}

	assert.True(t, cfg.IsAdmin(20))
	assert.False(t, cfg.IsAdmin(30))
}
