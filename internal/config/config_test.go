package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerFlags_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "APP_ENV", "LOG_LEVEL", "ALLOWED_ORIGINS", "SEND_QUEUE_SIZE", "ROOM_IDLE_TIMEOUT", "PING_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg, err := ParseServerFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 256, cfg.SendQueueSize)
	assert.Equal(t, 5*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
}

func TestParseServerFlags_FlagBeatsEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, https://charts.example.com")

	cfg, err := ParseServerFlags([]string{"-p", "7000", "-ping", "5s"})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, []string{"http://localhost:3000", "https://charts.example.com"}, cfg.AllowedOrigins)
}

func TestParseServerFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "bad port env", env: map[string]string{"PORT": "eighty"}},
		{name: "port out of range", args: []string{"-p", "70000"}},
		{name: "bad duration", env: map[string]string{"ROOM_IDLE_TIMEOUT": "soon"}},
		{name: "negative queue", args: []string{"-queue", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := ParseServerFlags(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseClientFlags(t *testing.T) {
	t.Setenv("DISPLAY_NAME", "")
	_, err := ParseClientFlags(nil)
	require.Error(t, err, "display name is required")

	t.Setenv("DISPLAY_NAME", "alice")
	t.Setenv("RECONNECT_MAX_RETRIES", "3")
	cfg, err := ParseClientFlags([]string{"-room", "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.DisplayName)
	assert.Equal(t, "abc123", cfg.RoomID)
	assert.Equal(t, 3, cfg.ReconnectMaxRetries)
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 30*time.Second, cfg.ReconnectCap)
	assert.Equal(t, 100*time.Millisecond, cfg.SyncSettleDelay)

	_, err = ParseClientFlags([]string{"-reconnect-base", "10s", "-reconnect-cap", "1s"})
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("COLLAB_TEST_VALUE=from-file\n"), 0o600))

	t.Setenv("COLLAB_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("COLLAB_TEST_VALUE"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("COLLAB_TEST_VALUE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
