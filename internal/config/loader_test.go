package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\ngrace_period: 30s\nchat_history_size: 20\n"), 0o600))
	t.Setenv("WATCHPARTY_CHAT_HISTORY_SIZE", "50")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.GracePeriod)
	assert.Equal(t, 50, cfg.ChatHistorySize)
	assert.Equal(t, Default().WatchRecordTimeout, cfg.WatchRecordTimeout)
}

func TestUpdateFromAndValidate(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1234", LogLevel: "debug"})
	assert.Equal(t, ":1234", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Default().GracePeriod, cfg.GracePeriod)

	cfg.GracePeriod = 0
	cfg.JWTSecret = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grace_period")
	assert.Contains(t, err.Error(), "jwt_secret")
}
