package extension

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/plugin"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, loyalty.DefaultLockTimeout, cfg.LockTimeout)
	assert.Equal(t, plugin.DefaultTimeout, cfg.PluginTimeout)
	assert.Equal(t, 10*time.Second, cfg.RedisLockTTL)
	assert.Equal(t, uint64(1), cfg.TokenValue)
	assert.Equal(t, "usd", cfg.Currency)
	assert.False(t, cfg.DisableMigrate)
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{LockTimeout: time.Second, TokenValue: 5}.withDefaults()
	assert.Equal(t, time.Second, cfg.LockTimeout)
	assert.Equal(t, uint64(5), cfg.TokenValue)
	assert.Equal(t, plugin.DefaultTimeout, cfg.PluginTimeout)
	assert.Equal(t, "usd", cfg.Currency)
}

func TestMerge(t *testing.T) {
	file := Config{LockTimeout: 2 * time.Second, Currency: "eur"}
	programmatic := Config{
		LockTimeout:    time.Minute,
		DisableMetrics: true,
		LevelDBPath:    "/var/lib/loyalty",
	}

	cfg := merge(file, programmatic)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout, "file value wins")
	assert.Equal(t, "eur", cfg.Currency)
	assert.True(t, cfg.DisableMetrics, "programmatic flag applies")
	assert.Equal(t, "/var/lib/loyalty", cfg.LevelDBPath, "programmatic fills gaps")
	assert.Equal(t, uint64(1), cfg.TokenValue, "defaults fill the rest")
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loyalty.yaml")
	yaml := `
lock_timeout: 2s
plugin_timeout: 750ms
token_value: 2
currency: eur
disable_metrics: true
redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.PluginTimeout)
	assert.Equal(t, uint64(2), cfg.TokenValue)
	assert.Equal(t, "eur", cfg.Currency)
	assert.True(t, cfg.DisableMetrics)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.RedisLockTTL)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loyalty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lock_timeout: 2s\ncurrency: eur\n"), 0o600))

	t.Setenv("LOYALTY_LOCK_TIMEOUT", "3s")
	t.Setenv("LOYALTY_TOKEN_VALUE", "4")
	t.Setenv("LOYALTY_DISABLE_MIGRATE", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, uint64(4), cfg.TokenValue)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "eur", cfg.Currency)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
