package extension

import (
	"time"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/plugin"
	"github.com/xraph/loyalty/types"
)

// Config holds the loyalty extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.loyalty" or "loyalty" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableMetrics prevents registering the metrics plugin over the
	// application's metric factory.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// LevelDBPath opens an embedded LevelDB store at this directory when no
	// other store is configured.
	LevelDBPath string `json:"leveldb_path" mapstructure:"leveldb_path" yaml:"leveldb_path"`

	// RedisAddr switches per-balance locking to Redis so several processes
	// can share one store.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisLockTTL bounds how long a crashed holder keeps a Redis lock
	// (default: 10s).
	RedisLockTTL time.Duration `json:"redis_lock_ttl" mapstructure:"redis_lock_ttl" yaml:"redis_lock_ttl"`

	// LockTimeout bounds how long a mutation waits for its balance key
	// (default: 5s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// TokenValue is the discount one burned token buys, in minor currency
	// units (default: 1).
	TokenValue uint64 `json:"token_value" mapstructure:"token_value" yaml:"token_value"`

	// Currency is the ISO 4217 code of purchase amounts and discounts
	// (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisLockTTL:  10 * time.Second,
		LockTimeout:   loyalty.DefaultLockTimeout,
		PluginTimeout: plugin.DefaultTimeout,
		TokenValue:    1,
		Currency:      types.DefaultCurrency,
	}
}

// withDefaults fills zero-valued fields with defaults.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RedisLockTTL == 0 {
		c.RedisLockTTL = defaults.RedisLockTTL
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = defaults.LockTimeout
	}
	if c.PluginTimeout == 0 {
		c.PluginTimeout = defaults.PluginTimeout
	}
	if c.TokenValue == 0 {
		c.TokenValue = defaults.TokenValue
	}
	if c.Currency == "" {
		c.Currency = defaults.Currency
	}
	return c
}

// merge overlays file config with programmatic config. File values take
// precedence; programmatic values fill gaps and programmatic bool flags
// override when true.
func merge(file, programmatic Config) Config {
	if programmatic.DisableMigrate {
		file.DisableMigrate = true
	}
	if programmatic.DisableMetrics {
		file.DisableMetrics = true
	}

	if file.GroveDatabase == "" {
		file.GroveDatabase = programmatic.GroveDatabase
	}
	if file.LevelDBPath == "" {
		file.LevelDBPath = programmatic.LevelDBPath
	}
	if file.RedisAddr == "" {
		file.RedisAddr = programmatic.RedisAddr
	}
	if file.RedisLockTTL == 0 {
		file.RedisLockTTL = programmatic.RedisLockTTL
	}
	if file.LockTimeout == 0 {
		file.LockTimeout = programmatic.LockTimeout
	}
	if file.PluginTimeout == 0 {
		file.PluginTimeout = programmatic.PluginTimeout
	}
	if file.TokenValue == 0 {
		file.TokenValue = programmatic.TokenValue
	}
	if file.Currency == "" {
		file.Currency = programmatic.Currency
	}

	return file.withDefaults()
}
