package extension

import (
	"time"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/plugin"
	"github.com/xraph/loyalty/store"
)

// Option configures the loyalty Forge extension.
type Option func(*Extension)

// WithStore sets the store for the loyalty engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLoyaltyOption passes a loyalty.Option through to the underlying engine.
func WithLoyaltyOption(opt loyalty.Option) Option {
	return func(e *Extension) {
		e.loyaltyOpts = append(e.loyaltyOpts, opt)
	}
}

// WithPlugin registers a loyalty plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.loyaltyOpts = append(e.loyaltyOpts, loyalty.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableMetrics prevents registering the metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithLevelDBPath opens an embedded LevelDB store at path when no other
// store is configured.
func WithLevelDBPath(path string) Option {
	return func(e *Extension) { e.config.LevelDBPath = path }
}

// WithRedisAddr coordinates balance locks through the Redis server at addr.
func WithRedisAddr(addr string) Option {
	return func(e *Extension) { e.config.RedisAddr = addr }
}

// WithLockTimeout sets how long a mutation waits for its balance key.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTimeout = d }
}

// WithTokenValue sets the discount one burned token buys, in minor units.
func WithTokenValue(minorUnits uint64) Option {
	return func(e *Extension) { e.config.TokenValue = minorUnits }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
