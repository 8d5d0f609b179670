// Package extension provides the Forge extension adapter for the loyalty
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions,
// via YAML configuration files under "extensions.loyalty" or "loyalty" keys,
// or, outside Forge, through LoadConfig.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/lock"
	"github.com/xraph/loyalty/observability"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/store/leveldb"
	"github.com/xraph/loyalty/store/memory"
	"github.com/xraph/loyalty/store/mongo"
	"github.com/xraph/loyalty/store/postgres"
	"github.com/xraph/loyalty/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "loyalty"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Per-business loyalty token ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the loyalty engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *loyalty.Loyalty
	store       store.Store
	redis       redis.UniversalClient
	useGrove    bool
	loyaltyOpts []loyalty.Option
}

// New creates a new loyalty Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying loyalty engine.
// This is nil until Register is called.
func (e *Extension) Engine() *loyalty.Loyalty { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the loyalty engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.resolveStore(fapp.Container())
		if err != nil {
			return err
		}
		e.store = s
	}

	opts := e.buildLoyaltyOpts()
	if !e.config.DisableMetrics && fapp.Metrics() != nil {
		ext := observability.NewMetricsExtension(observability.NewUtilsFactory(fapp.Metrics()))
		opts = append(opts, loyalty.WithPlugin(ext))
	}

	e.engine = loyalty.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*loyalty.Loyalty, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("loyalty: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("loyalty: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// resolveStore picks the store backend: a grove.DB from the container when
// one was requested, then LevelDB when a path is configured, else memory.
func (e *Extension) resolveStore(c forge.Container) (store.Store, error) {
	if e.useGrove || e.config.GroveDatabase != "" {
		db, err := e.resolveGroveDB(c)
		if err != nil {
			return nil, err
		}
		return storeForGrove(db)
	}

	if e.config.LevelDBPath != "" {
		s, err := leveldb.Open(e.config.LevelDBPath)
		if err != nil {
			return nil, err
		}
		e.Logger().Info("loyalty: using leveldb store", forge.F("path", e.config.LevelDBPath))
		return s, nil
	}

	e.Logger().Debug("loyalty: no store configured, using memory store")
	return memory.New(), nil
}

func (e *Extension) resolveGroveDB(c forge.Container) (*grove.DB, error) {
	if e.config.GroveDatabase == "" {
		db, err := vessel.Inject[*grove.DB](c)
		if err != nil {
			return nil, fmt.Errorf("loyalty: resolve default grove database: %w", err)
		}
		return db, nil
	}
	db, err := vessel.InjectNamed[*grove.DB](c, e.config.GroveDatabase)
	if err != nil {
		return nil, fmt.Errorf("loyalty: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}
	return db, nil
}

// storeForGrove constructs the store matching db's driver.
func storeForGrove(db *grove.DB) (store.Store, error) {
	switch drv := db.Driver().(type) {
	case *pgdriver.PgDB:
		return postgres.New(db), nil
	case *sqlitedriver.SqliteDB:
		return sqlite.New(db), nil
	case *mongodriver.MongoDB:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("loyalty: unsupported grove driver %q", drv.Name())
	}
}

// buildLoyaltyOpts constructs loyalty.Option values from the resolved config.
func (e *Extension) buildLoyaltyOpts() []loyalty.Option {
	opts := make([]loyalty.Option, 0, len(e.loyaltyOpts)+6)

	opts = append(opts,
		loyalty.WithLockTimeout(e.config.LockTimeout),
		loyalty.WithPluginTimeout(e.config.PluginTimeout),
		loyalty.WithTokenValue(e.config.TokenValue),
		loyalty.WithCurrency(e.config.Currency),
	)

	if e.config.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{Addr: e.config.RedisAddr})
		opts = append(opts, loyalty.WithLocker(
			lock.NewRedis(e.redis, lock.WithTTL(e.config.RedisLockTTL)),
		))
	}

	// Append any pass-through loyalty options.
	opts = append(opts, e.loyaltyOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("loyalty: configuration is required but not found in config files; " +
				"ensure 'extensions.loyalty' or 'loyalty' key exists in your config")
		}
		e.config = programmaticConfig.withDefaults()
	} else {
		e.config = merge(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("loyalty: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_metrics", e.config.DisableMetrics),
		forge.F("grove_database", e.config.GroveDatabase),
		forge.F("lock_timeout", e.config.LockTimeout),
		forge.F("token_value", e.config.TokenValue),
		forge.F("currency", e.config.Currency),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.loyalty", "loyalty"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("loyalty: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("loyalty: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}
