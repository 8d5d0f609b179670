package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/loyalty/lock"
	"github.com/xraph/loyalty/plugin"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/types"
)

// DefaultLockTimeout bounds how long a mutation waits for its key.
const DefaultLockTimeout = 5 * time.Second

// Loyalty is the loyalty-token ledger engine. It owns the business
// registry, the per-customer token balances and the transaction log, and
// is safe for concurrent use.
type Loyalty struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	locker   lock.Locker
	clock    Clock
	validate *validator.Validate

	lockTimeout time.Duration
	tokenValue  uint64
	currency    string
}

// New creates a new Loyalty engine over s.
func New(s store.Store, opts ...Option) *Loyalty {
	l := &Loyalty{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		locker:      lock.NewKeyed(),
		clock:       SystemClock(),
		validate:    newValidator(),
		lockTimeout: DefaultLockTimeout,
		tokenValue:  1,
		currency:    types.DefaultCurrency,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Loyalty instance.
type Option func(*Loyalty)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loyalty) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Loyalty) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Loyalty) {
		l.plugins.WithTimeout(d)
	}
}

// WithClock replaces the wall clock. The clock is wrapped so that the
// timestamps it yields never go backwards.
func WithClock(c Clock) Option {
	return func(l *Loyalty) {
		l.clock = Monotonic(c)
	}
}

// WithLocker replaces the in-process keyed locker, e.g. with a
// lock.Redis shared by several engine instances.
func WithLocker(locker lock.Locker) Option {
	return func(l *Loyalty) {
		l.locker = locker
	}
}

// WithLockTimeout bounds how long a mutation waits for its key.
func WithLockTimeout(d time.Duration) Option {
	return func(l *Loyalty) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

// WithTokenValue sets the discount, in minor currency units, granted per
// burned token. The default is 1 (one token is worth one cent).
func WithTokenValue(minorUnits uint64) Option {
	return func(l *Loyalty) {
		if minorUnits > 0 {
			l.tokenValue = minorUnits
		}
	}
}

// WithCurrency sets the currency purchase amounts and discounts are
// denominated in (default "usd").
func WithCurrency(currency string) Option {
	return func(l *Loyalty) {
		if currency != "" {
			l.currency = currency
		}
	}
}

// Start migrates the store and initializes plugins.
func (l *Loyalty) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("loyalty started",
		"plugins", l.plugins.Count(),
		"token_value", l.tokenValue,
		"currency", l.currency,
		"lock_timeout", l.lockTimeout,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Loyalty) Stop() error {
	l.plugins.EmitShutdown(context.Background())

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Loyalty) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Loyalty) Plugins() *plugin.Registry { return l.plugins }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// acquire takes the lock for key, waiting at most the lock timeout.
func (l *Loyalty) acquire(ctx context.Context, key string) (lock.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	unlock, err := l.locker.Lock(lockCtx, key)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, err
	}
	return unlock, nil
}

// reject reports a failed mutation to plugins.
func (l *Loyalty) reject(ctx context.Context, op string, err error) {
	l.logger.Debug("loyalty operation rejected",
		"op", op,
		"error", err,
	)
	l.plugins.EmitOperationRejected(ctx, op, err)
}
