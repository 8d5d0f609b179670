package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches hooks to them.
// Hook implementations are cached per interface at registration so a
// dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onBusinessRegistered    []OnBusinessRegistered
	onBusinessUpdated       []OnBusinessUpdated
	onBusinessStatusChanged []OnBusinessStatusChanged
	onTokensMinted          []OnTokensMinted
	onTokensBurned          []OnTokensBurned
	onOperationRejected     []OnOperationRejected
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnBusinessRegistered); ok {
		r.onBusinessRegistered = append(r.onBusinessRegistered, v)
		hooks = append(hooks, "OnBusinessRegistered")
	}
	if v, ok := p.(OnBusinessUpdated); ok {
		r.onBusinessUpdated = append(r.onBusinessUpdated, v)
		hooks = append(hooks, "OnBusinessUpdated")
	}
	if v, ok := p.(OnBusinessStatusChanged); ok {
		r.onBusinessStatusChanged = append(r.onBusinessStatusChanged, v)
		hooks = append(hooks, "OnBusinessStatusChanged")
	}
	if v, ok := p.(OnTokensMinted); ok {
		r.onTokensMinted = append(r.onTokensMinted, v)
		hooks = append(hooks, "OnTokensMinted")
	}
	if v, ok := p.(OnTokensBurned); ok {
		r.onTokensBurned = append(r.onTokensBurned, v)
		hooks = append(hooks, "OnTokensBurned")
	}
	if v, ok := p.(OnOperationRejected); ok {
		r.onOperationRejected = append(r.onOperationRejected, v)
		hooks = append(hooks, "OnOperationRejected")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, engine) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitBusinessRegistered emits a business registered event.
func (r *Registry) EmitBusinessRegistered(ctx context.Context, b *business.Business) {
	r.mu.RLock()
	plugins := r.onBusinessRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBusinessRegistered", func() error {
			return p.OnBusinessRegistered(ctx, b.Clone())
		})
	}
}

// EmitBusinessUpdated emits a business settings update event.
func (r *Registry) EmitBusinessUpdated(ctx context.Context, before, after *business.Business) {
	r.mu.RLock()
	plugins := r.onBusinessUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBusinessUpdated", func() error {
			return p.OnBusinessUpdated(ctx, before.Clone(), after.Clone())
		})
	}
}

// EmitBusinessStatusChanged emits an activation change event.
func (r *Registry) EmitBusinessStatusChanged(ctx context.Context, b *business.Business) {
	r.mu.RLock()
	plugins := r.onBusinessStatusChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBusinessStatusChanged", func() error {
			return p.OnBusinessStatusChanged(ctx, b.Clone())
		})
	}
}

// EmitTokensMinted emits a mint event.
func (r *Registry) EmitTokensMinted(ctx context.Context, rec *transaction.Record) {
	r.mu.RLock()
	plugins := r.onTokensMinted
	r.mu.RUnlock()

	for _, p := range plugins {
		cp := *rec
		r.dispatch(ctx, p.Name(), "OnTokensMinted", func() error {
			return p.OnTokensMinted(ctx, &cp)
		})
	}
}

// EmitTokensBurned emits a burn event.
func (r *Registry) EmitTokensBurned(ctx context.Context, rec *transaction.Record, discount types.Money) {
	r.mu.RLock()
	plugins := r.onTokensBurned
	r.mu.RUnlock()

	for _, p := range plugins {
		cp := *rec
		r.dispatch(ctx, p.Name(), "OnTokensBurned", func() error {
			return p.OnTokensBurned(ctx, &cp, discount)
		})
	}
}

// EmitOperationRejected emits a failed-operation event.
func (r *Registry) EmitOperationRejected(ctx context.Context, op string, opErr error) {
	r.mu.RLock()
	plugins := r.onOperationRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnOperationRejected", func() error {
			return p.OnOperationRejected(ctx, op, opErr)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout runs fn but stops waiting after the registry timeout or
// when ctx ends. Plugins never block a ledger operation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
