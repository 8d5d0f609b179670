// Package plugin provides lifecycle hooks into the loyalty engine.
// Plugins implement Plugin plus any subset of the hook interfaces below;
// the Registry discovers which ones at registration time.
package plugin

import (
	"context"

	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnBusinessRegistered is called after a business is created.
type OnBusinessRegistered interface {
	Plugin
	OnBusinessRegistered(ctx context.Context, b *business.Business) error
}

// OnBusinessUpdated is called after an owner changes reward settings.
type OnBusinessUpdated interface {
	Plugin
	OnBusinessUpdated(ctx context.Context, before, after *business.Business) error
}

// OnBusinessStatusChanged is called after a business is activated or
// deactivated. b.IsActive holds the new state.
type OnBusinessStatusChanged interface {
	Plugin
	OnBusinessStatusChanged(ctx context.Context, b *business.Business) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTokensMinted is called after an earn record is committed.
type OnTokensMinted interface {
	Plugin
	OnTokensMinted(ctx context.Context, rec *transaction.Record) error
}

// OnTokensBurned is called after a redeem record is committed.
type OnTokensBurned interface {
	Plugin
	OnTokensBurned(ctx context.Context, rec *transaction.Record, discount types.Money) error
}

// OnOperationRejected is called when a mutating operation fails.
// op is the operation name, e.g. "burn_for_discount".
type OnOperationRejected interface {
	Plugin
	OnOperationRejected(ctx context.Context, op string, err error) error
}
