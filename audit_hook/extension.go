// Package audithook bridges loyalty lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/plugin"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnBusinessRegistered    = (*Extension)(nil)
	_ plugin.OnBusinessUpdated       = (*Extension)(nil)
	_ plugin.OnBusinessStatusChanged = (*Extension)(nil)
	_ plugin.OnTokensMinted          = (*Extension)(nil)
	_ plugin.OnTokensBurned          = (*Extension)(nil)
	_ plugin.OnOperationRejected     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges loyalty lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnBusinessRegistered implements plugin.OnBusinessRegistered.
func (e *Extension) OnBusinessRegistered(ctx context.Context, b *business.Business) error {
	return e.record(ctx, ActionBusinessRegistered, SeverityInfo, OutcomeSuccess,
		ResourceBusiness, b.ID.String(), CategoryRegistry, nil,
		"owner", b.Owner,
		"name", b.Name,
		"category", string(b.Category),
		"tokens_per_dollar", b.TokensPerDollar,
	)
}

// OnBusinessUpdated implements plugin.OnBusinessUpdated.
func (e *Extension) OnBusinessUpdated(ctx context.Context, before, after *business.Business) error {
	return e.record(ctx, ActionBusinessUpdated, SeverityInfo, OutcomeSuccess,
		ResourceBusiness, after.ID.String(), CategoryRegistry, nil,
		"owner", after.Owner,
		"tokens_per_dollar_before", before.TokensPerDollar,
		"tokens_per_dollar", after.TokensPerDollar,
		"max_discount_before", before.MaxDiscount,
		"max_discount", after.MaxDiscount,
	)
}

// OnBusinessStatusChanged implements plugin.OnBusinessStatusChanged.
// Deactivation halts minting and burning, so it is recorded as a warning.
func (e *Extension) OnBusinessStatusChanged(ctx context.Context, b *business.Business) error {
	action, severity := ActionBusinessActivated, SeverityInfo
	if !b.IsActive {
		action, severity = ActionBusinessDeactivated, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceBusiness, b.ID.String(), CategoryRegistry, nil,
		"owner", b.Owner,
		"is_active", b.IsActive,
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTokensMinted implements plugin.OnTokensMinted.
func (e *Extension) OnTokensMinted(ctx context.Context, rec *transaction.Record) error {
	return e.record(ctx, ActionTokensMinted, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, rec.ID.String(), CategoryLedger, nil,
		"customer", rec.Customer,
		"business_id", rec.BusinessID.String(),
		"amount_usd", rec.AmountUSD,
		"tokens", rec.TokensAmount,
		"balance_after", rec.BalanceAfter,
		"signature", rec.Signature,
	)
}

// OnTokensBurned implements plugin.OnTokensBurned.
func (e *Extension) OnTokensBurned(ctx context.Context, rec *transaction.Record, discount types.Money) error {
	return e.record(ctx, ActionTokensBurned, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, rec.ID.String(), CategoryLedger, nil,
		"customer", rec.Customer,
		"business_id", rec.BusinessID.String(),
		"tokens", rec.TokensAmount,
		"discount_percentage", rec.DiscountPercentage,
		"discount", discount.String(),
		"balance_after", rec.BalanceAfter,
		"signature", rec.Signature,
	)
}

// OnOperationRejected implements plugin.OnOperationRejected. Ownership
// failures are filed under access with a higher severity.
func (e *Extension) OnOperationRejected(ctx context.Context, op string, opErr error) error {
	category, severity := CategoryLedger, SeverityInfo
	switch {
	case loyalty.IsUnauthorized(opErr):
		category, severity = CategoryAccess, SeverityWarning
	case errors.Is(opErr, loyalty.ErrArithmeticOverflow):
		severity = SeverityError
	}
	return e.record(ctx, ActionOperationRejected, severity, OutcomeFailure,
		ResourceOperation, op, category, opErr,
		"operation", op,
		"retryable", loyalty.IsRetryable(opErr),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
