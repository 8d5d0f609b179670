// Package observability provides a metrics extension for the loyalty engine
// that records lifecycle event counts through a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/plugin"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnBusinessRegistered    = (*MetricsExtension)(nil)
	_ plugin.OnBusinessUpdated       = (*MetricsExtension)(nil)
	_ plugin.OnBusinessStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnTokensMinted          = (*MetricsExtension)(nil)
	_ plugin.OnTokensBurned          = (*MetricsExtension)(nil)
	_ plugin.OnOperationRejected     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// Metric names.
const (
	MetricBusinessRegistered  = "loyalty.business.registered"
	MetricBusinessUpdated     = "loyalty.business.updated"
	MetricBusinessDeactivated = "loyalty.business.deactivated"
	MetricBusinessActivated   = "loyalty.business.activated"

	MetricTokensMinted       = "loyalty.tokens.minted"
	MetricTokensMintedAmount = "loyalty.tokens.minted.amount"
	MetricTokensBurned       = "loyalty.tokens.burned"
	MetricTokensBurnedAmount = "loyalty.tokens.burned.amount"
	MetricTransactions       = "loyalty.transactions.recorded"
	MetricRejected           = "loyalty.operation.rejected"

	MetricMintAmountUSD      = "loyalty.mint.amount_usd"
	MetricBurnDiscountAmount = "loyalty.burn.discount_amount"
)

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a loyalty plugin to track registry and ledger activity.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	BusinessRegistered  Counter
	BusinessUpdated     Counter
	BusinessDeactivated Counter
	BusinessActivated   Counter

	// Ledger metrics
	TokensMinted       Counter
	TokensMintedAmount Counter
	TokensBurned       Counter
	TokensBurnedAmount Counter
	Transactions       Counter
	MintAmountUSD      Histogram
	BurnDiscountAmount Histogram

	// Error metrics
	Rejected Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// In a Forge application wrap app.Metrics() with NewUtilsFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		BusinessRegistered:  factory.Counter(MetricBusinessRegistered),
		BusinessUpdated:     factory.Counter(MetricBusinessUpdated),
		BusinessDeactivated: factory.Counter(MetricBusinessDeactivated),
		BusinessActivated:   factory.Counter(MetricBusinessActivated),

		TokensMinted:       factory.Counter(MetricTokensMinted),
		TokensMintedAmount: factory.Counter(MetricTokensMintedAmount),
		TokensBurned:       factory.Counter(MetricTokensBurned),
		TokensBurnedAmount: factory.Counter(MetricTokensBurnedAmount),
		Transactions:       factory.Counter(MetricTransactions),
		MintAmountUSD:      factory.Histogram(MetricMintAmountUSD),
		BurnDiscountAmount: factory.Histogram(MetricBurnDiscountAmount),

		Rejected: factory.Counter(MetricRejected),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnBusinessRegistered implements plugin.OnBusinessRegistered.
func (m *MetricsExtension) OnBusinessRegistered(_ context.Context, _ *business.Business) error {
	m.BusinessRegistered.Inc()
	return nil
}

// OnBusinessUpdated implements plugin.OnBusinessUpdated.
func (m *MetricsExtension) OnBusinessUpdated(_ context.Context, _, _ *business.Business) error {
	m.BusinessUpdated.Inc()
	return nil
}

// OnBusinessStatusChanged implements plugin.OnBusinessStatusChanged.
func (m *MetricsExtension) OnBusinessStatusChanged(_ context.Context, b *business.Business) error {
	if b.IsActive {
		m.BusinessActivated.Inc()
	} else {
		m.BusinessDeactivated.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnTokensMinted implements plugin.OnTokensMinted.
func (m *MetricsExtension) OnTokensMinted(_ context.Context, rec *transaction.Record) error {
	m.TokensMinted.Inc()
	m.TokensMintedAmount.Add(float64(rec.TokensAmount))
	m.Transactions.Inc()
	m.MintAmountUSD.Observe(float64(rec.AmountUSD))
	return nil
}

// OnTokensBurned implements plugin.OnTokensBurned.
func (m *MetricsExtension) OnTokensBurned(_ context.Context, rec *transaction.Record, discount types.Money) error {
	m.TokensBurned.Inc()
	m.TokensBurnedAmount.Add(float64(rec.TokensAmount))
	m.Transactions.Inc()
	m.BurnDiscountAmount.Observe(float64(discount.Amount))
	return nil
}

// OnOperationRejected implements plugin.OnOperationRejected.
func (m *MetricsExtension) OnOperationRejected(_ context.Context, _ string, _ error) error {
	m.Rejected.Inc()
	return nil
}
