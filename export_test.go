package loyalty

import (
	"context"

	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/transaction"
)

// RecordEarn exposes the journal step with a custom seal for tests.
func (l *Loyalty) RecordEarn(ctx context.Context, prev *balance.Balance, next uint64, seal func(*transaction.Record) error) (*transaction.Record, error) {
	return l.record(ctx, prev, next, entry{
		typ:       transaction.TypeEarn,
		amountUSD: 100,
		tokens:    next - prev.Amount,
		seal:      seal,
	})
}
