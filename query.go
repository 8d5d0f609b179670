package loyalty

import (
	"context"
	"strings"

	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/transaction"
)

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetBusiness returns a business by ID.
func (l *Loyalty) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	return l.store.GetBusiness(ctx, businessID)
}

// GetBusinessByOwner returns the business an owner controls.
func (l *Loyalty) GetBusinessByOwner(ctx context.Context, owner string) (*business.Business, error) {
	return l.store.GetBusinessByOwner(ctx, strings.TrimSpace(owner))
}

// ListBusinesses lists businesses, oldest first.
func (l *Loyalty) ListBusinesses(ctx context.Context, opts business.ListOpts) ([]*business.Business, error) {
	return l.store.ListBusinesses(ctx, opts)
}

// GetBalance returns the customer's balance at a business. A key that was
// never minted into reads as a zero balance.
func (l *Loyalty) GetBalance(ctx context.Context, customer string, businessID id.BusinessID) (*balance.Balance, error) {
	return l.currentBalance(ctx, balance.Key{
		Customer:   strings.TrimSpace(customer),
		BusinessID: businessID,
	})
}

// ListBalances lists every balance a customer holds.
func (l *Loyalty) ListBalances(ctx context.Context, customer string, opts balance.ListOpts) ([]*balance.Balance, error) {
	return l.store.ListBalances(ctx, strings.TrimSpace(customer), opts)
}

// GetTransaction returns one transaction record.
func (l *Loyalty) GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Record, error) {
	return l.store.GetTransaction(ctx, txID)
}

// ListTransactions lists records ordered by timestamp, then sequence.
func (l *Loyalty) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Record, error) {
	return l.store.ListTransactions(ctx, opts)
}

// BusinessStats summarizes a business's transaction history.
func (l *Loyalty) BusinessStats(ctx context.Context, businessID id.BusinessID) (*transaction.Summary, error) {
	if _, err := l.store.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return l.store.SummarizeBusiness(ctx, businessID)
}
