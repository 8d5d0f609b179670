package store

import (
	"context"

	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/transaction"
)

// Store is the unified storage interface for all loyalty entities.
// Methods are declared explicitly rather than by embedding the entity
// interfaces, whose method names overlap.
type Store interface {
	// Business methods
	CreateBusiness(ctx context.Context, b *business.Business) error
	GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error)
	GetBusinessByOwner(ctx context.Context, owner string) (*business.Business, error)
	UpdateBusiness(ctx context.Context, b *business.Business) error
	ListBusinesses(ctx context.Context, opts business.ListOpts) ([]*business.Business, error)

	// Balance methods
	GetBalance(ctx context.Context, k balance.Key) (*balance.Balance, error)
	ListBalances(ctx context.Context, customer string, opts balance.ListOpts) ([]*balance.Balance, error)

	// Transaction log methods
	GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Record, error)
	GetTransactionBySignature(ctx context.Context, signature string) (*transaction.Record, error)
	ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Record, error)
	SummarizeBusiness(ctx context.Context, businessID id.BusinessID) (*transaction.Summary, error)

	// ApplyMutation writes a balance change and its transaction record as
	// one atomic unit.
	ApplyMutation(ctx context.Context, m *Mutation) error

	// Lifecycle methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Mutation is one ledger state transition: the new balance for a key and
// the record that documents it.
//
// Implementations must commit both or neither. PrevVersion is the
// balance version the change was computed from (0 when the key was never
// written); if the stored version differs the store returns the ledger's
// concurrent-modification error. A record whose signature is already
// present fails with the duplicate-signature error.
type Mutation struct {
	Balance     *balance.Balance
	PrevVersion int64
	Record      *transaction.Record
}

// Page applies limit/offset pagination to an in-memory result. A zero
// limit returns everything after offset.
func Page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
