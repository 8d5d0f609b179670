package balance

import "context"

type Store interface {
	// Get returns the stored balance or the ledger's not-found error.
	Get(ctx context.Context, k Key) (*Balance, error)
	List(ctx context.Context, customer string, opts ListOpts) ([]*Balance, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
