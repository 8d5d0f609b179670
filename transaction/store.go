package transaction

import (
	"context"

	"github.com/xraph/loyalty/id"
)

// Store reads the log. Records are written only together with their
// balance change, through the composite store's ApplyMutation.
type Store interface {
	Get(ctx context.Context, txID id.TransactionID) (*Record, error)
	GetBySignature(ctx context.Context, signature string) (*Record, error)
	List(ctx context.Context, opts ListOpts) ([]*Record, error)
	Summarize(ctx context.Context, businessID id.BusinessID) (*Summary, error)
}

// ListOpts filters the log. Results are ordered by timestamp, then
// sequence, oldest first.
type ListOpts struct {
	Customer   string
	BusinessID id.BusinessID
	Type       Type
	Limit      int
	Offset     int
}
