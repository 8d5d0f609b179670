package business

import (
	"context"

	"github.com/xraph/loyalty/id"
)

type Store interface {
	Create(ctx context.Context, b *Business) error
	Get(ctx context.Context, businessID id.BusinessID) (*Business, error)
	GetByOwner(ctx context.Context, owner string) (*Business, error)
	Update(ctx context.Context, b *Business) error
	List(ctx context.Context, opts ListOpts) ([]*Business, error)
}

type ListOpts struct {
	Category   Category
	ActiveOnly bool
	Limit      int
	Offset     int
}
