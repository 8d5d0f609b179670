package loyalty

import (
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Category is re-exported from business package.
type Category = business.Category

// Re-export Money constructors
var (
	USD       = types.USD
	Zero      = types.Zero
	FromMinor = types.FromMinor
)

// Re-export business categories
const (
	CategoryCafe       = business.CategoryCafe
	CategoryBarbershop = business.CategoryBarbershop
	CategoryFitness    = business.CategoryFitness
	CategoryRestaurant = business.CategoryRestaurant
	CategoryOther      = business.CategoryOther
)
