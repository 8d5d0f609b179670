// Package business defines registered loyalty businesses and their
// owner-controlled reward parameters.
package business

import (
	"slices"
	"strings"

	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/types"
)

// MaxDiscountLimit is the largest redeemable discount percentage.
const MaxDiscountLimit = 100

type Category string

const (
	CategoryCafe       Category = "cafe"
	CategoryBarbershop Category = "barbershop"
	CategoryFitness    Category = "fitness"
	CategoryRestaurant Category = "restaurant"
	CategoryOther      Category = "other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryCafe,
	CategoryBarbershop,
	CategoryFitness,
	CategoryRestaurant,
	CategoryOther,
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCafe, CategoryBarbershop, CategoryFitness, CategoryRestaurant, CategoryOther:
		return true
	}
	return false
}

// ParseCategory maps a case-insensitive name onto a Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

type Business struct {
	types.Entity
	ID              id.BusinessID `json:"id"`
	Owner           string        `json:"owner"`
	Name            string        `json:"name"`
	Category        Category      `json:"category"`
	TokensPerDollar uint64        `json:"tokens_per_dollar"`
	MaxDiscount     uint8         `json:"max_discount"`
	IsActive        bool          `json:"is_active"`
}

// IsOwnedBy reports whether caller controls the business.
func (b *Business) IsOwnedBy(caller string) bool {
	return caller != "" && b.Owner == caller
}

// Clone returns a copy safe to mutate independently of b.
func (b *Business) Clone() *Business {
	c := *b
	return &c
}

// Registration carries the parameters of a new business.
// TokensPerDollar is capped at types.MaxAmount so every backend can store it.
type Registration struct {
	Owner           string   `json:"owner" validate:"required,max=256"`
	Name            string   `json:"name" validate:"required,max=256"`
	Category        Category `json:"category" validate:"required,business_category"`
	TokensPerDollar uint64   `json:"tokens_per_dollar" validate:"gt=0,lte=9223372036854775807"`
}

// Normalize trims surrounding whitespace from the free-text fields.
func (r *Registration) Normalize() {
	r.Owner = strings.TrimSpace(r.Owner)
	r.Name = strings.TrimSpace(r.Name)
	r.Category = Category(strings.ToLower(strings.TrimSpace(string(r.Category))))
}

// Settings is a partial update of owner-controlled parameters.
// Nil fields are left unchanged.
type Settings struct {
	TokensPerDollar *uint64 `json:"tokens_per_dollar,omitempty"`
	MaxDiscount     *uint8  `json:"max_discount,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (s Settings) IsEmpty() bool {
	return s.TokensPerDollar == nil && s.MaxDiscount == nil
}

// Apply copies the supplied fields onto b.
func (s Settings) Apply(b *Business) {
	if s.TokensPerDollar != nil {
		b.TokensPerDollar = *s.TokensPerDollar
	}
	if s.MaxDiscount != nil {
		b.MaxDiscount = *s.MaxDiscount
	}
}

// Sort orders businesses by creation time, then ID.
func Sort(bs []*Business) {
	slices.SortFunc(bs, func(a, b *Business) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// Matches reports whether b passes the filters in opts.
func (opts ListOpts) Matches(b *Business) bool {
	if opts.Category != "" && b.Category != opts.Category {
		return false
	}
	if opts.ActiveOnly && !b.IsActive {
		return false
	}
	return true
}
