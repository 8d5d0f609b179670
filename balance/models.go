// Package balance defines the per-customer, per-business token holdings.
package balance

import (
	"slices"
	"strings"

	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/types"
)

// Balance is the token count a customer holds at one business. A key
// that was never minted into has no stored Balance and reads as zero.
type Balance struct {
	types.Entity
	Customer   string        `json:"customer"`
	BusinessID id.BusinessID `json:"business_id"`
	Amount     uint64        `json:"amount"`
	// Version counts the successful mutations applied to this key.
	Version int64 `json:"version"`
}

// Key identifies a balance.
type Key struct {
	Customer   string
	BusinessID id.BusinessID
}

// Key returns the balance key.
func (b *Balance) Key() Key {
	return Key{Customer: b.Customer, BusinessID: b.BusinessID}
}

// String renders the key as "customer/business", the form used for lock
// names and KV store keys.
func (k Key) String() string {
	return k.Customer + "/" + k.BusinessID.String()
}

// Empty returns the zero balance for k.
func Empty(k Key) *Balance {
	return &Balance{Customer: k.Customer, BusinessID: k.BusinessID}
}

// Sort orders balances by business ID.
func Sort(bs []*Balance) {
	slices.SortFunc(bs, func(a, b *Balance) int {
		return strings.Compare(a.BusinessID.String(), b.BusinessID.String())
	})
}
