// Package transaction defines the append-only records produced by every
// successful mint and burn.
package transaction

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/xraph/loyalty/id"
)

type Type string

const (
	TypeEarn   Type = "earn"
	TypeRedeem Type = "redeem"
)

// Valid reports whether t is a declared transaction type.
func (t Type) Valid() bool {
	return t == TypeEarn || t == TypeRedeem
}

// Record is immutable once stored.
type Record struct {
	ID         id.TransactionID `json:"id"`
	Customer   string           `json:"customer"`
	BusinessID id.BusinessID    `json:"business_id"`
	Type       Type             `json:"transaction_type"`
	// AmountUSD is the purchase amount for earn records and the granted
	// discount for redeem records. Both are in minor currency units.
	AmountUSD          uint64    `json:"amount_usd"`
	TokensAmount       uint64    `json:"tokens_amount"`
	DiscountPercentage uint8     `json:"discount_percentage,omitempty"`
	BalanceAfter       uint64    `json:"balance_after"`
	Sequence           int64     `json:"sequence"`
	Timestamp          time.Time `json:"timestamp"`
	Signature          string    `json:"signature"`
}

// Summary aggregates one business's transaction history.
type Summary struct {
	BusinessID        id.BusinessID `json:"business_id"`
	TokensIssued      uint64        `json:"tokens_issued"`
	TokensRedeemed    uint64        `json:"tokens_redeemed"`
	EarnCount         int64         `json:"earn_count"`
	RedeemCount       int64         `json:"redeem_count"`
	TotalTransactions int64         `json:"total_transactions"`
	ActiveCustomers   int64         `json:"active_customers"`
}

// Add folds r into s.
func (s *Summary) Add(r *Record) {
	switch r.Type {
	case TypeEarn:
		s.TokensIssued += r.TokensAmount
		s.EarnCount++
	case TypeRedeem:
		s.TokensRedeemed += r.TokensAmount
		s.RedeemCount++
	}
	s.TotalTransactions++
}

// Sort orders records by timestamp, then sequence, then ID.
func Sort(recs []*Record) {
	slices.SortFunc(recs, func(a, b *Record) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// Matches reports whether r passes the filters in opts.
func (opts ListOpts) Matches(r *Record) bool {
	if opts.Customer != "" && r.Customer != opts.Customer {
		return false
	}
	if !opts.BusinessID.IsNil() && r.BusinessID.String() != opts.BusinessID.String() {
		return false
	}
	if opts.Type != "" && r.Type != opts.Type {
		return false
	}
	return true
}
