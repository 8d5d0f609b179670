package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// Amounts are bounded by types.MaxAmount, so they fit BIGINT columns.

// ==================== Business models ====================

type businessModel struct {
	grove.BaseModel `grove:"table:loyalty_businesses"`

	ID              string    `grove:"id,pk"`
	Owner           string    `grove:"owner"`
	Name            string    `grove:"name"`
	Category        string    `grove:"category"`
	TokensPerDollar int64     `grove:"tokens_per_dollar"`
	MaxDiscount     int16     `grove:"max_discount"`
	IsActive        bool      `grove:"is_active"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toBusinessModel(b *business.Business) *businessModel {
	return &businessModel{
		ID:              b.ID.String(),
		Owner:           b.Owner,
		Name:            b.Name,
		Category:        string(b.Category),
		TokensPerDollar: int64(b.TokensPerDollar), //nolint:gosec // bounded by types.MaxAmount
		MaxDiscount:     int16(b.MaxDiscount),
		IsActive:        b.IsActive,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func fromBusinessModel(m *businessModel) (*business.Business, error) {
	bizID, err := id.ParseBusinessID(m.ID)
	if err != nil {
		return nil, err
	}

	return &business.Business{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              bizID,
		Owner:           m.Owner,
		Name:            m.Name,
		Category:        business.Category(m.Category),
		TokensPerDollar: uint64(m.TokensPerDollar), //nolint:gosec // stored non-negative
		MaxDiscount:     uint8(m.MaxDiscount),      //nolint:gosec // stored 0..100
		IsActive:        m.IsActive,
	}, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:loyalty_balances"`

	Customer   string    `grove:"customer,pk"`
	BusinessID string    `grove:"business_id,pk"`
	Amount     int64     `grove:"amount"`
	Version    int64     `grove:"version"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toBalanceModel(b *balance.Balance) *balanceModel {
	return &balanceModel{
		Customer:   b.Customer,
		BusinessID: b.BusinessID.String(),
		Amount:     int64(b.Amount), //nolint:gosec // bounded by types.MaxAmount
		Version:    b.Version,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func fromBalanceModel(m *balanceModel) (*balance.Balance, error) {
	bizID, err := id.ParseBusinessID(m.BusinessID)
	if err != nil {
		return nil, err
	}

	return &balance.Balance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Customer:   m.Customer,
		BusinessID: bizID,
		Amount:     uint64(m.Amount), //nolint:gosec // CHECK (amount >= 0)
		Version:    m.Version,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:loyalty_transactions"`

	ID                 string    `grove:"id,pk"`
	Customer           string    `grove:"customer"`
	BusinessID         string    `grove:"business_id"`
	Type               string    `grove:"transaction_type"`
	AmountUSD          int64     `grove:"amount_usd"`
	TokensAmount       int64     `grove:"tokens_amount"`
	DiscountPercentage int16     `grove:"discount_percentage"`
	BalanceAfter       int64     `grove:"balance_after"`
	Sequence           int64     `grove:"sequence"`
	Timestamp          time.Time `grove:"timestamp"`
	Signature          string    `grove:"signature"`
}

func toTransactionModel(r *transaction.Record) *transactionModel {
	return &transactionModel{
		ID:                 r.ID.String(),
		Customer:           r.Customer,
		BusinessID:         r.BusinessID.String(),
		Type:               string(r.Type),
		AmountUSD:          int64(r.AmountUSD),    //nolint:gosec // bounded by types.MaxAmount
		TokensAmount:       int64(r.TokensAmount), //nolint:gosec // bounded by types.MaxAmount
		DiscountPercentage: int16(r.DiscountPercentage),
		BalanceAfter:       int64(r.BalanceAfter), //nolint:gosec // bounded by types.MaxAmount
		Sequence:           r.Sequence,
		Timestamp:          r.Timestamp,
		Signature:          r.Signature,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Record, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	bizID, err := id.ParseBusinessID(m.BusinessID)
	if err != nil {
		return nil, err
	}

	return &transaction.Record{
		ID:                 txID,
		Customer:           m.Customer,
		BusinessID:         bizID,
		Type:               transaction.Type(m.Type),
		AmountUSD:          uint64(m.AmountUSD),    //nolint:gosec // stored non-negative
		TokensAmount:       uint64(m.TokensAmount), //nolint:gosec // stored non-negative
		DiscountPercentage: uint8(m.DiscountPercentage), //nolint:gosec // stored 0..100
		BalanceAfter:       uint64(m.BalanceAfter), //nolint:gosec // stored non-negative
		Sequence:           m.Sequence,
		Timestamp:          m.Timestamp,
		Signature:          m.Signature,
	}, nil
}
