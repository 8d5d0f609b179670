package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
	"github.com/xraph/loyalty/voucher"
)

// MintRequest credits tokens for a purchase.
type MintRequest struct {
	Customer   string        `json:"customer" validate:"required,max=256"`
	BusinessID id.BusinessID `json:"business_id"`
	// AmountUSD is the purchase amount in whole dollars. The earn record
	// stores it in minor units of the engine currency.
	AmountUSD uint64 `json:"amount_usd" validate:"gt=0"`
	// Signature is the caller's authorization reference. One is generated
	// when empty.
	Signature string `json:"signature,omitempty" validate:"max=256"`
}

// MintResult is the outcome of a successful mint.
type MintResult struct {
	Record       *transaction.Record `json:"record"`
	TokensMinted uint64              `json:"tokens_minted"`
	Balance      uint64              `json:"balance"`
}

// BurnRequest redeems tokens for a discount.
type BurnRequest struct {
	Customer           string        `json:"customer" validate:"required,max=256"`
	BusinessID         id.BusinessID `json:"business_id"`
	TokensToBurn       uint64        `json:"tokens_to_burn" validate:"gt=0"`
	DiscountPercentage uint8         `json:"discount_percentage" validate:"gt=0,lte=100"`
	Signature          string        `json:"signature,omitempty" validate:"max=256"`
}

// Redemption is the outcome of a successful burn.
type Redemption struct {
	Record           *transaction.Record `json:"record"`
	DiscountAmount   types.Money         `json:"discount_amount"`
	RemainingBalance uint64              `json:"remaining_balance"`
	// Voucher is the encoded voucher.Payload for the discount. It is
	// always set: a voucher that cannot be encoded fails the burn.
	Voucher string `json:"voucher"`
}

// ──────────────────────────────────────────────────
// Mint
// ──────────────────────────────────────────────────

// MintLoyaltyTokens credits AmountUSD × tokens_per_dollar tokens to the
// customer's balance at an active business and appends one earn record.
func (l *Loyalty) MintLoyaltyTokens(ctx context.Context, req MintRequest) (*MintResult, error) {
	res, err := l.mint(ctx, req)
	if err != nil {
		l.reject(ctx, "mint_loyalty_tokens", err)
		return nil, err
	}

	l.plugins.EmitTokensMinted(ctx, res.Record)
	l.logger.Debug("tokens minted",
		"customer", res.Record.Customer,
		"business_id", res.Record.BusinessID.String(),
		"amount_usd", req.AmountUSD,
		"tokens", res.TokensMinted,
		"balance", res.Balance,
	)

	return res, nil
}

func (l *Loyalty) mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	req.Customer = strings.TrimSpace(req.Customer)
	req.Signature = strings.TrimSpace(req.Signature)

	b, err := l.activeBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := l.validateStruct(req); err != nil {
		return nil, err
	}
	if req.AmountUSD > types.MaxAmount {
		return nil, invalid("amount_usd", "must be at most %d", types.MaxAmount)
	}

	tokens, ok := types.MulAmount(req.AmountUSD, b.TokensPerDollar)
	if !ok {
		return nil, fmt.Errorf("%w: %d usd at %d tokens per dollar", ErrArithmeticOverflow, req.AmountUSD, b.TokensPerDollar)
	}
	purchase, ok := types.MulAmount(req.AmountUSD, types.MinorPerMajor(l.currency))
	if !ok {
		return nil, fmt.Errorf("%w: %d usd in minor units", ErrArithmeticOverflow, req.AmountUSD)
	}

	key := balance.Key{Customer: req.Customer, BusinessID: b.ID}
	unlock, err := l.acquire(ctx, balanceLockKey(key))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := l.currentBalance(ctx, key)
	if err != nil {
		return nil, err
	}

	next, ok := types.AddAmount(cur.Amount, tokens)
	if !ok {
		return nil, fmt.Errorf("%w: balance %d + %d tokens", ErrArithmeticOverflow, cur.Amount, tokens)
	}

	rec, err := l.record(ctx, cur, next, entry{
		typ:       transaction.TypeEarn,
		amountUSD: purchase,
		tokens:    tokens,
		signature: req.Signature,
	})
	if err != nil {
		return nil, err
	}

	return &MintResult{
		Record:       rec,
		TokensMinted: tokens,
		Balance:      next,
	}, nil
}

// ──────────────────────────────────────────────────
// Burn
// ──────────────────────────────────────────────────

// BurnForDiscount debits TokensToBurn from the customer's balance in
// exchange for a discount and appends one redeem record. The requested
// percentage may not exceed the business's MaxDiscount.
func (l *Loyalty) BurnForDiscount(ctx context.Context, req BurnRequest) (*Redemption, error) {
	res, err := l.burn(ctx, req)
	if err != nil {
		l.reject(ctx, "burn_for_discount", err)
		return nil, err
	}

	l.plugins.EmitTokensBurned(ctx, res.Record, res.DiscountAmount)
	l.logger.Debug("tokens burned",
		"customer", res.Record.Customer,
		"business_id", res.Record.BusinessID.String(),
		"tokens", req.TokensToBurn,
		"discount", res.DiscountAmount.String(),
		"balance", res.RemainingBalance,
	)

	return res, nil
}

func (l *Loyalty) burn(ctx context.Context, req BurnRequest) (*Redemption, error) {
	req.Customer = strings.TrimSpace(req.Customer)
	req.Signature = strings.TrimSpace(req.Signature)

	b, err := l.activeBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := l.validateStruct(req); err != nil {
		return nil, err
	}
	if req.DiscountPercentage > b.MaxDiscount {
		return nil, invalid("discount_percentage", "%d%% exceeds the business maximum of %d%%", req.DiscountPercentage, b.MaxDiscount)
	}
	if req.TokensToBurn > types.MaxAmount {
		return nil, invalid("tokens_to_burn", "must be at most %d", types.MaxAmount)
	}

	discount, ok := types.MulAmount(req.TokensToBurn, l.tokenValue)
	if !ok {
		return nil, fmt.Errorf("%w: %d tokens at %d per token", ErrArithmeticOverflow, req.TokensToBurn, l.tokenValue)
	}

	key := balance.Key{Customer: req.Customer, BusinessID: b.ID}
	unlock, err := l.acquire(ctx, balanceLockKey(key))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := l.currentBalance(ctx, key)
	if err != nil {
		return nil, err
	}
	if cur.Amount < req.TokensToBurn {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, cur.Amount, req.TokensToBurn)
	}

	next, ok := types.SubAmount(cur.Amount, req.TokensToBurn)
	if !ok {
		return nil, fmt.Errorf("%w: balance %d - %d tokens", ErrArithmeticOverflow, cur.Amount, req.TokensToBurn)
	}

	money := types.FromMinor(discount, l.currency)
	var encoded string

	rec, err := l.record(ctx, cur, next, entry{
		typ:         transaction.TypeRedeem,
		amountUSD:   discount,
		tokens:      req.TokensToBurn,
		discountPct: req.DiscountPercentage,
		signature:   req.Signature,
		seal: func(rec *transaction.Record) error {
			var err error
			encoded, err = voucher.New(rec, money).Encode()
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	return &Redemption{
		Record:           rec,
		DiscountAmount:   money,
		RemainingBalance: next,
		Voucher:          encoded,
	}, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func balanceLockKey(k balance.Key) string {
	return "balance/" + k.String()
}

// currentBalance reads the stored balance, treating a missing key as zero.
func (l *Loyalty) currentBalance(ctx context.Context, k balance.Key) (*balance.Balance, error) {
	b, err := l.store.GetBalance(ctx, k)
	if errors.Is(err, ErrBalanceNotFound) {
		return balance.Empty(k), nil
	}
	return b, err
}
