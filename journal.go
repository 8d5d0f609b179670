package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// entry describes the transaction a balance change produces.
type entry struct {
	typ         transaction.Type
	amountUSD   uint64
	tokens      uint64
	discountPct uint8
	signature   string
	// seal runs on the finished record before it is committed. An error
	// aborts the mutation.
	seal func(rec *transaction.Record) error
}

// record appends the transaction for moving prev to next and commits it
// together with the new balance. It is the terminal step of every mint
// and burn; nothing else writes to the log.
//
// The record timestamp never precedes the previous mutation of the same
// balance, and its sequence is the balance version it produced.
func (l *Loyalty) record(ctx context.Context, prev *balance.Balance, next uint64, e entry) (*transaction.Record, error) {
	sig, err := l.resolveSignature(ctx, e.signature)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	if now.Before(prev.UpdatedAt) {
		now = prev.UpdatedAt
	}

	bal := &balance.Balance{
		Entity:     prev.Entity,
		Customer:   prev.Customer,
		BusinessID: prev.BusinessID,
		Amount:     next,
		Version:    prev.Version + 1,
	}
	if prev.Version == 0 {
		bal.Entity = types.NewEntityAt(now)
	} else {
		bal.Touch(now)
	}

	rec := &transaction.Record{
		ID:                 id.NewTransactionID(),
		Customer:           prev.Customer,
		BusinessID:         prev.BusinessID,
		Type:               e.typ,
		AmountUSD:          e.amountUSD,
		TokensAmount:       e.tokens,
		DiscountPercentage: e.discountPct,
		BalanceAfter:       next,
		Sequence:           bal.Version,
		Timestamp:          now,
		Signature:          sig,
	}

	if e.seal != nil {
		if err := e.seal(rec); err != nil {
			return nil, err
		}
	}

	err = l.store.ApplyMutation(ctx, &store.Mutation{
		Balance:     bal,
		PrevVersion: prev.Version,
		Record:      rec,
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// resolveSignature returns the caller's signature after checking it was
// never used, or a generated one.
func (l *Loyalty) resolveSignature(ctx context.Context, sig string) (string, error) {
	if sig == "" {
		return id.NewSignatureID().String(), nil
	}

	_, err := l.store.GetTransactionBySignature(ctx, sig)
	switch {
	case err == nil:
		return "", fmt.Errorf("%w: %s", ErrDuplicateSignature, sig)
	case errors.Is(err, ErrTransactionNotFound):
		return sig, nil
	default:
		return "", err
	}
}
