// Package storetest is a conformance suite every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// Factory returns a fresh, migrated and empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// Run exercises every store.Store method against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Businesses", func(t *testing.T) { testBusinesses(t, newStore(t)) })
	t.Run("ListBusinesses", func(t *testing.T) { testListBusinesses(t, newStore(t)) })
	t.Run("ApplyMutation", func(t *testing.T) { testApplyMutation(t, newStore(t)) })
	t.Run("ConcurrentModification", func(t *testing.T) { testConcurrentModification(t, newStore(t)) })
	t.Run("DuplicateSignature", func(t *testing.T) { testDuplicateSignature(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("Balances", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

// NewBusiness returns an active business created at base+offset.
func NewBusiness(owner string, category business.Category, offset time.Duration) *business.Business {
	return &business.Business{
		Entity:          types.NewEntityAt(base.Add(offset)),
		ID:              id.NewBusinessID(),
		Owner:           owner,
		Name:            "Business of " + owner,
		Category:        category,
		TokensPerDollar: 10,
		IsActive:        true,
	}
}

// NewMutation moves prev to amount and documents it with one record.
func NewMutation(prev *balance.Balance, amount uint64, typ transaction.Type, at time.Time) *store.Mutation {
	bal := *prev
	bal.Amount = amount
	bal.Version = prev.Version + 1
	if prev.Version == 0 {
		bal.Entity = types.NewEntityAt(at)
	} else {
		bal.Touch(at)
	}

	var delta uint64
	if amount > prev.Amount {
		delta = amount - prev.Amount
	} else {
		delta = prev.Amount - amount
	}

	return &store.Mutation{
		Balance:     &bal,
		PrevVersion: prev.Version,
		Record: &transaction.Record{
			ID:           id.NewTransactionID(),
			Customer:     prev.Customer,
			BusinessID:   prev.BusinessID,
			Type:         typ,
			AmountUSD:    delta,
			TokensAmount: delta,
			BalanceAfter: amount,
			Sequence:     bal.Version,
			Timestamp:    at,
			Signature:    id.NewSignatureID().String(),
		},
	}
}

func testBusinesses(t *testing.T, s store.Store) {
	ctx := context.Background()

	b := NewBusiness("owner-1", business.CategoryCafe, 0)
	require.NoError(t, s.CreateBusiness(ctx, b))

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID.String(), got.ID.String())
	assert.Equal(t, "owner-1", got.Owner)
	assert.Equal(t, business.CategoryCafe, got.Category)
	assert.Equal(t, uint64(10), got.TokensPerDollar)
	assert.Equal(t, uint8(0), got.MaxDiscount)
	assert.True(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(b.CreatedAt), "created_at %s != %s", got.CreatedAt, b.CreatedAt)

	byOwner, err := s.GetBusinessByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID.String(), byOwner.ID.String())

	err = s.CreateBusiness(ctx, NewBusiness("owner-1", business.CategoryOther, time.Second))
	require.ErrorIs(t, err, loyalty.ErrAlreadyRegistered)

	_, err = s.GetBusiness(ctx, id.NewBusinessID())
	require.ErrorIs(t, err, loyalty.ErrBusinessNotFound)
	_, err = s.GetBusinessByOwner(ctx, "nobody")
	require.ErrorIs(t, err, loyalty.ErrBusinessNotFound)

	got.MaxDiscount = 20
	got.TokensPerDollar = 12
	got.IsActive = false
	got.Touch(base.Add(time.Minute))
	require.NoError(t, s.UpdateBusiness(ctx, got))

	updated, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint8(20), updated.MaxDiscount)
	assert.Equal(t, uint64(12), updated.TokensPerDollar)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.UpdatedAt.Equal(base.Add(time.Minute)))
	assert.True(t, updated.CreatedAt.Equal(b.CreatedAt))

	missing := NewBusiness("owner-2", business.CategoryCafe, 0)
	require.ErrorIs(t, s.UpdateBusiness(ctx, missing), loyalty.ErrBusinessNotFound)
}

func testListBusinesses(t *testing.T, s store.Store) {
	ctx := context.Background()

	cafe1 := NewBusiness("owner-1", business.CategoryCafe, 0)
	gym := NewBusiness("owner-2", business.CategoryFitness, time.Second)
	cafe2 := NewBusiness("owner-3", business.CategoryCafe, 2*time.Second)
	cafe2.IsActive = false
	for _, b := range []*business.Business{cafe2, gym, cafe1} {
		require.NoError(t, s.CreateBusiness(ctx, b))
	}

	all, err := s.ListBusinesses(ctx, business.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{cafe1.ID.String(), gym.ID.String(), cafe2.ID.String()}, businessIDs(all))

	cafes, err := s.ListBusinesses(ctx, business.ListOpts{Category: business.CategoryCafe})
	require.NoError(t, err)
	assert.Equal(t, []string{cafe1.ID.String(), cafe2.ID.String()}, businessIDs(cafes))

	active, err := s.ListBusinesses(ctx, business.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{cafe1.ID.String(), gym.ID.String()}, businessIDs(active))

	page, err := s.ListBusinesses(ctx, business.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{gym.ID.String()}, businessIDs(page))
}

func testApplyMutation(t *testing.T, s store.Store) {
	ctx := context.Background()

	key := balance.Key{Customer: "cust-1", BusinessID: id.NewBusinessID()}
	_, err := s.GetBalance(ctx, key)
	require.ErrorIs(t, err, loyalty.ErrBalanceNotFound)

	m1 := NewMutation(balance.Empty(key), 50, transaction.TypeEarn, base)
	require.NoError(t, s.ApplyMutation(ctx, m1))

	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), got.Amount)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CreatedAt.Equal(base))

	m2 := NewMutation(got, 20, transaction.TypeRedeem, base.Add(time.Second))
	require.NoError(t, s.ApplyMutation(ctx, m2))

	got, err = s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.Amount)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Second)))

	rec, err := s.GetTransaction(ctx, m2.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.TypeRedeem, rec.Type)
	assert.Equal(t, uint64(30), rec.TokensAmount)
	assert.Equal(t, uint64(20), rec.BalanceAfter)
	assert.Equal(t, int64(2), rec.Sequence)
	assert.Equal(t, key.Customer, rec.Customer)
	assert.Equal(t, key.BusinessID.String(), rec.BusinessID.String())
	assert.True(t, rec.Timestamp.Equal(base.Add(time.Second)))

	bySig, err := s.GetTransactionBySignature(ctx, m1.Record.Signature)
	require.NoError(t, err)
	assert.Equal(t, m1.Record.ID.String(), bySig.ID.String())

	_, err = s.GetTransaction(ctx, id.NewTransactionID())
	require.ErrorIs(t, err, loyalty.ErrTransactionNotFound)
	_, err = s.GetTransactionBySignature(ctx, "unknown")
	require.ErrorIs(t, err, loyalty.ErrTransactionNotFound)
}

func testConcurrentModification(t *testing.T, s store.Store) {
	ctx := context.Background()

	key := balance.Key{Customer: "cust-1", BusinessID: id.NewBusinessID()}
	empty := balance.Empty(key)
	require.NoError(t, s.ApplyMutation(ctx, NewMutation(empty, 10, transaction.TypeEarn, base)))

	// A second writer computed its change from the same empty balance.
	stale := NewMutation(empty, 5, transaction.TypeEarn, base.Add(time.Second))
	err := s.ApplyMutation(ctx, stale)
	require.ErrorIs(t, err, loyalty.ErrConcurrentModification)

	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Amount)
	assert.Equal(t, int64(1), got.Version)

	_, err = s.GetTransaction(ctx, stale.Record.ID)
	require.ErrorIs(t, err, loyalty.ErrTransactionNotFound, "record of a rejected mutation must not be stored")
}

func testDuplicateSignature(t *testing.T, s store.Store) {
	ctx := context.Background()

	key := balance.Key{Customer: "cust-1", BusinessID: id.NewBusinessID()}
	first := NewMutation(balance.Empty(key), 10, transaction.TypeEarn, base)
	require.NoError(t, s.ApplyMutation(ctx, first))

	cur, err := s.GetBalance(ctx, key)
	require.NoError(t, err)

	second := NewMutation(cur, 30, transaction.TypeEarn, base.Add(time.Second))
	second.Record.Signature = first.Record.Signature
	err = s.ApplyMutation(ctx, second)
	require.ErrorIs(t, err, loyalty.ErrDuplicateSignature)

	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Amount, "balance must not change when the record is rejected")
	assert.Equal(t, int64(1), got.Version)

	recs, err := s.ListTransactions(ctx, transaction.ListOpts{Customer: "cust-1"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()

	bizA := id.NewBusinessID()
	bizB := id.NewBusinessID()

	apply := func(customer string, biz id.BusinessID, amounts ...uint64) {
		t.Helper()
		key := balance.Key{Customer: customer, BusinessID: biz}
		cur := balance.Empty(key)
		for i, amount := range amounts {
			typ := transaction.TypeEarn
			if amount < cur.Amount {
				typ = transaction.TypeRedeem
			}
			at := base.Add(time.Duration(len(customer)+i) * time.Second)
			m := NewMutation(cur, amount, typ, at)
			require.NoError(t, s.ApplyMutation(ctx, m), fmt.Sprintf("%s step %d", customer, i))
			cur = m.Balance
		}
	}

	apply("alice", bizA, 50, 20, 70)
	apply("bob", bizA, 5)
	apply("carol", bizB, 9)

	alice, err := s.ListTransactions(ctx, transaction.ListOpts{Customer: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 3)
	for i, r := range alice {
		assert.Equal(t, int64(i+1), r.Sequence)
	}
	assert.Equal(t, []uint64{50, 20, 70}, []uint64{alice[0].BalanceAfter, alice[1].BalanceAfter, alice[2].BalanceAfter})

	redeems, err := s.ListTransactions(ctx, transaction.ListOpts{BusinessID: bizA, Type: transaction.TypeRedeem})
	require.NoError(t, err)
	require.Len(t, redeems, 1)
	assert.Equal(t, uint64(30), redeems[0].TokensAmount)

	page, err := s.ListTransactions(ctx, transaction.ListOpts{Customer: "alice", Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(3), page[0].Sequence)

	sum, err := s.SummarizeBusiness(ctx, bizA)
	require.NoError(t, err)
	assert.Equal(t, bizA.String(), sum.BusinessID.String())
	assert.Equal(t, uint64(50+50+5), sum.TokensIssued)
	assert.Equal(t, uint64(30), sum.TokensRedeemed)
	assert.Equal(t, int64(3), sum.EarnCount)
	assert.Equal(t, int64(1), sum.RedeemCount)
	assert.Equal(t, int64(4), sum.TotalTransactions)
	assert.Equal(t, int64(2), sum.ActiveCustomers)

	empty, err := s.SummarizeBusiness(ctx, id.NewBusinessID())
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalTransactions)
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()

	bizA := id.NewBusinessID()
	bizB := id.NewBusinessID()
	for _, k := range []balance.Key{
		{Customer: "alice", BusinessID: bizA},
		{Customer: "alice", BusinessID: bizB},
		{Customer: "bob", BusinessID: bizA},
	} {
		require.NoError(t, s.ApplyMutation(ctx, NewMutation(balance.Empty(k), 10, transaction.TypeEarn, base)))
	}

	alice, err := s.ListBalances(ctx, "alice", balance.ListOpts{})
	require.NoError(t, err)
	require.Len(t, alice, 2)
	for _, b := range alice {
		assert.Equal(t, "alice", b.Customer)
		assert.Equal(t, uint64(10), b.Amount)
	}

	none, err := s.ListBalances(ctx, "nobody", balance.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func businessIDs(bs []*business.Business) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID.String()
	}
	return out
}
