package loyalty_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/lock"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/store/memory"
	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
	"github.com/xraph/loyalty/voucher"
)

type fixture struct {
	l     *loyalty.Loyalty
	store *memory.Store
	biz   *business.Business
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// steppingClock advances one second per reading.
func steppingClock() loyalty.Clock {
	var mu sync.Mutex
	now := epoch
	return loyalty.ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	})
}

func newEngine(t *testing.T, opts ...loyalty.Option) (*loyalty.Loyalty, *memory.Store) {
	t.Helper()

	s := memory.New()
	opts = append([]loyalty.Option{
		loyalty.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		loyalty.WithClock(steppingClock()),
	}, opts...)
	l := loyalty.New(s, opts...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l, s
}

// newFixture registers a cafe earning 10 tokens per dollar with a 20%
// discount cap.
func newFixture(t *testing.T, opts ...loyalty.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	l, s := newEngine(t, opts...)
	biz, err := l.RegisterBusiness(ctx, business.Registration{
		Owner:           "owner-1",
		Name:            "Corner Cafe",
		Category:        business.CategoryCafe,
		TokensPerDollar: 10,
	})
	require.NoError(t, err)

	maxDiscount := uint8(20)
	biz, err = l.UpdateBusinessSettings(ctx, biz.ID, "owner-1", business.Settings{MaxDiscount: &maxDiscount})
	require.NoError(t, err)

	return &fixture{l: l, store: s, biz: biz}
}

func (f *fixture) mint(t *testing.T, customer string, usd uint64) *loyalty.MintResult {
	t.Helper()
	res, err := f.l.MintLoyaltyTokens(context.Background(), loyalty.MintRequest{
		Customer: customer, BusinessID: f.biz.ID, AmountUSD: usd,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, customer string) uint64 {
	t.Helper()
	b, err := f.l.GetBalance(context.Background(), customer, f.biz.ID)
	require.NoError(t, err)
	return b.Amount
}

func (f *fixture) records(t *testing.T, customer string) []*transaction.Record {
	t.Helper()
	recs, err := f.l.ListTransactions(context.Background(), transaction.ListOpts{Customer: customer})
	require.NoError(t, err)
	return recs
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

func TestRegisterBusiness(t *testing.T) {
	ctx := context.Background()
	l, _ := newEngine(t)

	b, err := l.RegisterBusiness(ctx, business.Registration{
		Owner:           " owner-1 ",
		Name:            " Fade Masters ",
		Category:        "Barbershop",
		TokensPerDollar: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, id.PrefixBusiness, b.ID.Prefix())
	assert.Equal(t, "owner-1", b.Owner)
	assert.Equal(t, "Fade Masters", b.Name)
	assert.Equal(t, business.CategoryBarbershop, b.Category)
	assert.True(t, b.IsActive)
	assert.Equal(t, uint8(0), b.MaxDiscount)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := l.GetBusinessByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID.String(), got.ID.String())
}

func TestRegisterBusinessValidation(t *testing.T) {
	valid := business.Registration{Owner: "o", Name: "n", Category: business.CategoryCafe, TokensPerDollar: 1}

	tests := []struct {
		name  string
		mod   func(r *business.Registration)
		field string
	}{
		{"empty name", func(r *business.Registration) { r.Name = "   " }, "name"},
		{"empty owner", func(r *business.Registration) { r.Owner = "" }, "owner"},
		{"unknown category", func(r *business.Registration) { r.Category = "bakery" }, "category"},
		{"zero rate", func(r *business.Registration) { r.TokensPerDollar = 0 }, "tokens_per_dollar"},
		{"rate above max amount", func(r *business.Registration) { r.TokensPerDollar = types.MaxAmount + 1 }, "tokens_per_dollar"},
		{"rate with top bit set", func(r *business.Registration) { r.TokensPerDollar = 1 << 63 }, "tokens_per_dollar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, s := newEngine(t)
			reg := valid
			tt.mod(&reg)

			_, err := l.RegisterBusiness(context.Background(), reg)
			require.ErrorIs(t, err, loyalty.ErrInvalidParameter)
			assert.True(t, loyalty.IsInvalidParameter(err))

			var verr loyalty.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			all, err := s.ListBusinesses(context.Background(), business.ListOpts{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestReRegistrationIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.l.RegisterBusiness(ctx, business.Registration{
		Owner: "owner-1", Name: "Second Shop", Category: business.CategoryOther, TokensPerDollar: 1,
	})
	require.ErrorIs(t, err, loyalty.ErrAlreadyRegistered)

	got, err := f.l.GetBusinessByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, f.biz.ID.String(), got.ID.String())
	assert.Equal(t, "Corner Cafe", got.Name)

	all, err := f.l.ListBusinesses(ctx, business.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateBusinessSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rate := uint64(12)
	b, err := f.l.UpdateBusinessSettings(ctx, f.biz.ID, "owner-1", business.Settings{TokensPerDollar: &rate})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), b.TokensPerDollar)
	assert.Equal(t, uint8(20), b.MaxDiscount, "unspecified settings are kept")
	assert.True(t, b.UpdatedAt.After(b.CreatedAt))

	t.Run("not the owner", func(t *testing.T) {
		rate := uint64(99)
		_, err := f.l.UpdateBusinessSettings(ctx, f.biz.ID, "intruder", business.Settings{TokensPerDollar: &rate})
		require.ErrorIs(t, err, loyalty.ErrUnauthorized)
		assert.True(t, loyalty.IsUnauthorized(err))
	})

	t.Run("unauthorized before invalid", func(t *testing.T) {
		zero := uint64(0)
		_, err := f.l.UpdateBusinessSettings(ctx, f.biz.ID, "intruder", business.Settings{TokensPerDollar: &zero})
		require.ErrorIs(t, err, loyalty.ErrUnauthorized)
	})

	t.Run("zero rate", func(t *testing.T) {
		zero := uint64(0)
		_, err := f.l.UpdateBusinessSettings(ctx, f.biz.ID, "owner-1", business.Settings{TokensPerDollar: &zero})
		require.ErrorIs(t, err, loyalty.ErrInvalidParameter)
	})

	t.Run("rate above max amount", func(t *testing.T) {
		huge := types.MaxAmount + 1
		_, err := f.l.UpdateBusinessSettings(ctx, f.biz.ID, "owner-1", business.Settings{TokensPerDollar: &huge})
		require.ErrorIs(t, err, loyalty.ErrInvalidParameter)

		var verr loyalty.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "tokens_per_dollar", verr.Field)
	})

	t.Run("discount above 100", func(t *testing.T) {
		tooMuch := uint8(101)
		_, err := f.l.UpdateBusinessSettings(ctx, f.biz.ID, "owner-1", business.Settings{MaxDiscount: &tooMuch})
		require.ErrorIs(t, err, loyalty.ErrInvalidParameter)
	})

	t.Run("unknown business", func(t *testing.T) {
		_, err := f.l.UpdateBusinessSettings(ctx, id.NewBusinessID(), "owner-1", business.Settings{})
		require.ErrorIs(t, err, loyalty.ErrBusinessNotFound)
		assert.True(t, loyalty.IsNotFound(err))
	})

	got, err := f.l.GetBusiness(ctx, f.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.TokensPerDollar)
	assert.Equal(t, uint8(20), got.MaxDiscount)
}

func TestDeactivateBusiness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "cust-1", 5)

	_, err := f.l.DeactivateBusiness(ctx, f.biz.ID, "intruder")
	require.ErrorIs(t, err, loyalty.ErrUnauthorized)

	b, err := f.l.DeactivateBusiness(ctx, f.biz.ID, "owner-1")
	require.NoError(t, err)
	assert.False(t, b.IsActive)

	_, err = f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: f.biz.ID, AmountUSD: 1})
	require.ErrorIs(t, err, loyalty.ErrBusinessInactive)
	_, err = f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 1, DiscountPercentage: 5,
	})
	require.ErrorIs(t, err, loyalty.ErrBusinessInactive)
	assert.Equal(t, uint64(50), f.balance(t, "cust-1"), "balances survive deactivation")

	active, err := f.l.ListBusinesses(ctx, business.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.l.ActivateBusiness(ctx, f.biz.ID, "owner-1")
	require.NoError(t, err)
	f.mint(t, "cust-1", 1)
	assert.Equal(t, uint64(60), f.balance(t, "cust-1"))
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func TestMintBurnScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	minted := f.mint(t, "cust-1", 5)
	assert.Equal(t, uint64(50), minted.TokensMinted)
	assert.Equal(t, uint64(50), minted.Balance)
	assert.Equal(t, transaction.TypeEarn, minted.Record.Type)
	assert.Equal(t, uint64(500), minted.Record.AmountUSD)

	red, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 30, DiscountPercentage: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, types.USD(30), red.DiscountAmount)
	assert.Equal(t, uint64(20), red.RemainingBalance)
	assert.Equal(t, transaction.TypeRedeem, red.Record.Type)
	assert.Equal(t, uint8(15), red.Record.DiscountPercentage)

	payload, err := voucher.Decode(red.Voucher)
	require.NoError(t, err)
	assert.Equal(t, red.Record.ID.String(), payload.TransactionID)
	assert.Equal(t, uint64(30), payload.DiscountAmount)

	_, err = f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 30, DiscountPercentage: 10,
	})
	require.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
	assert.Equal(t, uint64(20), f.balance(t, "cust-1"))

	recs := f.records(t, "cust-1")
	require.Len(t, recs, 2)
	assert.Equal(t, transaction.TypeEarn, recs[0].Type)
	assert.Equal(t, uint64(50), recs[0].TokensAmount)
	assert.Equal(t, transaction.TypeRedeem, recs[1].Type)
	assert.Equal(t, uint64(30), recs[1].TokensAmount)
	assert.Equal(t, uint64(20), recs[1].BalanceAfter)
	assert.False(t, recs[1].Timestamp.Before(recs[0].Timestamp))
}

func TestBurnAboveMaxDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "cust-1", 5)

	_, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 10, DiscountPercentage: 25,
	})
	require.ErrorIs(t, err, loyalty.ErrInvalidParameter)

	assert.Equal(t, uint64(50), f.balance(t, "cust-1"))
	assert.Len(t, f.records(t, "cust-1"), 1)
}

func TestBurnValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "cust-1", 5)

	tests := []struct {
		name string
		req  loyalty.BurnRequest
		want error
	}{
		{"zero percentage", loyalty.BurnRequest{Customer: "cust-1", TokensToBurn: 1}, loyalty.ErrInvalidParameter},
		{"zero tokens", loyalty.BurnRequest{Customer: "cust-1", DiscountPercentage: 5}, loyalty.ErrInvalidParameter},
		{"missing customer", loyalty.BurnRequest{TokensToBurn: 1, DiscountPercentage: 5}, loyalty.ErrInvalidParameter},
		{"more than held", loyalty.BurnRequest{Customer: "cust-1", TokensToBurn: 51, DiscountPercentage: 5}, loyalty.ErrInsufficientBalance},
		{"never minted", loyalty.BurnRequest{Customer: "cust-2", TokensToBurn: 1, DiscountPercentage: 5}, loyalty.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.BusinessID = f.biz.ID
			_, err := f.l.BurnForDiscount(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, uint64(50), f.balance(t, "cust-1"))
	assert.Len(t, f.records(t, "cust-1"), 1)
}

func TestMintValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: f.biz.ID})
	require.ErrorIs(t, err, loyalty.ErrInvalidParameter)

	_, err = f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{BusinessID: f.biz.ID, AmountUSD: 1})
	require.ErrorIs(t, err, loyalty.ErrInvalidParameter)

	_, err = f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", AmountUSD: 1})
	require.ErrorIs(t, err, loyalty.ErrInvalidParameter)

	_, err = f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: id.NewBusinessID(), AmountUSD: 1})
	require.ErrorIs(t, err, loyalty.ErrBusinessNotFound)

	assert.Empty(t, f.records(t, "cust-1"))
}

func TestInactiveCheckedBeforeParameters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.l.DeactivateBusiness(ctx, f.biz.ID, "owner-1")
	require.NoError(t, err)

	_, err = f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: f.biz.ID, AmountUSD: 0})
	require.ErrorIs(t, err, loyalty.ErrBusinessInactive)
}

func TestMintOverflow(t *testing.T) {
	ctx := context.Background()
	l, _ := newEngine(t)

	b, err := l.RegisterBusiness(ctx, business.Registration{
		Owner: "owner-1", Name: "Whale Club", Category: business.CategoryOther, TokensPerDollar: 1 << 31,
	})
	require.NoError(t, err)

	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 1 << 33})
	require.ErrorIs(t, err, loyalty.ErrArithmeticOverflow)

	// Each mint fits, the running balance does not.
	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 1 << 31})
	require.NoError(t, err)
	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 1 << 31})
	require.ErrorIs(t, err, loyalty.ErrArithmeticOverflow)

	bal, err := l.GetBalance(ctx, "cust-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<62), bal.Amount)
	assert.Equal(t, int64(1), bal.Version)

	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-2", BusinessID: b.ID, AmountUSD: math.MaxUint64})
	require.ErrorIs(t, err, loyalty.ErrInvalidParameter)
}

func TestDuplicateSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, AmountUSD: 2, Signature: "pos-receipt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pos-receipt-1", res.Record.Signature)

	_, err = f.l.MintLoyaltyTokens(ctx, loyalty.MintRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, AmountUSD: 2, Signature: "pos-receipt-1",
	})
	require.ErrorIs(t, err, loyalty.ErrDuplicateSignature)
	assert.True(t, loyalty.IsInvalidParameter(err))

	assert.Equal(t, uint64(20), f.balance(t, "cust-1"))
	assert.Len(t, f.records(t, "cust-1"), 1)

	generated := f.mint(t, "cust-1", 1)
	assert.Regexp(t, "^sig_", generated.Record.Signature)
}

func TestGetBalanceOfUnknownKeyIsZero(t *testing.T) {
	f := newFixture(t)

	b, err := f.l.GetBalance(context.Background(), "stranger", f.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), b.Amount)
	assert.Equal(t, int64(0), b.Version)
}

// ──────────────────────────────────────────────────
// Properties
// ──────────────────────────────────────────────────

func TestAuditMirrorsBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	steps := []struct {
		mintUSD uint64
		burn    uint64
	}{
		{mintUSD: 3}, {burn: 10}, {mintUSD: 7}, {burn: 45}, {burn: 500}, {mintUSD: 1}, {burn: 55},
	}
	for _, s := range steps {
		if s.mintUSD > 0 {
			f.mint(t, "cust-1", s.mintUSD)
			continue
		}
		_, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
			Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: s.burn, DiscountPercentage: 10,
		})
		if err != nil {
			require.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
		}
	}

	var replayed uint64
	for i, r := range f.records(t, "cust-1") {
		switch r.Type {
		case transaction.TypeEarn:
			replayed += r.TokensAmount
		case transaction.TypeRedeem:
			require.GreaterOrEqual(t, replayed, r.TokensAmount)
			replayed -= r.TokensAmount
		}
		assert.Equal(t, replayed, r.BalanceAfter)
		assert.Equal(t, int64(i+1), r.Sequence)
	}
	assert.Equal(t, f.balance(t, "cust-1"), replayed)
	assert.Equal(t, uint64(0), replayed)
}

func TestConcurrentMintsOnOneKey(t *testing.T) {
	f := newFixture(t)

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.MintLoyaltyTokens(context.Background(), loyalty.MintRequest{
				Customer: "cust-1", BusinessID: f.biz.ID, AmountUSD: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(workers*10), f.balance(t, "cust-1"))
	assert.Len(t, f.records(t, "cust-1"), workers)
}

func TestConcurrentMintsOnDistinctKeys(t *testing.T) {
	f := newFixture(t)

	const customers = 16
	var wg sync.WaitGroup
	for i := range customers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.MintLoyaltyTokens(context.Background(), loyalty.MintRequest{
				Customer: fmt.Sprintf("cust-%d", i), BusinessID: f.biz.ID, AmountUSD: uint64(i + 1),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := range customers {
		assert.Equal(t, uint64((i+1)*10), f.balance(t, fmt.Sprintf("cust-%d", i)))
	}

	stats, err := f.l.BusinessStats(context.Background(), f.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(customers), stats.ActiveCustomers)
	assert.Equal(t, int64(customers), stats.EarnCount)
}

func TestConcurrentBurnsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.mint(t, "cust-1", 10) // 100 tokens

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.BurnForDiscount(context.Background(), loyalty.BurnRequest{
				Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 15, DiscountPercentage: 5,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	assert.Equal(t, uint64(10), f.balance(t, "cust-1"))
}

// heldLocker reports every key as held by someone else.
type heldLocker struct{}

func (heldLocker) Lock(ctx context.Context, _ string) (lock.Unlock, error) {
	<-ctx.Done()
	return nil, errors.Join(lock.ErrTimeout, ctx.Err())
}

func TestLockTimeout(t *testing.T) {
	ctx := context.Background()
	l, s := newEngine(t, loyalty.WithLocker(heldLocker{}), loyalty.WithLockTimeout(20*time.Millisecond))

	b := &business.Business{
		Entity: types.NewEntityAt(epoch), ID: id.NewBusinessID(), Owner: "owner-1",
		Name: "Cafe", Category: business.CategoryCafe, TokensPerDollar: 1, IsActive: true,
	}
	require.NoError(t, s.CreateBusiness(ctx, b))

	_, err := l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 1})
	require.ErrorIs(t, err, loyalty.ErrLockTimeout)
	assert.True(t, loyalty.IsRetryable(err))

	_, err = s.GetBalance(ctx, balance.Key{Customer: "cust-1", BusinessID: b.ID})
	require.ErrorIs(t, err, loyalty.ErrBalanceNotFound)
}

func TestTokenValueAndCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, loyalty.WithTokenValue(5), loyalty.WithCurrency("eur"))
	minted := f.mint(t, "cust-1", 2)
	assert.Equal(t, uint64(200), minted.Record.AmountUSD)

	red, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 20, DiscountPercentage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), red.DiscountAmount.Amount)
	assert.Equal(t, "eur", red.DiscountAmount.Currency)
	assert.Equal(t, uint64(100), red.Record.AmountUSD)
}

func TestBusinessStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "alice", 3)
	f.mint(t, "bob", 1)
	_, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "alice", BusinessID: f.biz.ID, TokensToBurn: 12, DiscountPercentage: 20,
	})
	require.NoError(t, err)

	stats, err := f.l.BusinessStats(ctx, f.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), stats.TokensIssued)
	assert.Equal(t, uint64(12), stats.TokensRedeemed)
	assert.Equal(t, int64(3), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.ActiveCustomers)

	_, err = f.l.BusinessStats(ctx, id.NewBusinessID())
	require.ErrorIs(t, err, loyalty.ErrBusinessNotFound)
}

func TestMonotonicClock(t *testing.T) {
	readings := []time.Time{epoch, epoch.Add(-time.Hour), epoch.Add(time.Second)}
	i := 0
	c := loyalty.Monotonic(loyalty.ClockFunc(func() time.Time {
		r := readings[i]
		i++
		return r
	}))

	first := c.Now()
	second := c.Now()
	third := c.Now()
	assert.True(t, second.Equal(first), "a clock going backwards is held at the last reading")
	assert.True(t, third.After(second))
}

func TestRecordAmountsAreMinorUnits(t *testing.T) {
	tests := []struct {
		name       string
		opts       []loyalty.Option
		wantEarn   uint64
		wantRedeem uint64
	}{
		{"usd", nil, 500, 30},
		{"jpy", []loyalty.Option{loyalty.WithCurrency("jpy")}, 5, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tt.opts...)
			f.mint(t, "cust-1", 5)

			red, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
				Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 30, DiscountPercentage: 10,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(tt.wantRedeem), red.DiscountAmount.Amount)

			recs := f.records(t, "cust-1")
			require.Len(t, recs, 2)
			assert.Equal(t, tt.wantEarn, recs[0].AmountUSD, "purchase of 5 whole units")
			assert.Equal(t, tt.wantRedeem, recs[1].AmountUSD, "discount for 30 tokens")
		})
	}
}

func TestVoucherMatchesCommittedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "cust-1", 5)

	red, err := f.l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: f.biz.ID, TokensToBurn: 25, DiscountPercentage: 20,
	})
	require.NoError(t, err)
	require.NotEmpty(t, red.Voucher)

	payload, err := voucher.Decode(red.Voucher)
	require.NoError(t, err)

	stored, err := f.l.GetTransaction(ctx, red.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID.String(), payload.TransactionID)
	assert.Equal(t, stored.Signature, payload.Signature)
	assert.Equal(t, stored.TokensAmount, payload.TokensBurned)
	assert.True(t, stored.Timestamp.Equal(payload.IssuedAt))
}

func TestSealFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "cust-1", 5)

	cur, err := f.l.GetBalance(ctx, "cust-1", f.biz.ID)
	require.NoError(t, err)

	sealErr := errors.New("voucher unavailable")
	_, err = f.l.RecordEarn(ctx, cur, cur.Amount+10, func(*transaction.Record) error { return sealErr })
	require.ErrorIs(t, err, sealErr)

	assert.Equal(t, uint64(50), f.balance(t, "cust-1"))
	assert.Len(t, f.records(t, "cust-1"), 1)
}

// flakyStore fails ApplyMutation while fail is set.
type flakyStore struct {
	*memory.Store
	fail atomic.Bool
}

var errStoreDown = errors.New("store down")

func (s *flakyStore) ApplyMutation(ctx context.Context, m *store.Mutation) error {
	if s.fail.Load() {
		return errStoreDown
	}
	return s.Store.ApplyMutation(ctx, m)
}

func TestFailedMutationLeavesBalanceAndLogUntouched(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l := loyalty.New(s,
		loyalty.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		loyalty.WithClock(steppingClock()),
	)

	b, err := l.RegisterBusiness(ctx, business.Registration{
		Owner: "owner-1", Name: "Iron Gym", Category: business.CategoryFitness, TokensPerDollar: 10,
	})
	require.NoError(t, err)
	maxDiscount := uint8(20)
	_, err = l.UpdateBusinessSettings(ctx, b.ID, "owner-1", business.Settings{MaxDiscount: &maxDiscount})
	require.NoError(t, err)

	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 5})
	require.NoError(t, err)

	s.fail.Store(true)

	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 3})
	require.ErrorIs(t, err, errStoreDown)
	_, err = l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "cust-1", BusinessID: b.ID, TokensToBurn: 20, DiscountPercentage: 10,
	})
	require.ErrorIs(t, err, errStoreDown)
	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-2", BusinessID: b.ID, AmountUSD: 1})
	require.ErrorIs(t, err, errStoreDown)

	bal, err := l.GetBalance(ctx, "cust-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bal.Amount)
	assert.Equal(t, int64(1), bal.Version)

	fresh, err := l.GetBalance(ctx, "cust-2", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fresh.Amount)

	recs, err := l.ListTransactions(ctx, transaction.ListOpts{BusinessID: b.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, transaction.TypeEarn, recs[0].Type)

	s.fail.Store(false)
	_, err = l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "cust-1", BusinessID: b.ID, AmountUSD: 3})
	require.NoError(t, err)
	bal, err = l.GetBalance(ctx, "cust-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), bal.Amount)
}
