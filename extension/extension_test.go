package extension

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/store/memory"
	"github.com/xraph/loyalty/store/sqlite"
)

func TestOptions(t *testing.T) {
	s := memory.New()
	e := New(
		WithStore(s),
		WithDisableMigrate(),
		WithDisableMetrics(),
		WithLockTimeout(time.Second),
		WithTokenValue(3),
		WithGroveDatabase("loyalty"),
	)

	assert.Equal(t, ExtensionName, e.Name())
	assert.Same(t, s, e.store)
	assert.True(t, e.config.DisableMigrate)
	assert.True(t, e.config.DisableMetrics)
	assert.Equal(t, time.Second, e.config.LockTimeout)
	assert.Equal(t, uint64(3), e.config.TokenValue)
	assert.Equal(t, "loyalty", e.config.GroveDatabase)
	assert.True(t, e.useGrove)
	assert.Nil(t, e.Engine())
}

func TestStoreForGroveSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "loyalty.db")
	opened, err := sqlite.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = opened.Close() })

	s, err := storeForGrove(opened.DB())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	assert.NoError(t, s.Ping(ctx))
}

func TestBuildLoyaltyOptsAppliesConfig(t *testing.T) {
	e := New(WithConfig(Config{TokenValue: 2, Currency: "eur"}))
	e.config = e.config.withDefaults()

	ctx := context.Background()
	engine := loyalty.New(memory.New(), e.buildLoyaltyOpts()...)

	biz, err := engine.RegisterBusiness(ctx, business.Registration{
		Owner:           "owner-1",
		Name:            "Corner Cafe",
		Category:        business.CategoryCafe,
		TokensPerDollar: 10,
	})
	require.NoError(t, err)

	maxDiscount := uint8(50)
	_, err = engine.UpdateBusinessSettings(ctx, biz.ID, "owner-1", business.Settings{MaxDiscount: &maxDiscount})
	require.NoError(t, err)

	_, err = engine.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "alice", BusinessID: biz.ID, AmountUSD: 5})
	require.NoError(t, err)

	red, err := engine.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer:           "alice",
		BusinessID:         biz.ID,
		TokensToBurn:       20,
		DiscountPercentage: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), red.DiscountAmount.Amount)
	assert.Equal(t, "eur", red.DiscountAmount.Currency)
	assert.Nil(t, e.redis)
}

func TestBuildLoyaltyOptsRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)

	e := New(WithRedisAddr(mr.Addr()))
	e.config = e.config.withDefaults()

	ctx := context.Background()
	engine := loyalty.New(memory.New(), e.buildLoyaltyOpts()...)
	require.NotNil(t, e.redis)
	t.Cleanup(func() { _ = e.redis.Close() })

	biz, err := engine.RegisterBusiness(ctx, business.Registration{
		Owner:           "owner-1",
		Name:            "Fade Barbers",
		Category:        business.CategoryBarbershop,
		TokensPerDollar: 3,
	})
	require.NoError(t, err)

	res, err := engine.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "bob", BusinessID: biz.ID, AmountUSD: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(21), res.Balance)

	// The lock is released once the mint commits.
	assert.Empty(t, mr.Keys())
}
