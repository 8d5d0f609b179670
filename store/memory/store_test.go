package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/store/memory"
	"github.com/xraph/loyalty/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Ping(context.Background()), loyalty.ErrStoreClosed)
	require.ErrorIs(t, s.CreateBusiness(context.Background(), storetest.NewBusiness("o", loyalty.CategoryCafe, 0)), loyalty.ErrStoreClosed)
}
