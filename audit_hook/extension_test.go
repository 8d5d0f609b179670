package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loyalty"
	audithook "github.com/xraph/loyalty/audit_hook"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/store/memory"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func (s *sink) last() *audithook.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func newEngine(t *testing.T, ext *audithook.Extension) *loyalty.Loyalty {
	t.Helper()
	l := loyalty.New(memory.New(),
		loyalty.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		loyalty.WithPlugin(ext),
	)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func register(t *testing.T, l *loyalty.Loyalty) *business.Business {
	t.Helper()
	b, err := l.RegisterBusiness(context.Background(), business.Registration{
		Owner:           "owner-1",
		Name:            "Iron Works Gym",
		Category:        business.CategoryFitness,
		TokensPerDollar: 3,
	})
	require.NoError(t, err)
	return b
}

func TestLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	l := newEngine(t, audithook.New(s))
	b := register(t, l)

	maxDiscount := uint8(50)
	_, err := l.UpdateBusinessSettings(ctx, b.ID, "owner-1", business.Settings{MaxDiscount: &maxDiscount})
	require.NoError(t, err)

	minted, err := l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "bob", BusinessID: b.ID, AmountUSD: 10})
	require.NoError(t, err)

	mintEvt := s.last()
	assert.Equal(t, audithook.ActionTokensMinted, mintEvt.Action)
	assert.Equal(t, minted.Record.ID.String(), mintEvt.ResourceID)
	assert.Equal(t, uint64(30), mintEvt.Metadata["tokens"])
	assert.Equal(t, "bob", mintEvt.Metadata["customer"])

	_, err = l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "bob", BusinessID: b.ID, TokensToBurn: 30, DiscountPercentage: 50,
	})
	require.NoError(t, err)

	_, err = l.DeactivateBusiness(ctx, b.ID, "owner-1")
	require.NoError(t, err)
	deact := s.last()
	assert.Equal(t, audithook.SeverityWarning, deact.Severity)
	assert.Equal(t, false, deact.Metadata["is_active"])

	assert.Equal(t, []string{
		audithook.ActionBusinessRegistered,
		audithook.ActionBusinessUpdated,
		audithook.ActionTokensMinted,
		audithook.ActionTokensBurned,
		audithook.ActionBusinessDeactivated,
	}, s.actions())
}

func TestRejectedOperations(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	l := newEngine(t, audithook.New(s))
	b := register(t, l)

	maxDiscount := uint8(10)
	_, err := l.UpdateBusinessSettings(ctx, b.ID, "intruder", business.Settings{MaxDiscount: &maxDiscount})
	require.ErrorIs(t, err, loyalty.ErrUnauthorized)

	evt := s.last()
	assert.Equal(t, audithook.ActionOperationRejected, evt.Action)
	assert.Equal(t, audithook.OutcomeFailure, evt.Outcome)
	assert.Equal(t, audithook.CategoryAccess, evt.Category)
	assert.Equal(t, audithook.SeverityWarning, evt.Severity)
	assert.Equal(t, "update_business_settings", evt.ResourceID)
	assert.NotEmpty(t, evt.Reason)

	_, err = l.BurnForDiscount(ctx, loyalty.BurnRequest{
		Customer: "bob", BusinessID: b.ID, TokensToBurn: 1, DiscountPercentage: 0,
	})
	require.Error(t, err)

	evt = s.last()
	assert.Equal(t, audithook.CategoryLedger, evt.Category)
	assert.Equal(t, "burn_for_discount", evt.Metadata["operation"])
	assert.Equal(t, false, evt.Metadata["retryable"])
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	l := newEngine(t, audithook.New(s, audithook.WithEnabledActions(audithook.ActionTokensMinted)))
	b := register(t, l)

	_, err := l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "bob", BusinessID: b.ID, AmountUSD: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{audithook.ActionTokensMinted}, s.actions())
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	l := newEngine(t, audithook.New(s, audithook.WithDisabledActions(audithook.ActionBusinessRegistered)))
	b := register(t, l)

	_, err := l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "bob", BusinessID: b.ID, AmountUSD: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{audithook.ActionTokensMinted}, s.actions())
}

func TestRecorderFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	var calls int
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		calls++
		return errors.New("audit backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	l := newEngine(t, ext)
	b := register(t, l)

	_, err := l.MintLoyaltyTokens(ctx, loyalty.MintRequest{Customer: "bob", BusinessID: b.ID, AmountUSD: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
