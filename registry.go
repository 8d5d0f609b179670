package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/types"
)

// ──────────────────────────────────────────────────
// Business registry
// ──────────────────────────────────────────────────

// RegisterBusiness creates a Business controlled by reg.Owner. Each owner
// controls at most one Business. New businesses are active and grant no
// discount until the owner sets MaxDiscount.
func (l *Loyalty) RegisterBusiness(ctx context.Context, reg business.Registration) (*business.Business, error) {
	b, err := l.registerBusiness(ctx, reg)
	if err != nil {
		l.reject(ctx, "register_business", err)
		return nil, err
	}

	l.plugins.EmitBusinessRegistered(ctx, b)
	l.logger.Info("business registered",
		"business_id", b.ID.String(),
		"owner", b.Owner,
		"category", b.Category,
		"tokens_per_dollar", b.TokensPerDollar,
	)

	return b, nil
}

func (l *Loyalty) registerBusiness(ctx context.Context, reg business.Registration) (*business.Business, error) {
	reg.Normalize()
	if err := l.validateStruct(reg); err != nil {
		return nil, err
	}

	unlock, err := l.acquire(ctx, "owner/"+reg.Owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := l.store.GetBusinessByOwner(ctx, reg.Owner)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, existing.ID)
	case !errors.Is(err, ErrBusinessNotFound):
		return nil, err
	}

	b := &business.Business{
		Entity:          types.NewEntityAt(l.clock.Now()),
		ID:              id.NewBusinessID(),
		Owner:           reg.Owner,
		Name:            reg.Name,
		Category:        reg.Category,
		TokensPerDollar: reg.TokensPerDollar,
		IsActive:        true,
	}

	if err := l.store.CreateBusiness(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBusinessSettings applies a partial settings update on behalf of
// caller, who must own the business. An empty update returns the
// business unchanged.
func (l *Loyalty) UpdateBusinessSettings(ctx context.Context, businessID id.BusinessID, caller string, s business.Settings) (*business.Business, error) {
	var before *business.Business

	b, err := l.mutateBusiness(ctx, businessID, caller, func(b *business.Business) (bool, error) {
		if err := checkSettings(s); err != nil {
			return false, err
		}
		if s.IsEmpty() {
			return false, nil
		}
		before = b.Clone()
		s.Apply(b)
		return true, nil
	})
	if err != nil {
		l.reject(ctx, "update_business_settings", err)
		return nil, err
	}

	if before != nil {
		l.plugins.EmitBusinessUpdated(ctx, before, b)
		l.logger.Info("business settings updated",
			"business_id", b.ID.String(),
			"tokens_per_dollar", b.TokensPerDollar,
			"max_discount", b.MaxDiscount,
		)
	}

	return b, nil
}

func checkSettings(s business.Settings) error {
	var errs MultiError
	if s.TokensPerDollar != nil {
		switch {
		case *s.TokensPerDollar == 0:
			errs.Add(invalid("tokens_per_dollar", "must be greater than 0"))
		case *s.TokensPerDollar > types.MaxAmount:
			errs.Add(invalid("tokens_per_dollar", "must be at most %d", types.MaxAmount))
		}
	}
	if s.MaxDiscount != nil && *s.MaxDiscount > business.MaxDiscountLimit {
		errs.Add(invalid("max_discount", "must be at most %d", business.MaxDiscountLimit))
	}
	return errs.ErrorOrNil()
}

// DeactivateBusiness stops a business from minting or burning tokens.
// Existing balances and records are kept. Deactivating an inactive
// business is a no-op.
func (l *Loyalty) DeactivateBusiness(ctx context.Context, businessID id.BusinessID, caller string) (*business.Business, error) {
	return l.setActive(ctx, businessID, caller, false, "deactivate_business")
}

// ActivateBusiness reverses DeactivateBusiness.
func (l *Loyalty) ActivateBusiness(ctx context.Context, businessID id.BusinessID, caller string) (*business.Business, error) {
	return l.setActive(ctx, businessID, caller, true, "activate_business")
}

func (l *Loyalty) setActive(ctx context.Context, businessID id.BusinessID, caller string, active bool, op string) (*business.Business, error) {
	changed := false

	b, err := l.mutateBusiness(ctx, businessID, caller, func(b *business.Business) (bool, error) {
		if b.IsActive == active {
			return false, nil
		}
		b.IsActive = active
		changed = true
		return true, nil
	})
	if err != nil {
		l.reject(ctx, op, err)
		return nil, err
	}

	if changed {
		l.plugins.EmitBusinessStatusChanged(ctx, b)
		l.logger.Info("business status changed",
			"business_id", b.ID.String(),
			"active", b.IsActive,
		)
	}

	return b, nil
}

// mutateBusiness loads a business under its lock, checks that caller owns
// it and persists it if fn reports a change.
func (l *Loyalty) mutateBusiness(
	ctx context.Context,
	businessID id.BusinessID,
	caller string,
	fn func(b *business.Business) (bool, error),
) (*business.Business, error) {
	caller = strings.TrimSpace(caller)
	if businessID.IsNil() {
		return nil, invalid("business_id", "is required")
	}
	if caller == "" {
		return nil, invalid("caller", "is required")
	}

	unlock, err := l.acquire(ctx, "business/"+businessID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := l.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !b.IsOwnedBy(caller) {
		return nil, fmt.Errorf("%w: %s does not own %s", ErrUnauthorized, caller, businessID)
	}

	changed, err := fn(b)
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}

	b.Touch(l.clock.Now())
	if err := l.store.UpdateBusiness(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// activeBusiness resolves the business a mint or burn targets.
func (l *Loyalty) activeBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	if businessID.IsNil() {
		return nil, invalid("business_id", "is required")
	}

	b, err := l.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !b.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrBusinessInactive, businessID)
	}
	return b, nil
}
