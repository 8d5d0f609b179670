// Package memory provides an in-memory store.Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/transaction"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps every entity in maps guarded by one mutex. Values are
// copied on the way in and out.
type Store struct {
	mu     sync.RWMutex
	closed bool

	// Business storage
	businesses map[string]*business.Business
	owners     map[string]string

	// Balance storage, keyed by balance.Key.String()
	balances map[string]*balance.Balance

	// Transaction log
	records    []*transaction.Record
	byID       map[string]*transaction.Record
	signatures map[string]*transaction.Record
}

func New() *Store {
	return &Store{
		businesses: make(map[string]*business.Business),
		owners:     make(map[string]string),
		balances:   make(map[string]*balance.Balance),
		records:    make([]*transaction.Record, 0),
		byID:       make(map[string]*transaction.Record),
		signatures: make(map[string]*transaction.Record),
	}
}

// ──────────────────────────────────────────────────
// Business Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateBusiness(_ context.Context, b *business.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return loyalty.ErrStoreClosed
	}
	if _, exists := s.owners[b.Owner]; exists {
		return fmt.Errorf("%w: %s", loyalty.ErrAlreadyRegistered, b.Owner)
	}
	if _, exists := s.businesses[b.ID.String()]; exists {
		return fmt.Errorf("%w: duplicate business id %s", loyalty.ErrAlreadyRegistered, b.ID)
	}

	s.businesses[b.ID.String()] = b.Clone()
	s.owners[b.Owner] = b.ID.String()
	return nil
}

func (s *Store) GetBusiness(_ context.Context, businessID id.BusinessID) (*business.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.businesses[businessID.String()]; ok {
		return b.Clone(), nil
	}
	return nil, loyalty.ErrBusinessNotFound
}

func (s *Store) GetBusinessByOwner(_ context.Context, owner string) (*business.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bizID, ok := s.owners[owner]; ok {
		return s.businesses[bizID].Clone(), nil
	}
	return nil, loyalty.ErrBusinessNotFound
}

func (s *Store) UpdateBusiness(_ context.Context, b *business.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return loyalty.ErrStoreClosed
	}
	existing, ok := s.businesses[b.ID.String()]
	if !ok {
		return loyalty.ErrBusinessNotFound
	}

	updated := b.Clone()
	// Owner and creation time are fixed at registration.
	updated.Owner = existing.Owner
	updated.CreatedAt = existing.CreatedAt
	s.businesses[b.ID.String()] = updated
	return nil
}

func (s *Store) ListBusinesses(_ context.Context, opts business.ListOpts) ([]*business.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*business.Business, 0)
	for _, b := range s.businesses {
		if opts.Matches(b) {
			result = append(result, b.Clone())
		}
	}
	business.Sort(result)

	return store.Page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Balance Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetBalance(_ context.Context, k balance.Key) (*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[k.String()]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, loyalty.ErrBalanceNotFound
}

func (s *Store) ListBalances(_ context.Context, customer string, opts balance.ListOpts) ([]*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*balance.Balance, 0)
	for _, b := range s.balances {
		if b.Customer == customer {
			cp := *b
			result = append(result, &cp)
		}
	}
	balance.Sort(result)

	return store.Page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Transaction Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetTransaction(_ context.Context, txID id.TransactionID) (*transaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.byID[txID.String()]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, loyalty.ErrTransactionNotFound
}

func (s *Store) GetTransactionBySignature(_ context.Context, signature string) (*transaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.signatures[signature]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, loyalty.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, opts transaction.ListOpts) ([]*transaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transaction.Record, 0)
	for _, r := range s.records {
		if opts.Matches(r) {
			cp := *r
			result = append(result, &cp)
		}
	}
	transaction.Sort(result)

	return store.Page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) SummarizeBusiness(_ context.Context, businessID id.BusinessID) (*transaction.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &transaction.Summary{BusinessID: businessID}
	customers := make(map[string]struct{})
	for _, r := range s.records {
		if r.BusinessID.String() != businessID.String() {
			continue
		}
		sum.Add(r)
		customers[r.Customer] = struct{}{}
	}
	sum.ActiveCustomers = int64(len(customers))

	return sum, nil
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

func (s *Store) ApplyMutation(_ context.Context, m *store.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return loyalty.ErrStoreClosed
	}

	key := m.Balance.Key().String()
	var current int64
	if b, ok := s.balances[key]; ok {
		current = b.Version
	}
	if current != m.PrevVersion {
		return fmt.Errorf("%w: balance %s at version %d, expected %d",
			loyalty.ErrConcurrentModification, key, current, m.PrevVersion)
	}
	if _, dup := s.signatures[m.Record.Signature]; dup {
		return fmt.Errorf("%w: %s", loyalty.ErrDuplicateSignature, m.Record.Signature)
	}

	bal := *m.Balance
	rec := *m.Record
	s.balances[key] = &bal
	s.records = append(s.records, &rec)
	s.byID[rec.ID.String()] = &rec
	s.signatures[rec.Signature] = &rec
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return loyalty.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
