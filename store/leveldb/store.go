// Package leveldb implements store.Store on an embedded LevelDB database.
//
// Entities are JSON documents under typed key prefixes. A balance change
// and its transaction record are written in one leveldb.Batch, so both
// land or neither does.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	"github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/transaction"
)

// Key prefixes.
const (
	businessPrefix  = "biz:"
	ownerPrefix     = "owner:"
	balancePrefix   = "bal:"
	recordPrefix    = "ltx:"
	signaturePrefix = "sig:"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a LevelDB-backed store.
type Store struct {
	db   *leveldb.DB
	sync bool

	// mu serializes read-check-write sequences; LevelDB batches are atomic
	// but carry no conditions.
	mu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithSync fsyncs every mutation before it is acknowledged.
func WithSync(enabled bool) Option {
	return func(s *Store) { s.sync = enabled }
}

// Open opens (or creates) a LevelDB database at path.
func Open(path string, opts ...Option) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("loyalty/leveldb: path required")
	}
	db, err := leveldb.OpenFile(filepath.Clean(trimmed), nil)
	if err != nil {
		return nil, fmt.Errorf("loyalty/leveldb: open %s: %w", trimmed, err)
	}
	return newStore(db, opts...), nil
}

// NewInMemory creates a Store backed by LevelDB's memory storage.
func NewInMemory(opts ...Option) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("loyalty/leveldb: open memory storage: %w", err)
	}
	return newStore(db, opts...), nil
}

func newStore(db *leveldb.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying LevelDB handle.
func (s *Store) DB() *leveldb.DB { return s.db }

// ──────────────────────────────────────────────────
// Business Store
// ──────────────────────────────────────────────────

func (s *Store) CreateBusiness(_ context.Context, b *business.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.db.Has([]byte(ownerPrefix+b.Owner), nil)
	if err != nil {
		return mapErr("create business", err)
	}
	if ok {
		return fmt.Errorf("%w: %s", loyalty.ErrAlreadyRegistered, b.Owner)
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("loyalty/leveldb: encode business: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(businessPrefix+b.ID.String()), data)
	batch.Put([]byte(ownerPrefix+b.Owner), []byte(b.ID.String()))
	return mapErr("create business", s.db.Write(batch, s.writeOpts()))
}

func (s *Store) GetBusiness(_ context.Context, businessID id.BusinessID) (*business.Business, error) {
	b := new(business.Business)
	if err := s.getJSON(businessPrefix+businessID.String(), b); err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, loyalty.ErrBusinessNotFound
		}
		return nil, mapErr("get business", err)
	}
	return b, nil
}

func (s *Store) GetBusinessByOwner(ctx context.Context, owner string) (*business.Business, error) {
	raw, err := s.db.Get([]byte(ownerPrefix+owner), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, loyalty.ErrBusinessNotFound
		}
		return nil, mapErr("get business by owner", err)
	}
	bizID, err := id.ParseBusinessID(string(raw))
	if err != nil {
		return nil, fmt.Errorf("loyalty/leveldb: corrupt owner index for %q: %w", owner, err)
	}
	return s.GetBusiness(ctx, bizID)
}

func (s *Store) UpdateBusiness(ctx context.Context, b *business.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.GetBusiness(ctx, b.ID)
	if err != nil {
		return err
	}

	updated := b.Clone()
	updated.Owner = existing.Owner
	updated.CreatedAt = existing.CreatedAt

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("loyalty/leveldb: encode business: %w", err)
	}
	return mapErr("update business", s.db.Put([]byte(businessPrefix+b.ID.String()), data, s.writeOpts()))
}

func (s *Store) ListBusinesses(ctx context.Context, opts business.ListOpts) ([]*business.Business, error) {
	result := make([]*business.Business, 0)
	err := s.scan(ctx, businessPrefix, func(value []byte) error {
		b := new(business.Business)
		if err := json.Unmarshal(value, b); err != nil {
			return fmt.Errorf("loyalty/leveldb: decode business: %w", err)
		}
		if opts.Matches(b) {
			result = append(result, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	business.Sort(result)

	return store.Page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Balance Store
// ──────────────────────────────────────────────────

// balanceKey sorts every balance of one customer together.
func balanceKey(k balance.Key) string {
	return balancePrefix + k.Customer + "\x00" + k.BusinessID.String()
}

func (s *Store) GetBalance(_ context.Context, k balance.Key) (*balance.Balance, error) {
	b := new(balance.Balance)
	if err := s.getJSON(balanceKey(k), b); err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, loyalty.ErrBalanceNotFound
		}
		return nil, mapErr("get balance", err)
	}
	return b, nil
}

func (s *Store) ListBalances(ctx context.Context, customer string, opts balance.ListOpts) ([]*balance.Balance, error) {
	result := make([]*balance.Balance, 0)
	err := s.scan(ctx, balancePrefix+customer+"\x00", func(value []byte) error {
		b := new(balance.Balance)
		if err := json.Unmarshal(value, b); err != nil {
			return fmt.Errorf("loyalty/leveldb: decode balance: %w", err)
		}
		result = append(result, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	balance.Sort(result)

	return store.Page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Transaction Store
// ──────────────────────────────────────────────────

func (s *Store) GetTransaction(_ context.Context, txID id.TransactionID) (*transaction.Record, error) {
	r := new(transaction.Record)
	if err := s.getJSON(recordPrefix+txID.String(), r); err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, loyalty.ErrTransactionNotFound
		}
		return nil, mapErr("get transaction", err)
	}
	return r, nil
}

func (s *Store) GetTransactionBySignature(ctx context.Context, signature string) (*transaction.Record, error) {
	raw, err := s.db.Get([]byte(signaturePrefix+signature), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, loyalty.ErrTransactionNotFound
		}
		return nil, mapErr("get transaction by signature", err)
	}
	txID, err := id.ParseTransactionID(string(raw))
	if err != nil {
		return nil, fmt.Errorf("loyalty/leveldb: corrupt signature index for %q: %w", signature, err)
	}
	return s.GetTransaction(ctx, txID)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Record, error) {
	result := make([]*transaction.Record, 0)
	err := s.scanRecords(ctx, func(r *transaction.Record) {
		if opts.Matches(r) {
			result = append(result, r)
		}
	})
	if err != nil {
		return nil, err
	}
	transaction.Sort(result)

	return store.Page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) SummarizeBusiness(ctx context.Context, businessID id.BusinessID) (*transaction.Summary, error) {
	sum := &transaction.Summary{BusinessID: businessID}
	customers := make(map[string]struct{})

	err := s.scanRecords(ctx, func(r *transaction.Record) {
		if r.BusinessID.String() != businessID.String() {
			return
		}
		sum.Add(r)
		customers[r.Customer] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	sum.ActiveCustomers = int64(len(customers))

	return sum, nil
}

func (s *Store) scanRecords(ctx context.Context, fn func(r *transaction.Record)) error {
	return s.scan(ctx, recordPrefix, func(value []byte) error {
		r := new(transaction.Record)
		if err := json.Unmarshal(value, r); err != nil {
			return fmt.Errorf("loyalty/leveldb: decode transaction: %w", err)
		}
		fn(r)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

func (s *Store) ApplyMutation(ctx context.Context, m *store.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := m.Balance.Key()
	var current int64
	switch cur, err := s.GetBalance(ctx, k); {
	case err == nil:
		current = cur.Version
	case !errors.Is(err, loyalty.ErrBalanceNotFound):
		return err
	}
	if current != m.PrevVersion {
		return fmt.Errorf("%w: balance %s at version %d, expected %d",
			loyalty.ErrConcurrentModification, k, current, m.PrevVersion)
	}

	dup, err := s.db.Has([]byte(signaturePrefix+m.Record.Signature), nil)
	if err != nil {
		return mapErr("check signature", err)
	}
	if dup {
		return fmt.Errorf("%w: %s", loyalty.ErrDuplicateSignature, m.Record.Signature)
	}

	balData, err := json.Marshal(m.Balance)
	if err != nil {
		return fmt.Errorf("loyalty/leveldb: encode balance: %w", err)
	}
	recData, err := json.Marshal(m.Record)
	if err != nil {
		return fmt.Errorf("loyalty/leveldb: encode transaction: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(balanceKey(k)), balData)
	batch.Put([]byte(recordPrefix+m.Record.ID.String()), recData)
	batch.Put([]byte(signaturePrefix+m.Record.Signature), []byte(m.Record.ID.String()))
	return mapErr("apply mutation", s.db.Write(batch, s.writeOpts()))
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op; LevelDB is schemaless.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reads a property to confirm the database is open.
func (s *Store) Ping(_ context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return mapErr("ping", err)
}

func (s *Store) Close() error {
	return mapErr("close", s.db.Close())
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) writeOpts() *opt.WriteOptions {
	if !s.sync {
		return nil
	}
	return &opt.WriteOptions{Sync: true}
}

func (s *Store) getJSON(key string, dest any) error {
	raw, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("loyalty/leveldb: decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) scan(ctx context.Context, prefix string, fn func(value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return mapErr("iterate "+prefix, iter.Error())
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrClosed):
		return fmt.Errorf("loyalty/leveldb: %s: %w", op, loyalty.ErrStoreClosed)
	default:
		return fmt.Errorf("loyalty/leveldb: %s: %w", op, err)
	}
}
