package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the "sqlite" migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	loyaltystore "github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/transaction"
)

// compile-time interface check
var _ loyaltystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// SQLite admits one writer at a time. Writes are serialized in-process so
// concurrent mutations queue on a mutex rather than fail with SQLITE_BUSY.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB

	writeMu sync.Mutex
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens the SQLite database at dsn (a file path or "file:" URI).
func Open(ctx context.Context, dsn string) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("loyalty/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("loyalty/sqlite: grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("loyalty/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("loyalty/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Business Store ====================

func (s *Store) CreateBusiness(ctx context.Context, b *business.Business) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.sdb.NewInsert(toBusinessModel(b)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loyalty/sqlite: create business: %w", err)
	}
	if err := expectOne(res, fmt.Errorf("%w: %s", loyalty.ErrAlreadyRegistered, b.Owner)); err != nil {
		return err
	}
	return nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	m := new(businessModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", businessID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loyalty.ErrBusinessNotFound
		}
		return nil, err
	}
	return fromBusinessModel(m)
}

func (s *Store) GetBusinessByOwner(ctx context.Context, owner string) (*business.Business, error) {
	m := new(businessModel)
	err := s.sdb.NewSelect(m).
		Where("owner = ?", owner).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loyalty.ErrBusinessNotFound
		}
		return nil, err
	}
	return fromBusinessModel(m)
}

func (s *Store) UpdateBusiness(ctx context.Context, b *business.Business) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.sdb.NewUpdate((*businessModel)(nil)).
		Set("name = ?", b.Name).
		Set("category = ?", string(b.Category)).
		Set("tokens_per_dollar = ?", int64(b.TokensPerDollar)). //nolint:gosec // bounded by types.MaxAmount
		Set("max_discount = ?", int64(b.MaxDiscount)).
		Set("is_active = ?", b.IsActive).
		Set("updated_at = ?", b.UpdatedAt).
		Where("id = ?", b.ID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res, loyalty.ErrBusinessNotFound)
}

func (s *Store) ListBusinesses(ctx context.Context, opts business.ListOpts) ([]*business.Business, error) {
	var models []businessModel
	q := s.sdb.NewSelect(&models)

	if opts.Category != "" {
		q = q.Where("category = ?", string(opts.Category))
	}
	if opts.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if limit := pageLimit(opts.Limit, opts.Offset); limit > 0 {
		q = q.Limit(limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*business.Business, len(models))
	for i := range models {
		b, err := fromBusinessModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, k balance.Key) (*balance.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("customer = ?", k.Customer).
		Where("business_id = ?", k.BusinessID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loyalty.ErrBalanceNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m)
}

func (s *Store) ListBalances(ctx context.Context, customer string, opts balance.ListOpts) ([]*balance.Balance, error) {
	var models []balanceModel
	q := s.sdb.NewSelect(&models).Where("customer = ?", customer)
	if limit := pageLimit(opts.Limit, opts.Offset); limit > 0 {
		q = q.Limit(limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("business_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*balance.Balance, len(models))
	for i := range models {
		b, err := fromBalanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Record, error) {
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", txID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loyalty.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) GetTransactionBySignature(ctx context.Context, signature string) (*transaction.Record, error) {
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("signature = ?", signature).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loyalty.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models)

	if opts.Customer != "" {
		q = q.Where("customer = ?", opts.Customer)
	}
	if !opts.BusinessID.IsNil() {
		q = q.Where("business_id = ?", opts.BusinessID.String())
	}
	if opts.Type != "" {
		q = q.Where("transaction_type = ?", string(opts.Type))
	}
	if limit := pageLimit(opts.Limit, opts.Offset); limit > 0 {
		q = q.Limit(limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp ASC, sequence ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*transaction.Record, len(models))
	for i := range models {
		r, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) SummarizeBusiness(ctx context.Context, businessID id.BusinessID) (*transaction.Summary, error) {
	var issued, redeemed, earns, redeems, total, customers int64
	err := s.sdb.NewRaw(`
SELECT
    COALESCE(SUM(CASE WHEN transaction_type = 'earn' THEN tokens_amount ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN transaction_type = 'redeem' THEN tokens_amount ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN transaction_type = 'earn' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN transaction_type = 'redeem' THEN 1 ELSE 0 END), 0),
    COUNT(*),
    COUNT(DISTINCT customer)
FROM loyalty_transactions
WHERE business_id = ?`, businessID.String()).
		Scan(ctx, &issued, &redeemed, &earns, &redeems, &total, &customers)
	if err != nil {
		return nil, fmt.Errorf("loyalty/sqlite: summarize business: %w", err)
	}

	return &transaction.Summary{
		BusinessID:        businessID,
		TokensIssued:      uint64(issued),   //nolint:gosec // sums of non-negative amounts
		TokensRedeemed:    uint64(redeemed), //nolint:gosec // sums of non-negative amounts
		EarnCount:         earns,
		RedeemCount:       redeems,
		TotalTransactions: total,
		ActiveCustomers:   customers,
	}, nil
}

// ==================== Mutations ====================

// ApplyMutation writes the balance and its record in one transaction.
func (s *Store) ApplyMutation(ctx context.Context, m *loyaltystore.Mutation) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("loyalty/sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	bal := toBalanceModel(m.Balance)
	var res driver.Result
	if m.PrevVersion == 0 {
		res, err = tx.NewInsert(bal).
			OnConflict("(customer, business_id) DO NOTHING").
			Exec(ctx)
	} else {
		res, err = tx.NewUpdate((*balanceModel)(nil)).
			Set("amount = ?", bal.Amount).
			Set("version = ?", bal.Version).
			Set("updated_at = ?", bal.UpdatedAt).
			Where("customer = ?", bal.Customer).
			Where("business_id = ?", bal.BusinessID).
			Where("version = ?", m.PrevVersion).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("loyalty/sqlite: write balance: %w", err)
	}
	if err = expectOne(res, fmt.Errorf("%w: balance %s moved past version %d",
		loyalty.ErrConcurrentModification, m.Balance.Key(), m.PrevVersion)); err != nil {
		return err
	}

	res, err = tx.NewInsert(toTransactionModel(m.Record)).
		OnConflict("(signature) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loyalty/sqlite: append transaction: %w", err)
	}
	if err = expectOne(res, fmt.Errorf("%w: %s", loyalty.ErrDuplicateSignature, m.Record.Signature)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("loyalty/sqlite: commit: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// pageLimit returns the LIMIT to apply. SQLite rejects OFFSET without
// LIMIT, so an offset-only page gets an unbounded limit.
func pageLimit(limit, offset int) int {
	if limit <= 0 && offset > 0 {
		return math.MaxInt32
	}
	return limit
}

// expectOne returns conflict unless exactly one row was written.
func expectOne(res driver.Result, conflict error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return conflict
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
