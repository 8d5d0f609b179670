package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the "pg" migration executor
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to dsn and returns a Store over the new connection pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pgdb := pgdriver.New()
	if err := pgdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("loyalty/postgres: open: %w", err)
	}
	db, err := grove.Open(pgdb)
	if err != nil {
		_ = pgdb.Close()
		return nil, fmt.Errorf("loyalty/postgres: grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("loyalty/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("loyalty/postgres: migration failed: %w", err)
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
	m := toBusinessModel(b)
	res, err := s.pg.NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loyalty/postgres: create business: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", loyalty.ErrAlreadyRegistered, b.Owner)
	}
	return nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	m := new(businessModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", businessID.String()).
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
	err := s.pg.NewSelect(m).
		Where("owner = $1", owner).
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
	res, err := s.pg.NewUpdate((*businessModel)(nil)).
		Set("name = $1", b.Name).
		Set("category = $2", string(b.Category)).
		Set("tokens_per_dollar = $3", int64(b.TokensPerDollar)). //nolint:gosec // bounded by types.MaxAmount
		Set("max_discount = $4", int16(b.MaxDiscount)).
		Set("is_active = $5", b.IsActive).
		Set("updated_at = $6", b.UpdatedAt).
		Where("id = $7", b.ID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return loyalty.ErrBusinessNotFound
	}
	return nil
}

func (s *Store) ListBusinesses(ctx context.Context, opts business.ListOpts) ([]*business.Business, error) {
	var models []businessModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Category != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("category = $%d", argIdx), string(opts.Category))
	}
	if opts.ActiveOnly {
		argIdx++
		q = q.Where(fmt.Sprintf("is_active = $%d", argIdx), true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
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
	err := s.pg.NewSelect(m).
		Where("customer = $1", k.Customer).
		Where("business_id = $2", k.BusinessID.String()).
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
	q := s.pg.NewSelect(&models).Where("customer = $1", customer)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", txID.String()).
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
	err := s.pg.NewSelect(m).
		Where("signature = $1", signature).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Customer != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("customer = $%d", argIdx), opts.Customer)
	}
	if !opts.BusinessID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("business_id = $%d", argIdx), opts.BusinessID.String())
	}
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("transaction_type = $%d", argIdx), string(opts.Type))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
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
	err := s.pg.NewRaw(`
SELECT
    COALESCE(SUM(CASE WHEN transaction_type = 'earn' THEN tokens_amount ELSE 0 END), 0)::BIGINT,
    COALESCE(SUM(CASE WHEN transaction_type = 'redeem' THEN tokens_amount ELSE 0 END), 0)::BIGINT,
    COUNT(*) FILTER (WHERE transaction_type = 'earn'),
    COUNT(*) FILTER (WHERE transaction_type = 'redeem'),
    COUNT(*),
    COUNT(DISTINCT customer)
FROM loyalty_transactions
WHERE business_id = $1`, businessID.String()).
		Scan(ctx, &issued, &redeemed, &earns, &redeems, &total, &customers)
	if err != nil {
		return nil, fmt.Errorf("loyalty/postgres: summarize business: %w", err)
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

// ApplyMutation writes the balance and its record in one transaction. The
// balance row is compare-and-swapped on its version; the record insert
// relies on the unique signature index.
func (s *Store) ApplyMutation(ctx context.Context, m *loyaltystore.Mutation) (err error) {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("loyalty/postgres: begin: %w", err)
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
			Set("amount = $1", bal.Amount).
			Set("version = $2", bal.Version).
			Set("updated_at = $3", bal.UpdatedAt).
			Where("customer = $4", bal.Customer).
			Where("business_id = $5", bal.BusinessID).
			Where("version = $6", m.PrevVersion).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("loyalty/postgres: write balance: %w", err)
	}
	if err = expectOne(res, fmt.Errorf("%w: balance %s moved past version %d",
		loyalty.ErrConcurrentModification, m.Balance.Key(), m.PrevVersion)); err != nil {
		return err
	}

	res, err = tx.NewInsert(toTransactionModel(m.Record)).
		OnConflict("(signature) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loyalty/postgres: append transaction: %w", err)
	}
	if err = expectOne(res, fmt.Errorf("%w: %s", loyalty.ErrDuplicateSignature, m.Record.Signature)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("loyalty/postgres: commit: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

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
