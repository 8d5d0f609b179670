package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/loyalty"
	"github.com/xraph/loyalty/balance"
	"github.com/xraph/loyalty/business"
	"github.com/xraph/loyalty/id"
	loyaltystore "github.com/xraph/loyalty/store"
	"github.com/xraph/loyalty/transaction"
)

// Collection name constants.
const (
	colBusinesses   = "loyalty_businesses"
	colBalances     = "loyalty_balances"
	colTransactions = "loyalty_transactions"
)

// compile-time interface check
var _ loyaltystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// ApplyMutation runs in a multi-document transaction, which requires a
// replica set or sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to uri. The database name comes from the URI path unless
// opts name one.
func Open(ctx context.Context, uri string, opts ...mongodriver.MongoOption) (*Store, error) {
	mdb := mongodriver.New()
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("loyalty/mongo: open: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("loyalty/mongo: grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all loyalty collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("loyalty/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toBusinessModel(b)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", loyalty.ErrAlreadyRegistered, b.Owner)
		}
		return fmt.Errorf("loyalty/mongo: create business: %w", err)
	}
	return nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	var m businessModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": businessID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loyalty.ErrBusinessNotFound
		}
		return nil, fmt.Errorf("loyalty/mongo: get business: %w", err)
	}
	return fromBusinessModel(&m)
}

func (s *Store) GetBusinessByOwner(ctx context.Context, owner string) (*business.Business, error) {
	var m businessModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"owner": owner}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loyalty.ErrBusinessNotFound
		}
		return nil, fmt.Errorf("loyalty/mongo: get business by owner: %w", err)
	}
	return fromBusinessModel(&m)
}

func (s *Store) UpdateBusiness(ctx context.Context, b *business.Business) error {
	m := toBusinessModel(b)
	res, err := s.mdb.NewUpdate((*businessModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("name", m.Name).
		Set("category", m.Category).
		Set("tokens_per_dollar", m.TokensPerDollar).
		Set("max_discount", m.MaxDiscount).
		Set("is_active", m.IsActive).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loyalty/mongo: update business: %w", err)
	}
	if res.MatchedCount() == 0 {
		return loyalty.ErrBusinessNotFound
	}
	return nil
}

func (s *Store) ListBusinesses(ctx context.Context, opts business.ListOpts) ([]*business.Business, error) {
	var models []businessModel

	filter := bson.M{}
	if opts.Category != "" {
		filter["category"] = string(opts.Category)
	}
	if opts.ActiveOnly {
		filter["is_active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("loyalty/mongo: list businesses: %w", err)
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
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": k.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loyalty.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("loyalty/mongo: get balance: %w", err)
	}
	return fromBalanceModel(&m)
}

func (s *Store) ListBalances(ctx context.Context, customer string, opts balance.ListOpts) ([]*balance.Balance, error) {
	var models []balanceModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"customer": customer}).
		Sort(bson.D{{Key: "business_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("loyalty/mongo: list balances: %w", err)
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
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": txID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loyalty.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("loyalty/mongo: get transaction: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) GetTransactionBySignature(ctx context.Context, signature string) (*transaction.Record, error) {
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"signature": signature}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, loyalty.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("loyalty/mongo: get transaction by signature: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel

	filter := bson.M{}
	if opts.Customer != "" {
		filter["customer"] = opts.Customer
	}
	if !opts.BusinessID.IsNil() {
		filter["business_id"] = opts.BusinessID.String()
	}
	if opts.Type != "" {
		filter["transaction_type"] = string(opts.Type)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "timestamp", Value: 1},
			{Key: "sequence", Value: 1},
			{Key: "_id", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("loyalty/mongo: list transactions: %w", err)
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
	var results []struct {
		Issued    int64    `bson:"issued"`
		Redeemed  int64    `bson:"redeemed"`
		Earns     int64    `bson:"earns"`
		Redeems   int64    `bson:"redeems"`
		Total     int64    `bson:"total"`
		Customers []string `bson:"customers"`
	}

	isType := func(t transaction.Type) bson.M {
		return bson.M{"$eq": bson.A{"$transaction_type", string(t)}}
	}
	err := s.mdb.NewAggregate(colTransactions).
		Match(bson.M{"business_id": businessID.String()}).
		Group(bson.M{
			"_id":       nil,
			"issued":    bson.M{"$sum": bson.M{"$cond": bson.A{isType(transaction.TypeEarn), "$tokens_amount", 0}}},
			"redeemed":  bson.M{"$sum": bson.M{"$cond": bson.A{isType(transaction.TypeRedeem), "$tokens_amount", 0}}},
			"earns":     bson.M{"$sum": bson.M{"$cond": bson.A{isType(transaction.TypeEarn), 1, 0}}},
			"redeems":   bson.M{"$sum": bson.M{"$cond": bson.A{isType(transaction.TypeRedeem), 1, 0}}},
			"total":     bson.M{"$sum": 1},
			"customers": bson.M{"$addToSet": "$customer"},
		}).
		Scan(ctx, &results)
	if err != nil {
		return nil, fmt.Errorf("loyalty/mongo: summarize business: %w", err)
	}

	sum := &transaction.Summary{BusinessID: businessID}
	if len(results) == 0 {
		return sum, nil
	}
	r := results[0]
	sum.TokensIssued = uint64(r.Issued)     //nolint:gosec // sums of non-negative amounts
	sum.TokensRedeemed = uint64(r.Redeemed) //nolint:gosec // sums of non-negative amounts
	sum.EarnCount = r.Earns
	sum.RedeemCount = r.Redeems
	sum.TotalTransactions = r.Total
	sum.ActiveCustomers = int64(len(r.Customers))
	return sum, nil
}

// ==================== Mutations ====================

// ApplyMutation writes the balance and its record in one session
// transaction. The balance document is compare-and-swapped on version;
// the record insert relies on the unique signature index.
func (s *Store) ApplyMutation(ctx context.Context, m *loyaltystore.Mutation) (err error) {
	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("loyalty/mongo: begin: %w", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("loyalty/mongo: unexpected transaction type %T", raw)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	conflict := fmt.Errorf("%w: balance %s moved past version %d",
		loyalty.ErrConcurrentModification, m.Balance.Key(), m.PrevVersion)

	bal := toBalanceModel(m.Balance)
	if m.PrevVersion == 0 {
		if _, err = tx.NewInsert(bal).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) || isTransient(err) {
				return conflict
			}
			return fmt.Errorf("loyalty/mongo: write balance: %w", err)
		}
	} else {
		res, uerr := tx.NewUpdate((*balanceModel)(nil)).
			Filter(bson.M{"_id": bal.ID, "version": m.PrevVersion}).
			Set("amount", bal.Amount).
			Set("version", bal.Version).
			Set("updated_at", bal.UpdatedAt).
			Exec(ctx)
		switch {
		case uerr != nil && isTransient(uerr):
			return conflict
		case uerr != nil:
			return fmt.Errorf("loyalty/mongo: write balance: %w", uerr)
		case res.MatchedCount() == 0:
			return conflict
		}
	}

	if _, err = tx.NewInsert(toTransactionModel(m.Record)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", loyalty.ErrDuplicateSignature, m.Record.Signature)
		}
		if isTransient(err) {
			return conflict
		}
		return fmt.Errorf("loyalty/mongo: append transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		if isTransient(err) {
			return conflict
		}
		return fmt.Errorf("loyalty/mongo: commit: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isTransient reports a write conflict between concurrent transactions.
func isTransient(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError")
}

// migrationIndexes returns the index definitions for all loyalty collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBusinesses: {
			{
				Keys:    bson.D{{Key: "owner", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colBalances: {
			{Keys: bson.D{{Key: "customer", Value: 1}, {Key: "business_id", Value: 1}}},
		},
		colTransactions: {
			{
				Keys:    bson.D{{Key: "signature", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "customer", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "sequence", Value: 1}}},
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "sequence", Value: 1}}},
		},
	}
}
