// Package loyalty provides a multi-business loyalty token ledger for Go
// applications.
//
// Loyalty is designed as a library, not a service. Import it directly into
// your Go application and put whatever transport you like in front of it.
// It provides:
//
//   - A registry of businesses, each controlled by exactly one owner
//   - Per-customer, per-business token balances that never go negative
//   - Token minting on purchase and burning for bounded discounts
//   - An append-only transaction log mirroring every balance change
//   - Overflow-checked arithmetic on every amount
//   - Pluggable persistence (memory, LevelDB, PostgreSQL, SQLite, MongoDB)
//   - Lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/loyalty"
//	    "github.com/xraph/loyalty/store/memory"
//	)
//
//	l := loyalty.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// A business owner registers once and sets how many tokens a dollar earns:
//
//	biz, err := l.RegisterBusiness(ctx, business.Registration{
//	    Owner:           "owner-1",
//	    Name:            "Corner Cafe",
//	    Category:        business.CategoryCafe,
//	    TokensPerDollar: 10,
//	})
//
// New businesses grant no discount until the owner raises MaxDiscount:
//
//	maxDiscount := uint8(20)
//	biz, err = l.UpdateBusinessSettings(ctx, biz.ID, "owner-1", business.Settings{
//	    MaxDiscount: &maxDiscount,
//	})
//
// Purchases mint tokens, and tokens are burned for a discount:
//
//	minted, err := l.MintLoyaltyTokens(ctx, loyalty.MintRequest{
//	    Customer: "cust-1", BusinessID: biz.ID, AmountUSD: 5,
//	})
//	redemption, err := l.BurnForDiscount(ctx, loyalty.BurnRequest{
//	    Customer: "cust-1", BusinessID: biz.ID,
//	    TokensToBurn: 30, DiscountPercentage: 15,
//	})
//
// Each mint and burn appends exactly one transaction record, committed
// atomically with the balance change. Failed operations change nothing.
//
// # Concurrency
//
// Mutations of one balance are serialized through a keyed lock and an
// optimistic version check in the store; different balances never
// contend. Use WithLocker with a lock.Redis to serialize across several
// processes sharing one database.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	biz_01h2xcejqtf2nbrexx3vqjhp41  // Business ID
//	ltx_01h455vb4pex5vsknk084sn02q  // Transaction ID
//	sig_01h455vb4pex5vsknk084sn02q  // Generated signature
package loyalty
