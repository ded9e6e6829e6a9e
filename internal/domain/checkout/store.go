package checkout

import (
	"context"

	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

// Store runs fn in a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the transaction-scoped repositories.
type Tx interface {
	Carts() CartStore
	Referrals() ReferralStore
	Purchases() PurchaseStore
	Commissions() CommissionStore
	Enrollments() enrollment.Repository
}

// CartStore is the checkout view of carts.
type CartStore interface {
	// LockForCheckout locks the user's cart row until the transaction ends and
	// returns it with items and attached code. It returns nil when the user
	// has no cart.
	LockForCheckout(ctx context.Context, userID int64) (*cart.Cart, error)
	// Clear removes every item and detaches the code.
	Clear(ctx context.Context, cartID int64) error
}

// ReferralStore is the checkout view of referral codes.
type ReferralStore interface {
	// ConsumeUse increments current_uses only while the code is still
	// available. It returns referral.ErrCodeInactive or
	// referral.ErrCodeExhausted when it is not.
	ConsumeUse(ctx context.Context, codeID int64) error
}

// PurchaseStore is the checkout view of purchases.
type PurchaseStore interface {
	Create(ctx context.Context, p *purchase.Purchase) error
	// LockByIDs returns the purchases with the given ids, locked for update.
	LockByIDs(ctx context.Context, ids []string) ([]purchase.Purchase, error)
	UpdateStatus(ctx context.Context, id string, status purchase.Status, transactionID string) (*purchase.Purchase, error)
}

// CommissionStore records referral usages and commissions.
type CommissionStore interface {
	CreateUsage(ctx context.Context, u *referral.Usage) error
	Create(ctx context.Context, c *commission.Commission) error
	// CancelPendingForPurchase cancels the purchase's commissions that are
	// still pending and returns how many changed.
	CancelPendingForPurchase(ctx context.Context, purchaseID string) (int64, error)
}
