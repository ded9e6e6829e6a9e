package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

var (
	// ErrAlreadyInCart is returned when the course or section is already in the cart.
	ErrAlreadyInCart = errors.New("item already in cart")
	// ErrAlreadyOwned is returned when the user is already enrolled in the item.
	ErrAlreadyOwned = errors.New("item already owned")
	// ErrItemNotFound is returned when removing an item that is not in the
	// caller's cart.
	ErrItemNotFound = errors.New("cart item not found")
)

// Item is a line in the cart. Price is the item's current effective price.
type Item struct {
	ID      int64
	Ref     catalog.ItemRef
	Title   string
	Price   decimal.Decimal
	AddedAt time.Time
}

// Cart is a user's single cart.
type Cart struct {
	ID     int64
	UserID int64
	Items  []Item
	// Referral is the attached code, loaded whether or not it is still available.
	Referral  *referral.Code
	UpdatedAt time.Time
}

// Empty reports whether the cart has no items.
func (c *Cart) Empty() bool { return len(c.Items) == 0 }

// Repository defines persistence operations for carts.
type Repository interface {
	// GetOrCreate returns the user's cart with items and attached code,
	// creating an empty cart on first access.
	GetOrCreate(ctx context.Context, userID int64) (*Cart, error)
	AddItem(ctx context.Context, cartID int64, ref catalog.ItemRef) error
	RemoveItem(ctx context.Context, cartID, itemID int64) error
	// SetReferral attaches codeID, or detaches the code when codeID is nil.
	SetReferral(ctx context.Context, cartID int64, codeID *int64) error
}
