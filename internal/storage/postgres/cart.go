package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

const (
	getOrCreateCartSQL = `WITH ins AS (
			INSERT INTO carts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING id, referral_code_id, updated_at
		)
		SELECT id, referral_code_id, updated_at FROM ins
		UNION ALL
		SELECT id, referral_code_id, updated_at FROM carts WHERE user_id = $1
		LIMIT 1`

	lockCartSQL = `SELECT id, referral_code_id, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`

	listCartItemsSQL = `SELECT x.id, x.course_id, x.section_id, x.added_at, ` + itemTitleSQL + `,
			COALESCE(c.discount_price, c.price, s.price, 0)
		FROM cart_items x` + itemJoinsSQL + `
		WHERE x.cart_id = $1
		ORDER BY x.added_at, x.id`

	insertCartItemSQL = `INSERT INTO cart_items (cart_id, course_id, section_id) VALUES ($1, $2, $3)`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`

	clearCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	setCartReferralSQL = `UPDATE carts SET referral_code_id = $2, updated_at = now() WHERE id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var (
	_ cart.Repository    = (*CartRepository)(nil)
	_ checkout.CartStore = (*CartRepository)(nil)
)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db DBTX
}

// NewCartRepository returns a CartRepository that uses the given connection.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// GetOrCreate returns the user's cart, creating it on first access.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID int64) (*cart.Cart, error) {
	c, err := r.loadHeader(ctx, getOrCreateCartSQL, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent first access inserted the row after our snapshot.
		c, err = r.loadHeader(ctx, getOrCreateCartSQL, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting cart of user %d: %w", userID, err)
	}
	return c, r.loadContents(ctx, c)
}

// LockForCheckout locks the user's cart row for the rest of the transaction.
// It returns nil when the user has never had a cart.
func (r *CartRepository) LockForCheckout(ctx context.Context, userID int64) (*cart.Cart, error) {
	c, err := r.loadHeader(ctx, lockCartSQL, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("locking cart of user %d: %w", userID, err)
	}
	return c, r.loadContents(ctx, c)
}

func (r *CartRepository) loadHeader(ctx context.Context, query string, userID int64) (*cart.Cart, error) {
	var (
		c      = cart.Cart{UserID: userID}
		codeID *int64
	)
	if err := r.db.QueryRow(ctx, query, userID).Scan(&c.ID, &codeID, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if codeID != nil {
		c.Referral = &referral.Code{ID: *codeID}
	}
	return &c, nil
}

func (r *CartRepository) loadContents(ctx context.Context, c *cart.Cart) error {
	rows, err := r.db.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return fmt.Errorf("listing items of cart %d: %w", c.ID, err)
	}
	c.Items, err = pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return fmt.Errorf("listing items of cart %d: %w", c.ID, err)
	}

	if c.Referral != nil {
		code, err := (&ReferralRepository{db: r.db}).GetByID(ctx, c.Referral.ID)
		if err != nil {
			return fmt.Errorf("loading referral code of cart %d: %w", c.ID, err)
		}
		c.Referral = code
	}
	return nil
}

// AddItem inserts a line. It returns cart.ErrAlreadyInCart when the course
// or section is already in the cart.
func (r *CartRepository) AddItem(ctx context.Context, cartID int64, ref catalog.ItemRef) error {
	courseID, sectionID := refArgs(ref)
	if _, err := r.db.Exec(ctx, insertCartItemSQL, cartID, courseID, sectionID); err != nil {
		if violates(err, uniqueViolation, "") {
			return cart.ErrAlreadyInCart
		}
		return fmt.Errorf("adding %s to cart %d: %w", ref, cartID, err)
	}
	return r.touch(ctx, cartID)
}

// RemoveItem deletes a line that belongs to cartID.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID int64) error {
	tag, err := r.db.Exec(ctx, deleteCartItemSQL, itemID, cartID)
	if err != nil {
		return fmt.Errorf("removing item %d from cart %d: %w", itemID, cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return r.touch(ctx, cartID)
}

// SetReferral attaches or, with a nil codeID, detaches a referral code.
func (r *CartRepository) SetReferral(ctx context.Context, cartID int64, codeID *int64) error {
	if _, err := r.db.Exec(ctx, setCartReferralSQL, cartID, codeID); err != nil {
		return fmt.Errorf("setting referral code of cart %d: %w", cartID, err)
	}
	return nil
}

// Clear empties the cart and detaches its code.
func (r *CartRepository) Clear(ctx context.Context, cartID int64) error {
	if _, err := r.db.Exec(ctx, clearCartItemsSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %d: %w", cartID, err)
	}
	return r.SetReferral(ctx, cartID, nil)
}

func (r *CartRepository) touch(ctx context.Context, cartID int64) error {
	if _, err := r.db.Exec(ctx, touchCartSQL, cartID); err != nil {
		return fmt.Errorf("touching cart %d: %w", cartID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		it                  cart.Item
		courseID, sectionID *int64
		addedAt             time.Time
	)
	if err := row.Scan(&it.ID, &courseID, &sectionID, &addedAt, &it.Title, &it.Price); err != nil {
		return cart.Item{}, err
	}
	it.Ref = refFrom(courseID, sectionID)
	it.AddedAt = addedAt
	return it, nil
}
