package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

// Enrollments reports existing access grants.
type Enrollments interface {
	Exists(ctx context.Context, userID int64, ref catalog.ItemRef) (bool, error)
}

// View is a cart together with its current pricing.
type View struct {
	Cart    *Cart
	Pricing Pricing
}

// Service encapsulates cart business logic.
type Service struct {
	carts       Repository
	catalog     catalog.Repository
	referrals   *referral.Validator
	enrollments Enrollments
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(
	carts Repository,
	items catalog.Repository,
	referrals *referral.Validator,
	enrollments Enrollments,
) *Service {
	return &Service{
		carts:       carts,
		catalog:     items,
		referrals:   referrals,
		enrollments: enrollments,
	}
}

// Get returns the user's cart, creating it on first access.
func (s *Service) Get(ctx context.Context, userID int64) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return &View{Cart: c, Pricing: Price(c.Items, c.Referral)}, nil
}

// AddItem puts a published course or section into the cart.
func (s *Service) AddItem(ctx context.Context, userID int64, ref catalog.ItemRef) (*View, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.catalog.FindItem(ctx, ref); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &catalog.ItemNotFoundError{Ref: ref}
		}
		return nil, errors.Wrap(err, "find item")
	}

	owned, err := s.enrollments.Exists(ctx, userID, ref)
	if err != nil {
		return nil, errors.Wrap(err, "check enrollment")
	}
	if owned {
		return nil, ErrAlreadyOwned
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if err := s.carts.AddItem(ctx, c.ID, ref); err != nil {
		if errors.Is(err, ErrAlreadyInCart) {
			return nil, ErrAlreadyInCart
		}
		return nil, errors.Wrap(err, "add cart item")
	}
	return s.Get(ctx, userID)
}

// RemoveItem deletes a line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if err := s.carts.RemoveItem(ctx, c.ID, itemID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, errors.Wrap(err, "remove cart item")
	}
	return s.Get(ctx, userID)
}

// ApplyReferral attaches an available code to the cart, replacing any
// previously attached code.
func (s *Service) ApplyReferral(ctx context.Context, userID int64, code string) (*View, error) {
	rc, err := s.referrals.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if err := s.carts.SetReferral(ctx, c.ID, &rc.ID); err != nil {
		return nil, errors.Wrap(err, "attach referral code")
	}
	return s.Get(ctx, userID)
}

// RemoveReferral detaches the code from the cart. It is a no-op when no code
// is attached.
func (s *Service) RemoveReferral(ctx context.Context, userID int64) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.Referral != nil {
		if err := s.carts.SetReferral(ctx, c.ID, nil); err != nil {
			return nil, errors.Wrap(err, "detach referral code")
		}
	}
	return s.Get(ctx, userID)
}
