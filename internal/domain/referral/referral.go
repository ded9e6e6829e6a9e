package referral

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reason explains why a referral code cannot be used.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonInvalidCode   Reason = "invalid_code"
	ReasonCodeInactive  Reason = "code_inactive"
	ReasonCodeExhausted Reason = "code_exhausted"
)

var (
	// ErrCodeNotFound is returned when no referral code matches the input.
	ErrCodeNotFound = errors.New("referral code not found")
	// ErrCodeInactive is returned when the code exists but was deactivated.
	ErrCodeInactive = errors.New("referral code is inactive")
	// ErrCodeExhausted is returned when the code has reached max_uses.
	ErrCodeExhausted = errors.New("referral code usage limit reached")
	// ErrCodeTaken is returned when creating a code whose text is already in use.
	ErrCodeTaken = errors.New("referral code already exists")
	// ErrCodeInUse is returned when deleting a code that already has usages.
	// Such codes can only be deactivated.
	ErrCodeInUse = errors.New("referral code has usages")
	// ErrInvalidPercentage is returned for percentages outside [0, 100].
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")
	// ErrInvalidMaxUses is returned when max_uses is not positive or is below
	// the uses already consumed.
	ErrInvalidMaxUses = errors.New("max_uses must be positive and not below current uses")
	// ErrInvalidCodeFormat is returned when a code has characters outside [A-Z0-9].
	ErrInvalidCodeFormat = errors.New("referral code must be 4-32 characters of A-Z and 0-9")
)

var hundred = decimal.NewFromInt(100)

// ReasonError maps an availability error to its Reason.
func ReasonError(err error) Reason {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return ReasonInvalidCode
	case errors.Is(err, ErrCodeInactive):
		return ReasonCodeInactive
	case errors.Is(err, ErrCodeExhausted):
		return ReasonCodeExhausted
	default:
		return ReasonNone
	}
}

// Code is a marketer-owned referral code.
type Code struct {
	ID                   int64
	MarketerID           int64
	Code                 string
	DiscountPercentage   decimal.Decimal
	CommissionPercentage decimal.Decimal
	IsActive             bool
	// MaxUses is nil for unlimited codes.
	MaxUses     *int
	CurrentUses int
	CreatedAt   time.Time
}

// Check returns nil when the code may be applied, ErrCodeInactive or
// ErrCodeExhausted otherwise.
func (c *Code) Check() error {
	if !c.IsActive {
		return ErrCodeInactive
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return ErrCodeExhausted
	}
	return nil
}

// IsAvailable reports whether the code is active and has uses left.
func (c *Code) IsAvailable() bool { return c.Check() == nil }

// Discount returns subtotal × discount% / 100 rounded to two places, never
// more than the subtotal.
func (c *Code) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	d := subtotal.Mul(c.DiscountPercentage).Div(hundred).Round(2)
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

// Commission returns amount × commission% / 100 rounded to two places.
func (c *Code) Commission(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(c.CommissionPercentage).Div(hundred).Round(2)
}

// Usage records one application of a code to one purchase.
type Usage struct {
	ID               int64
	CodeID           int64
	CustomerID       int64
	PurchaseID       string
	DiscountAmount   decimal.Decimal
	CommissionAmount decimal.Decimal
	CreatedAt        time.Time
}

// Normalize trims surrounding whitespace and upper-cases a code so lookups
// are exact matches on the stored form.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidatePercentage returns ErrInvalidPercentage unless 0 <= p <= 100.
func ValidatePercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return ErrInvalidPercentage
	}
	return nil
}

// CodeFilter narrows a code listing. Zero values match everything.
type CodeFilter struct {
	MarketerID int64
	Active     *bool
}

// Repository provides lookup and mutation of referral codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
	GetByID(ctx context.Context, id int64) (*Code, error)
	// List returns codes matching f, newest first.
	List(ctx context.Context, f CodeFilter) ([]Code, error)
	Create(ctx context.Context, c *Code) error
	Update(ctx context.Context, c *Code) error
	Delete(ctx context.Context, id int64) error
}
