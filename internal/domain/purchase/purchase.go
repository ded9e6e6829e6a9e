package purchase

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
)

// Status is the payment state of a purchase.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var (
	// ErrNotFound is returned when a purchase does not exist.
	ErrNotFound = errors.New("purchase not found")
	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid purchase status transition")
	// ErrInvalidStatus is returned when parsing an unknown status.
	ErrInvalidStatus = errors.New("invalid purchase status")
	// ErrInvalidRange is returned when a filter's from is after its to.
	ErrInvalidRange = errors.New("from must not be after to")
)

// ParseStatus parses s into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// CanTransition reports whether a purchase may move from s to next.
// pending → completed | failed, completed → refunded.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusRefunded
	default:
		return false
	}
}

// Purchase records the sale of one course or section to one user.
type Purchase struct {
	ID             string
	UserID         int64
	Ref            catalog.ItemRef
	Title          string
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	Amount         decimal.Decimal
	Status         Status
	ReferralCodeID *int64
	ReferralCode   string
	TransactionID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Filter narrows a purchase listing. Zero values match everything.
type Filter struct {
	UserID int64
	Status Status
	From   time.Time
	To     time.Time
}

// Validate checks the date range.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return ErrInvalidRange
	}
	return nil
}

// Repository defines read operations for purchases.
type Repository interface {
	Get(ctx context.Context, id string) (*Purchase, error)
	List(ctx context.Context, f Filter) ([]Purchase, error)
}
