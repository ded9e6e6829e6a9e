package commission

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the payout state of a commission.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound is returned when a commission does not exist.
	ErrNotFound = errors.New("commission not found")
	// ErrInvalidTransition is returned when the commission is not pending.
	ErrInvalidTransition = errors.New("commission is not pending")
	// ErrInvalidStatus is returned when parsing an unknown status.
	ErrInvalidStatus = errors.New("invalid commission status")
	// ErrInvalidRange is returned when a filter's from is after its to.
	ErrInvalidRange = errors.New("from must not be after to")
)

// ParseStatus parses s into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusCancelled:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// Commission is the amount owed to a marketer for one referral usage.
type Commission struct {
	ID              int64
	MarketerID      int64
	ReferralUsageID int64
	ReferralCode    string
	PurchaseID      string
	CustomerID      int64
	Amount          decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	PaidAt          *time.Time
}

// Totals aggregates commission amounts. Cancelled commissions count toward
// none of the sums.
type Totals struct {
	Total   decimal.Decimal
	Pending decimal.Decimal
	Paid    decimal.Decimal
}

// Summarize computes Totals over cs.
func Summarize(cs []Commission) Totals {
	t := Totals{Total: decimal.Zero, Pending: decimal.Zero, Paid: decimal.Zero}
	for _, c := range cs {
		switch c.Status {
		case StatusPending:
			t.Pending = t.Pending.Add(c.Amount)
		case StatusPaid:
			t.Paid = t.Paid.Add(c.Amount)
		default:
			continue
		}
		t.Total = t.Total.Add(c.Amount)
	}
	return t
}

// Filter narrows a commission listing. Zero values match everything. From
// is inclusive and To exclusive, both on the creation time.
type Filter struct {
	MarketerID int64
	Status     Status
	From       time.Time
	To         time.Time
}

// Validate checks the date range.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return ErrInvalidRange
	}
	return nil
}

// Repository defines persistence operations for commissions.
type Repository interface {
	Get(ctx context.Context, id int64) (*Commission, error)
	List(ctx context.Context, f Filter) ([]Commission, error)
	// Transition moves a commission from one status to another only if it is
	// still in from, stamping paidAt when non-nil. It returns
	// ErrInvalidTransition when the row is not in from.
	Transition(ctx context.Context, id int64, from, to Status, paidAt *time.Time) (*Commission, error)
}
