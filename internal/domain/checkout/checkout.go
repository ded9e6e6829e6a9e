package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/academy-ledger/internal/domain/purchase"
)

// Mode selects how purchases get paid.
type Mode string

const (
	// ModeInstant completes purchases at checkout and grants enrollments in
	// the same transaction.
	ModeInstant Mode = "instant"
	// ModeGateway leaves purchases pending until the payment gateway confirms.
	ModeGateway Mode = "gateway"
)

// ParseMode parses s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeInstant, ModeGateway:
		return m, nil
	default:
		return "", errors.Errorf("unknown payment mode %q", s)
	}
}

func (m Mode) initialStatus() purchase.Status {
	if m == ModeGateway {
		return purchase.StatusPending
	}
	return purchase.StatusCompleted
}

var (
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidConfirmation is returned for a gateway confirmation without a
	// transaction id or purchase ids.
	ErrInvalidConfirmation = errors.New("transaction_id and purchase_ids are required")
)

// FailedError wraps an unexpected failure while recording a checkout or a
// payment. Nothing was persisted; the caller may retry.
type FailedError struct {
	Err error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("payment failed: %v", e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// expected reports whether err is a business outcome rather than a failure.
func expected(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInvalidConfirmation) ||
		errors.Is(err, purchase.ErrNotFound) ||
		errors.Is(err, purchase.ErrInvalidTransition)
}
