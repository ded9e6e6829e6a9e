package referral

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Settings holds the default percentages given to newly created codes.
type Settings struct {
	DiscountPercentage   decimal.Decimal
	CommissionPercentage decimal.Decimal
	UpdatedAt            time.Time
}

// Validate checks both percentages are within [0, 100].
func (s Settings) Validate() error {
	if err := ValidatePercentage(s.DiscountPercentage); err != nil {
		return err
	}
	return ValidatePercentage(s.CommissionPercentage)
}

// SettingsStore persists the keyed default settings row.
type SettingsStore interface {
	// EnsureSettings inserts defaults unless a row already exists.
	EnsureSettings(ctx context.Context, defaults Settings) error
	GetSettings(ctx context.Context) (*Settings, error)
	PutSettings(ctx context.Context, s Settings) (*Settings, error)
}
