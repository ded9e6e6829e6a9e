package postgres

import (
	"context"
	"fmt"

	"github.com/xenking/academy-ledger/internal/domain/referral"
)

// DefaultSettingsKey names the settings row used by the service.
const DefaultSettingsKey = "default"

const (
	ensureSettingsSQL = `INSERT INTO referral_settings (key, discount_percentage, commission_percentage)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING`

	getSettingsSQL = `SELECT discount_percentage, commission_percentage, updated_at
		FROM referral_settings WHERE key = $1`

	putSettingsSQL = `INSERT INTO referral_settings (key, discount_percentage, commission_percentage)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			discount_percentage = EXCLUDED.discount_percentage,
			commission_percentage = EXCLUDED.commission_percentage,
			updated_at = now()
		RETURNING discount_percentage, commission_percentage, updated_at`
)

var _ referral.SettingsStore = (*SettingsRepository)(nil)

// SettingsRepository stores referral defaults in a keyed row.
type SettingsRepository struct {
	db  DBTX
	key string
}

// NewSettingsRepository returns a SettingsRepository for DefaultSettingsKey.
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db, key: DefaultSettingsKey}
}

// EnsureSettings inserts defaults unless the row already exists.
func (r *SettingsRepository) EnsureSettings(ctx context.Context, defaults referral.Settings) error {
	_, err := r.db.Exec(ctx, ensureSettingsSQL, r.key, defaults.DiscountPercentage, defaults.CommissionPercentage)
	if err != nil {
		return fmt.Errorf("ensuring referral settings: %w", err)
	}
	return nil
}

// GetSettings returns the stored defaults.
func (r *SettingsRepository) GetSettings(ctx context.Context) (*referral.Settings, error) {
	var s referral.Settings
	err := r.db.QueryRow(ctx, getSettingsSQL, r.key).Scan(&s.DiscountPercentage, &s.CommissionPercentage, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting referral settings: %w", err)
	}
	return &s, nil
}

// PutSettings replaces the stored defaults.
func (r *SettingsRepository) PutSettings(ctx context.Context, in referral.Settings) (*referral.Settings, error) {
	var s referral.Settings
	err := r.db.QueryRow(ctx, putSettingsSQL, r.key, in.DiscountPercentage, in.CommissionPercentage).
		Scan(&s.DiscountPercentage, &s.CommissionPercentage, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("putting referral settings: %w", err)
	}
	return &s, nil
}
