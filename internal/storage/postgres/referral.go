package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

const (
	codeColumns = `id, marketer_id, code, discount_percentage, commission_percentage,
		is_active, max_uses, current_uses, created_at`

	findCodeByCodeSQL = `SELECT ` + codeColumns + ` FROM referral_codes WHERE code = $1`

	getCodeByIDSQL = `SELECT ` + codeColumns + ` FROM referral_codes WHERE id = $1`

	listCodesSQL = `SELECT ` + codeColumns + ` FROM referral_codes
		WHERE ($1::bigint = 0 OR marketer_id = $1)
		  AND ($2::boolean IS NULL OR is_active = $2)
		ORDER BY created_at DESC, id DESC`

	insertCodeSQL = `INSERT INTO referral_codes
		(marketer_id, code, discount_percentage, commission_percentage, is_active, max_uses)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, current_uses, created_at`

	importCodeSQL = `INSERT INTO referral_codes
		(marketer_id, code, discount_percentage, commission_percentage, is_active, max_uses)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO NOTHING`

	updateCodeSQL = `UPDATE referral_codes
		SET is_active = $2, max_uses = $3, discount_percentage = $4, commission_percentage = $5
		WHERE id = $1`

	deleteCodeSQL = `DELETE FROM referral_codes WHERE id = $1`

	// consumeCodeUseSQL is the only writer of current_uses. The predicate
	// re-checks availability under the row lock the UPDATE takes.
	consumeCodeUseSQL = `UPDATE referral_codes SET current_uses = current_uses + 1
		WHERE id = $1 AND is_active AND (max_uses IS NULL OR current_uses < max_uses)`

	referralCodeKey = "referral_codes_code_key"
)

var (
	_ referral.Repository    = (*ReferralRepository)(nil)
	_ checkout.ReferralStore = (*ReferralRepository)(nil)
)

// ReferralRepository implements referral.Repository backed by PostgreSQL.
type ReferralRepository struct {
	db DBTX
}

// NewReferralRepository returns a ReferralRepository that uses the given connection.
func NewReferralRepository(db DBTX) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// FindByCode returns the code with exactly the given (normalised) text.
func (r *ReferralRepository) FindByCode(ctx context.Context, code string) (*referral.Code, error) {
	return r.getOne(ctx, findCodeByCodeSQL, code)
}

// GetByID returns the code with the given id.
func (r *ReferralRepository) GetByID(ctx context.Context, id int64) (*referral.Code, error) {
	return r.getOne(ctx, getCodeByIDSQL, id)
}

func (r *ReferralRepository) getOne(ctx context.Context, query string, arg any) (*referral.Code, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting referral code %v: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, referral.ErrCodeNotFound
		}
		return nil, fmt.Errorf("getting referral code %v: %w", arg, err)
	}
	return &c, nil
}

// List returns the codes matching f, newest first.
func (r *ReferralRepository) List(ctx context.Context, f referral.CodeFilter) ([]referral.Code, error) {
	rows, err := r.db.Query(ctx, listCodesSQL, f.MarketerID, f.Active)
	if err != nil {
		return nil, fmt.Errorf("listing referral codes of %d: %w", f.MarketerID, err)
	}
	return pgx.CollectRows(rows, scanCode)
}

// Create inserts c and fills its generated fields. It returns
// referral.ErrCodeTaken when the code text is already in use.
func (r *ReferralRepository) Create(ctx context.Context, c *referral.Code) error {
	err := r.db.QueryRow(ctx, insertCodeSQL,
		c.MarketerID, c.Code, c.DiscountPercentage, c.CommissionPercentage, c.IsActive, c.MaxUses,
	).Scan(&c.ID, &c.CurrentUses, &c.CreatedAt)
	if err != nil {
		if violates(err, uniqueViolation, referralCodeKey) {
			return referral.ErrCodeTaken
		}
		return fmt.Errorf("creating referral code %q: %w", c.Code, err)
	}
	return nil
}

// Import inserts codes in one batch, skipping codes whose text already
// exists, and returns how many were inserted.
func (r *ReferralRepository) Import(ctx context.Context, codes []referral.Code) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(importCodeSQL,
			c.MarketerID, c.Code, c.DiscountPercentage, c.CommissionPercentage, c.IsActive, c.MaxUses,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, c := range codes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("importing referral code %q: %w", c.Code, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Update persists the active flag, usage limit and percentages of c.
func (r *ReferralRepository) Update(ctx context.Context, c *referral.Code) error {
	tag, err := r.db.Exec(ctx, updateCodeSQL,
		c.ID, c.IsActive, c.MaxUses, c.DiscountPercentage, c.CommissionPercentage,
	)
	if err != nil {
		if violates(err, checkViolation, "") {
			return referral.ErrInvalidMaxUses
		}
		return fmt.Errorf("updating referral code %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return referral.ErrCodeNotFound
	}
	return nil
}

// Delete removes an unused code. Codes referenced by usages or purchases
// yield referral.ErrCodeInUse.
func (r *ReferralRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, deleteCodeSQL, id)
	if err != nil {
		if violates(err, foreignKeyViolation, "") {
			return referral.ErrCodeInUse
		}
		return fmt.Errorf("deleting referral code %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return referral.ErrCodeNotFound
	}
	return nil
}

// ConsumeUse atomically takes one use of an available code.
func (r *ReferralRepository) ConsumeUse(ctx context.Context, codeID int64) error {
	tag, err := r.db.Exec(ctx, consumeCodeUseSQL, codeID)
	if err != nil {
		return fmt.Errorf("consuming referral code %d: %w", codeID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	c, err := r.GetByID(ctx, codeID)
	if err != nil {
		return err
	}
	if err := c.Check(); err != nil {
		return err
	}
	// Available again by the time we looked; treat the lost race as exhausted.
	return referral.ErrCodeExhausted
}

func scanCode(row pgx.CollectableRow) (referral.Code, error) {
	var c referral.Code
	err := row.Scan(
		&c.ID, &c.MarketerID, &c.Code, &c.DiscountPercentage, &c.CommissionPercentage,
		&c.IsActive, &c.MaxUses, &c.CurrentUses, &c.CreatedAt,
	)
	return c, err
}
