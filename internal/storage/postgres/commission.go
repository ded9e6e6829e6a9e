package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

const (
	commissionSelectSQL = `SELECT mc.id, mc.marketer_id, mc.referral_usage_id, rc.code,
			ru.purchase_id::text, ru.customer_id, mc.amount, mc.status, mc.created_at, mc.paid_at
		FROM marketer_commissions mc
		JOIN referral_usages ru ON ru.id = mc.referral_usage_id
		JOIN referral_codes rc ON rc.id = ru.referral_code_id`

	getCommissionSQL = commissionSelectSQL + ` WHERE mc.id = $1`

	listCommissionsSQL = commissionSelectSQL + `
		WHERE ($1::bigint = 0 OR mc.marketer_id = $1)
			AND ($2::text = '' OR mc.status = $2)
			AND ($3::timestamptz IS NULL OR mc.created_at >= $3)
			AND ($4::timestamptz IS NULL OR mc.created_at < $4)
		ORDER BY mc.created_at DESC, mc.id DESC`

	transitionCommissionSQL = `UPDATE marketer_commissions
		SET status = $3, paid_at = COALESCE($4, paid_at)
		WHERE id = $1 AND status = $2`

	insertUsageSQL = `INSERT INTO referral_usages
		(referral_code_id, customer_id, purchase_id, discount_amount, commission_amount, created_at)
		VALUES ($1, $2, $3::text::uuid, $4, $5, $6)
		RETURNING id`

	insertCommissionSQL = `INSERT INTO marketer_commissions
		(marketer_id, referral_usage_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	cancelPendingForPurchaseSQL = `UPDATE marketer_commissions mc SET status = 'cancelled'
		FROM referral_usages ru
		WHERE ru.id = mc.referral_usage_id
			AND ru.purchase_id = $1::text::uuid
			AND mc.status = 'pending'`
)

var (
	_ commission.Repository    = (*CommissionRepository)(nil)
	_ checkout.CommissionStore = (*CommissionRepository)(nil)
)

// CommissionRepository implements commission.Repository backed by PostgreSQL.
type CommissionRepository struct {
	db DBTX
}

// NewCommissionRepository returns a CommissionRepository that uses the given connection.
func NewCommissionRepository(db DBTX) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// Get returns the commission with the given id.
func (r *CommissionRepository) Get(ctx context.Context, id int64) (*commission.Commission, error) {
	rows, err := r.db.Query(ctx, getCommissionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting commission %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCommission)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, commission.ErrNotFound
		}
		return nil, fmt.Errorf("getting commission %d: %w", id, err)
	}
	return &c, nil
}

// List returns commissions matching f, newest first. f.To is exclusive.
func (r *CommissionRepository) List(ctx context.Context, f commission.Filter) ([]commission.Commission, error) {
	rows, err := r.db.Query(ctx, listCommissionsSQL,
		f.MarketerID, string(f.Status), nullTime(f.From), nullTime(f.To),
	)
	if err != nil {
		return nil, fmt.Errorf("listing commissions: %w", err)
	}
	return pgx.CollectRows(rows, scanCommission)
}

// Transition moves a commission from one status to another with a
// compare-and-set on the current status.
func (r *CommissionRepository) Transition(
	ctx context.Context,
	id int64,
	from, to commission.Status,
	paidAt *time.Time,
) (*commission.Commission, error) {
	tag, err := r.db.Exec(ctx, transitionCommissionSQL, id, string(from), string(to), paidAt)
	if err != nil {
		return nil, fmt.Errorf("transitioning commission %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, commission.ErrInvalidTransition
	}
	return r.Get(ctx, id)
}

// CreateUsage inserts u and sets its id.
func (r *CommissionRepository) CreateUsage(ctx context.Context, u *referral.Usage) error {
	err := r.db.QueryRow(ctx, insertUsageSQL,
		u.CodeID, u.CustomerID, u.PurchaseID, u.DiscountAmount, u.CommissionAmount, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("creating referral usage for purchase %q: %w", u.PurchaseID, err)
	}
	return nil
}

// Create inserts c and sets its id.
func (r *CommissionRepository) Create(ctx context.Context, c *commission.Commission) error {
	err := r.db.QueryRow(ctx, insertCommissionSQL,
		c.MarketerID, c.ReferralUsageID, c.Amount, string(c.Status), c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating commission for usage %d: %w", c.ReferralUsageID, err)
	}
	return nil
}

// CancelPendingForPurchase cancels the purchase's pending commissions.
func (r *CommissionRepository) CancelPendingForPurchase(ctx context.Context, purchaseID string) (int64, error) {
	tag, err := r.db.Exec(ctx, cancelPendingForPurchaseSQL, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("cancelling commissions of purchase %q: %w", purchaseID, err)
	}
	return tag.RowsAffected(), nil
}

func scanCommission(row pgx.CollectableRow) (commission.Commission, error) {
	var (
		c      commission.Commission
		status string
	)
	err := row.Scan(
		&c.ID, &c.MarketerID, &c.ReferralUsageID, &c.ReferralCode,
		&c.PurchaseID, &c.CustomerID, &c.Amount, &status, &c.CreatedAt, &c.PaidAt,
	)
	if err != nil {
		return commission.Commission{}, err
	}
	c.Status = commission.Status(status)
	return c, nil
}
