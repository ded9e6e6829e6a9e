package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
)

// purchaseListLimit caps unpaginated listings.
const purchaseListLimit = 1000

const (
	purchaseSelectSQL = `SELECT x.id::text, x.user_id, x.course_id, x.section_id, ` + itemTitleSQL + `,
			x.original_amount, x.discount_amount, x.amount, x.payment_status,
			x.referral_code_id, COALESCE(rc.code, ''), COALESCE(x.transaction_id, ''),
			x.created_at, x.updated_at
		FROM purchases x` + itemJoinsSQL + `
		LEFT JOIN referral_codes rc ON rc.id = x.referral_code_id`

	getPurchaseSQL = purchaseSelectSQL + ` WHERE x.id = $1::text::uuid`

	listPurchasesSQL = purchaseSelectSQL + `
		WHERE ($1::bigint = 0 OR x.user_id = $1)
			AND ($2::text = '' OR x.payment_status = $2)
			AND ($3::timestamptz IS NULL OR x.created_at >= $3)
			AND ($4::timestamptz IS NULL OR x.created_at < $4)
		ORDER BY x.created_at DESC, x.id
		LIMIT $5`

	lockPurchasesSQL = purchaseSelectSQL + `
		WHERE x.id = ANY($1::text[]::uuid[])
		ORDER BY x.id
		FOR UPDATE OF x`

	insertPurchaseSQL = `INSERT INTO purchases
		(id, user_id, course_id, section_id, original_amount, discount_amount, amount,
		 payment_status, referral_code_id, transaction_id, created_at, updated_at)
		VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $11)`

	updatePurchaseStatusSQL = `UPDATE purchases
		SET payment_status = $2, transaction_id = NULLIF($3, ''), updated_at = now()
		WHERE id = $1::text::uuid`
)

var (
	_ purchase.Repository    = (*PurchaseRepository)(nil)
	_ checkout.PurchaseStore = (*PurchaseRepository)(nil)
)

// PurchaseRepository implements purchase.Repository backed by PostgreSQL.
type PurchaseRepository struct {
	db DBTX
}

// NewPurchaseRepository returns a PurchaseRepository that uses the given connection.
func NewPurchaseRepository(db DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Get returns the purchase with the given id.
func (r *PurchaseRepository) Get(ctx context.Context, id string) (*purchase.Purchase, error) {
	if uuid.Validate(id) != nil {
		return nil, purchase.ErrNotFound
	}
	rows, err := r.db.Query(ctx, getPurchaseSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting purchase %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPurchase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, purchase.ErrNotFound
		}
		return nil, fmt.Errorf("getting purchase %q: %w", id, err)
	}
	return &p, nil
}

// List returns purchases matching f, newest first. f.To is exclusive.
func (r *PurchaseRepository) List(ctx context.Context, f purchase.Filter) ([]purchase.Purchase, error) {
	rows, err := r.db.Query(ctx, listPurchasesSQL,
		f.UserID, string(f.Status), nullTime(f.From), nullTime(f.To), purchaseListLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	return pgx.CollectRows(rows, scanPurchase)
}

// Create inserts p.
func (r *PurchaseRepository) Create(ctx context.Context, p *purchase.Purchase) error {
	courseID, sectionID := refArgs(p.Ref)
	_, err := r.db.Exec(ctx, insertPurchaseSQL,
		p.ID, p.UserID, courseID, sectionID,
		p.OriginalAmount, p.DiscountAmount, p.Amount,
		string(p.Status), p.ReferralCodeID, p.TransactionID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating purchase %q: %w", p.ID, err)
	}
	return nil
}

// LockByIDs returns the existing purchases among ids, locked for update in
// id order so concurrent callers cannot deadlock.
func (r *PurchaseRepository) LockByIDs(ctx context.Context, ids []string) ([]purchase.Purchase, error) {
	// A malformed id would abort the surrounding transaction, so it is
	// dropped here and reported as missing by the caller.
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, lockPurchasesSQL, valid)
	if err != nil {
		return nil, fmt.Errorf("locking purchases: %w", err)
	}
	return pgx.CollectRows(rows, scanPurchase)
}

// UpdateStatus sets the payment status and transaction id of a purchase.
func (r *PurchaseRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status purchase.Status,
	transactionID string,
) (*purchase.Purchase, error) {
	tag, err := r.db.Exec(ctx, updatePurchaseStatusSQL, id, string(status), transactionID)
	if err != nil {
		return nil, fmt.Errorf("updating purchase %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, purchase.ErrNotFound
	}
	return r.Get(ctx, id)
}

func scanPurchase(row pgx.CollectableRow) (purchase.Purchase, error) {
	var (
		p                   purchase.Purchase
		courseID, sectionID *int64
		status              string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &courseID, &sectionID, &p.Title,
		&p.OriginalAmount, &p.DiscountAmount, &p.Amount, &status,
		&p.ReferralCodeID, &p.ReferralCode, &p.TransactionID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return purchase.Purchase{}, err
	}
	p.Ref = refFrom(courseID, sectionID)
	p.Status = purchase.Status(status)
	return p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
