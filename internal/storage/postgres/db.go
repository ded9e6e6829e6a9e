package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// runs the same queries inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)

	_ checkout.Store = (*Store)(nil)
	_ checkout.Tx    = txScope{}
)

// Store runs checkout units of work in a single READ COMMITTED transaction.
// Row locks taken inside (cart, purchases) serialise concurrent checkouts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, txScope{db: tx})
	})
}

type txScope struct {
	db DBTX
}

func (t txScope) Carts() checkout.CartStore             { return &CartRepository{db: t.db} }
func (t txScope) Referrals() checkout.ReferralStore     { return &ReferralRepository{db: t.db} }
func (t txScope) Purchases() checkout.PurchaseStore     { return &PurchaseRepository{db: t.db} }
func (t txScope) Commissions() checkout.CommissionStore { return &CommissionRepository{db: t.db} }
func (t txScope) Enrollments() enrollment.Repository    { return &EnrollmentRepository{db: t.db} }

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// violates reports whether err is a Postgres error with the given SQLSTATE,
// and, when constraint is non-empty, the given constraint name.
func violates(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// refArgs splits an item reference into nullable course and section ids.
func refArgs(ref catalog.ItemRef) (courseID, sectionID *int64) {
	if ref.SectionID > 0 {
		id := ref.SectionID
		return nil, &id
	}
	id := ref.CourseID
	return &id, nil
}

func refFrom(courseID, sectionID *int64) catalog.ItemRef {
	if sectionID != nil {
		return catalog.SectionRef(*sectionID)
	}
	if courseID != nil {
		return catalog.CourseRef(*courseID)
	}
	return catalog.ItemRef{}
}

// itemTitleSQL renders the display title of a course or section row joined
// as c (course), s (section) and sc (section's course).
const itemTitleSQL = `COALESCE(c.title, sc.title || ': ' || s.title, '')`

// itemJoinsSQL joins the catalog rows for a table aliased x with nullable
// course_id and section_id columns.
const itemJoinsSQL = `
	LEFT JOIN courses c ON c.id = x.course_id
	LEFT JOIN sections s ON s.id = x.section_id
	LEFT JOIN courses sc ON sc.id = s.course_id`
