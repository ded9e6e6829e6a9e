package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
)

const (
	enrollmentSelectSQL = `SELECT x.id, x.user_id, x.course_id, x.section_id, ` + itemTitleSQL + `,
			x.purchase_id::text, x.enrolled_at
		FROM enrollments x` + itemJoinsSQL

	insertEnrollmentSQL = `INSERT INTO enrollments (user_id, course_id, section_id, purchase_id)
		VALUES ($1, $2, $3, $4::text::uuid)
		ON CONFLICT DO NOTHING
		RETURNING id`

	getEnrollmentSQL = enrollmentSelectSQL + `
		WHERE x.user_id = $1
			AND x.course_id IS NOT DISTINCT FROM $2
			AND x.section_id IS NOT DISTINCT FROM $3`

	getEnrollmentByIDSQL = enrollmentSelectSQL + ` WHERE x.id = $1`

	// A course enrollment covers each of its sections.
	enrollmentExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM enrollments e
		WHERE e.user_id = $1 AND (
			($2::bigint IS NOT NULL AND e.course_id = $2)
			OR ($3::bigint IS NOT NULL AND (
				e.section_id = $3
				OR e.course_id = (SELECT course_id FROM sections WHERE id = $3)
			))
		)
	)`

	listEnrollmentsSQL = enrollmentSelectSQL + `
		WHERE x.user_id = $1
		ORDER BY x.enrolled_at DESC, x.id DESC`
)

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// EnrollmentRepository implements enrollment.Repository backed by PostgreSQL.
type EnrollmentRepository struct {
	db DBTX
}

// NewEnrollmentRepository returns an EnrollmentRepository that uses the given connection.
func NewEnrollmentRepository(db DBTX) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// GetOrCreate inserts the enrollment unless one already exists for
// (userID, ref), in which case the existing row is returned.
func (r *EnrollmentRepository) GetOrCreate(
	ctx context.Context,
	userID int64,
	ref catalog.ItemRef,
	purchaseID string,
) (*enrollment.Enrollment, bool, error) {
	courseID, sectionID := refArgs(ref)

	var id int64
	err := r.db.QueryRow(ctx, insertEnrollmentSQL, userID, courseID, sectionID, purchaseID).Scan(&id)
	switch {
	case err == nil:
		e, err := r.one(ctx, getEnrollmentByIDSQL, id)
		return e, true, err
	case errors.Is(err, pgx.ErrNoRows):
		e, err := r.one(ctx, getEnrollmentSQL, userID, courseID, sectionID)
		return e, false, err
	default:
		return nil, false, fmt.Errorf("creating enrollment of user %d in %s: %w", userID, ref, err)
	}
}

// Exists reports whether the user can access ref.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID int64, ref catalog.ItemRef) (bool, error) {
	courseID, sectionID := refArgs(ref)
	var ok bool
	if err := r.db.QueryRow(ctx, enrollmentExistsSQL, userID, courseID, sectionID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking enrollment of user %d in %s: %w", userID, ref, err)
	}
	return ok, nil
}

// ListByUser returns the user's enrollments, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID int64) ([]enrollment.Enrollment, error) {
	rows, err := r.db.Query(ctx, listEnrollmentsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanEnrollment)
}

func (r *EnrollmentRepository) one(ctx context.Context, query string, args ...any) (*enrollment.Enrollment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting enrollment: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEnrollment)
	if err != nil {
		return nil, fmt.Errorf("getting enrollment: %w", err)
	}
	return &e, nil
}

func scanEnrollment(row pgx.CollectableRow) (enrollment.Enrollment, error) {
	var (
		e                   enrollment.Enrollment
		courseID, sectionID *int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &courseID, &sectionID, &e.Title, &e.PurchaseID, &e.EnrolledAt); err != nil {
		return enrollment.Enrollment{}, err
	}
	e.Ref = refFrom(courseID, sectionID)
	return e, nil
}
