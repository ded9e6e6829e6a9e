package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/marketer"
)

const (
	requestColumns = `id, user_id, full_name, phone_number, email, experience_level,
		current_job, interest_area, motivation, marketing_experience,
		instagram_handle, telegram_handle, status, admin_notes,
		reviewed_by, reviewed_at, created_at, updated_at`

	insertRequestSQL = `INSERT INTO marketer_requests
		(user_id, full_name, phone_number, email, experience_level, current_job,
		 interest_area, motivation, marketing_experience, instagram_handle, telegram_handle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, status, created_at, updated_at`

	getRequestSQL = `SELECT ` + requestColumns + ` FROM marketer_requests WHERE id = $1`

	getRequestByUserSQL = `SELECT ` + requestColumns + ` FROM marketer_requests WHERE user_id = $1`

	listRequestsSQL = `SELECT ` + requestColumns + ` FROM marketer_requests
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC`

	// reviewRequestSQL records the decision and, on approval, promotes the
	// applicant in the same statement. Admins and existing marketers keep
	// their role.
	reviewRequestSQL = `WITH reviewed AS (
			UPDATE marketer_requests
			SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4,
				admin_notes = CASE WHEN $5::text = '' THEN admin_notes ELSE $5 END
			WHERE id = $1 AND status = 'pending'
			RETURNING ` + requestColumns + `
		), promoted AS (
			UPDATE users SET role = 'marketer'
			FROM reviewed
			WHERE users.id = reviewed.user_id
				AND reviewed.status = 'approved'
				AND users.role = 'customer'
		)
		SELECT ` + requestColumns + ` FROM reviewed`

	listMarketersSQL = `SELECT u.id, u.username, u.created_at,
			COUNT(rc.id), COUNT(rc.id) FILTER (WHERE rc.is_active),
			COALESCE((SELECT SUM(mc.amount) FROM marketer_commissions mc
				WHERE mc.marketer_id = u.id AND mc.status <> 'cancelled'), 0),
			COALESCE((SELECT SUM(mc.amount) FROM marketer_commissions mc
				WHERE mc.marketer_id = u.id AND mc.status = 'pending'), 0)
		FROM users u
		LEFT JOIN referral_codes rc ON rc.marketer_id = u.id
		WHERE u.role = 'marketer'
			AND ($1::text = '' OR u.username ILIKE '%' || $1 || '%')
		GROUP BY u.id
		ORDER BY u.created_at DESC, u.id`

	marketerRequestUserKey = "marketer_requests_user_id_key"
)

var _ marketer.Repository = (*MarketerRepository)(nil)

// likeEscaper makes a search term match literally inside ILIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// MarketerRepository implements marketer.Repository backed by PostgreSQL.
type MarketerRepository struct {
	db DBTX
}

// NewMarketerRepository returns a MarketerRepository that uses the given connection.
func NewMarketerRepository(db DBTX) *MarketerRepository {
	return &MarketerRepository{db: db}
}

// Create inserts req and fills its generated fields. A second request from
// the same user yields marketer.ErrRequestExists.
func (r *MarketerRepository) Create(ctx context.Context, req *marketer.Request) error {
	a := req.Application
	var status string
	err := r.db.QueryRow(ctx, insertRequestSQL,
		req.UserID, a.FullName, a.PhoneNumber, a.Email, string(a.Experience), a.CurrentJob,
		string(a.Interest), a.Motivation, a.MarketingExperience, a.InstagramHandle, a.TelegramHandle,
	).Scan(&req.ID, &status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if violates(err, uniqueViolation, marketerRequestUserKey) {
			return marketer.ErrRequestExists
		}
		return fmt.Errorf("creating marketer request of %d: %w", req.UserID, err)
	}
	req.Status = marketer.Status(status)
	return nil
}

// GetByUser returns the request filed by userID.
func (r *MarketerRepository) GetByUser(ctx context.Context, userID int64) (*marketer.Request, error) {
	return r.getOne(ctx, getRequestByUserSQL, userID)
}

func (r *MarketerRepository) getOne(ctx context.Context, query string, arg int64) (*marketer.Request, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting marketer request %d: %w", arg, err)
	}
	req, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, marketer.ErrRequestNotFound
		}
		return nil, fmt.Errorf("getting marketer request %d: %w", arg, err)
	}
	return &req, nil
}

// List returns requests in status, or every request when status is empty,
// newest first.
func (r *MarketerRepository) List(ctx context.Context, status marketer.Status) ([]marketer.Request, error) {
	rows, err := r.db.Query(ctx, listRequestsSQL, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing marketer requests: %w", err)
	}
	return pgx.CollectRows(rows, scanRequest)
}

// Review records rv on a pending request. Approval grants the marketer role
// to a customer applicant.
func (r *MarketerRepository) Review(ctx context.Context, id int64, rv marketer.Review) (*marketer.Request, error) {
	rows, err := r.db.Query(ctx, reviewRequestSQL, id, string(rv.Status), rv.ReviewerID, rv.At, rv.Notes)
	if err != nil {
		return nil, fmt.Errorf("reviewing marketer request %d: %w", id, err)
	}
	req, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reviewing marketer request %d: %w", id, err)
	}

	// Nothing pending matched: tell a missing request from a decided one.
	if _, err := r.getOne(ctx, getRequestSQL, id); err != nil {
		return nil, err
	}
	return nil, marketer.ErrAlreadyReviewed
}

// ListMarketers returns marketers whose username contains search.
func (r *MarketerRepository) ListMarketers(ctx context.Context, search string) ([]marketer.Summary, error) {
	rows, err := r.db.Query(ctx, listMarketersSQL, likeEscaper.Replace(search))
	if err != nil {
		return nil, fmt.Errorf("listing marketers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (marketer.Summary, error) {
		var s marketer.Summary
		err := row.Scan(&s.UserID, &s.Username, &s.JoinedAt,
			&s.CodesCount, &s.ActiveCodesCount, &s.TotalCommissions, &s.PendingCommissions)
		return s, err
	})
}

func scanRequest(row pgx.CollectableRow) (marketer.Request, error) {
	var (
		req                          marketer.Request
		experience, interest, status string
	)
	a := &req.Application
	err := row.Scan(
		&req.ID, &req.UserID, &a.FullName, &a.PhoneNumber, &a.Email, &experience,
		&a.CurrentJob, &interest, &a.Motivation, &a.MarketingExperience,
		&a.InstagramHandle, &a.TelegramHandle, &status, &req.AdminNotes,
		&req.ReviewedBy, &req.ReviewedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return marketer.Request{}, err
	}
	a.Experience = marketer.Experience(experience)
	a.Interest = marketer.Interest(interest)
	req.Status = marketer.Status(status)
	return req, nil
}
