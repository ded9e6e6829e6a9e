package marketer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service runs the marketer registration flow.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a marketer Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Submit files userID's application. A user applies once.
func (s *Service) Submit(ctx context.Context, userID int64, app Application) (*Request, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}
	r := &Request{UserID: userID, Application: app, Status: StatusPending}
	if err := s.repo.Create(ctx, r); err != nil {
		if errors.Is(err, ErrRequestExists) {
			return nil, ErrRequestExists
		}
		return nil, errors.Wrap(err, "create marketer request")
	}
	zctx.From(ctx).Info("Marketer request submitted",
		zap.Int64("user_id", userID),
		zap.Int64("request_id", r.ID),
	)
	return r, nil
}

// Mine returns userID's application.
func (s *Service) Mine(ctx context.Context, userID int64) (*Request, error) {
	r, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, errors.Wrap(err, "get marketer request")
	}
	return r, nil
}

// List returns requests in status, or all of them when status is empty.
func (s *Service) List(ctx context.Context, status Status) ([]Request, error) {
	rs, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, errors.Wrap(err, "list marketer requests")
	}
	return rs, nil
}

// Approve accepts a pending request and promotes its user to marketer.
// The new role applies to tokens issued afterwards.
func (s *Service) Approve(ctx context.Context, adminID, id int64) (*Request, error) {
	return s.review(ctx, id, Review{Status: StatusApproved, ReviewerID: adminID})
}

// Reject declines a pending request, keeping notes for the applicant.
func (s *Service) Reject(ctx context.Context, adminID, id int64, notes string) (*Request, error) {
	return s.review(ctx, id, Review{Status: StatusRejected, ReviewerID: adminID, Notes: strings.TrimSpace(notes)})
}

func (s *Service) review(ctx context.Context, id int64, rv Review) (*Request, error) {
	rv.At = s.now().UTC()
	r, err := s.repo.Review(ctx, id, rv)
	switch {
	case errors.Is(err, ErrRequestNotFound):
		return nil, ErrRequestNotFound
	case errors.Is(err, ErrAlreadyReviewed):
		return nil, ErrAlreadyReviewed
	case err != nil:
		return nil, errors.Wrapf(err, "review marketer request %d", id)
	}
	zctx.From(ctx).Info("Marketer request reviewed",
		zap.Int64("request_id", id),
		zap.Int64("user_id", r.UserID),
		zap.String("status", string(r.Status)),
		zap.Int64("reviewer_id", rv.ReviewerID),
	)
	return r, nil
}

// Marketers lists marketers with their figures.
func (s *Service) Marketers(ctx context.Context, search string) ([]Summary, error) {
	ms, err := s.repo.ListMarketers(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, errors.Wrap(err, "list marketers")
	}
	return ms, nil
}
