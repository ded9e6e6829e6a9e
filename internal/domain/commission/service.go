package commission

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service manages the commission lifecycle. Transitions are always explicit.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a commission Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns commissions matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Commission, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	cs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list commissions")
	}
	return cs, nil
}

// ForMarketer returns a marketer's commissions with their totals.
func (s *Service) ForMarketer(ctx context.Context, marketerID int64) ([]Commission, Totals, error) {
	cs, err := s.List(ctx, Filter{MarketerID: marketerID})
	if err != nil {
		return nil, Totals{}, err
	}
	return cs, Summarize(cs), nil
}

// MarkPaid moves a pending commission to paid and stamps paid_at.
func (s *Service) MarkPaid(ctx context.Context, id int64) (*Commission, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, StatusPaid, &now)
}

// Cancel moves a pending commission to cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) (*Commission, error) {
	return s.transition(ctx, id, StatusCancelled, nil)
}

func (s *Service) transition(ctx context.Context, id int64, to Status, paidAt *time.Time) (*Commission, error) {
	c, err := s.repo.Transition(ctx, id, StatusPending, to, paidAt)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, ErrInvalidTransition):
		return nil, ErrInvalidTransition
	case err != nil:
		return nil, errors.Wrapf(err, "transition commission %d", id)
	}

	zctx.From(ctx).Info("Commission transitioned",
		zap.Int64("commission_id", c.ID),
		zap.Int64("marketer_id", c.MarketerID),
		zap.String("status", string(c.Status)),
	)
	return c, nil
}
