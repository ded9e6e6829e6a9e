package enrollment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
)

// ErrNotCompleted is returned when granting access for a purchase that has
// not been paid.
var ErrNotCompleted = errors.New("purchase is not completed")

// Enrollment grants a user access to a course or a single section.
type Enrollment struct {
	ID         int64
	UserID     int64
	Ref        catalog.ItemRef
	Title      string
	PurchaseID string
	EnrolledAt time.Time
}

// Repository defines persistence operations for enrollments.
type Repository interface {
	// GetOrCreate returns the existing enrollment for (userID, ref) or inserts
	// one. created reports whether a row was inserted.
	GetOrCreate(ctx context.Context, userID int64, ref catalog.ItemRef, purchaseID string) (e *Enrollment, created bool, err error)
	// Exists reports whether the user has access to ref. Access to a course
	// covers all its sections.
	Exists(ctx context.Context, userID int64, ref catalog.ItemRef) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]Enrollment, error)
}

// Grant enrolls the buyer of a completed purchase. Repeated calls for the same
// purchase return the same enrollment.
func Grant(ctx context.Context, repo Repository, p *purchase.Purchase) (*Enrollment, error) {
	if p.Status != purchase.StatusCompleted {
		return nil, errors.Wrapf(ErrNotCompleted, "purchase %s is %s", p.ID, p.Status)
	}

	e, created, err := repo.GetOrCreate(ctx, p.UserID, p.Ref, p.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "enroll user %d in %s", p.UserID, p.Ref)
	}
	if created {
		zctx.From(ctx).Info("Enrollment granted",
			zap.Int64("user_id", p.UserID),
			zap.Stringer("item", p.Ref),
			zap.String("purchase_id", p.ID),
		)
	}
	return e, nil
}

// Granter grants and lists enrollments outside a checkout transaction.
type Granter struct {
	repo Repository
}

// NewGranter creates a Granter.
func NewGranter(repo Repository) *Granter {
	return &Granter{repo: repo}
}

// Grant enrolls the buyer of p. See Grant.
func (g *Granter) Grant(ctx context.Context, p *purchase.Purchase) (*Enrollment, error) {
	return Grant(ctx, g.repo, p)
}

// ListForUser returns the user's enrollments, newest first.
func (g *Granter) ListForUser(ctx context.Context, userID int64) ([]Enrollment, error) {
	es, err := g.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list enrollments")
	}
	return es, nil
}
