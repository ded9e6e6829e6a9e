// Package dashboard aggregates the admin overview of users, catalog and money.
package dashboard

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/purchase"
)

// months is how many calendar months of revenue history Stats carries,
// the current one included.
const months = 6

// recentPurchases bounds Stats.RecentPurchases.
const recentPurchases = 5

// Users counts accounts by role.
type Users struct {
	Total        int
	NewThisMonth int
	Admins       int
	Marketers    int
	Customers    int
}

// Courses counts catalog entries.
type Courses struct {
	Total     int
	Published int
}

// Financial sums completed revenue and commission liabilities.
type Financial struct {
	TotalRevenue       decimal.Decimal
	ThisMonthRevenue   decimal.Decimal
	PendingCommissions decimal.Decimal
	PaidCommissions    decimal.Decimal
	PendingRequests    int
}

// Month is the completed revenue of one calendar month.
type Month struct {
	Start     time.Time
	Revenue   decimal.Decimal
	Purchases int
}

// Stats is the admin overview.
type Stats struct {
	Users           Users
	Courses         Courses
	Financial       Financial
	RecentPurchases []purchase.Purchase
	Monthly         []Month
}

// Repository computes the raw figures.
type Repository interface {
	// Stats fills every field except Monthly, counting "this month" from
	// monthStart and listing up to recent completed purchases.
	Stats(ctx context.Context, monthStart time.Time, recent int) (*Stats, error)
	// MonthlyRevenue returns completed revenue grouped by calendar month for
	// purchases created at or after since. Months without sales are absent.
	MonthlyRevenue(ctx context.Context, since time.Time) ([]Month, error)
}

// Service builds the dashboard.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a dashboard Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Stats returns the overview with one Month per calendar month, oldest
// first, ending with the current one.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	first := current.AddDate(0, -(months - 1), 0)

	st, err := s.repo.Stats(ctx, current, recentPurchases)
	if err != nil {
		return nil, errors.Wrap(err, "dashboard stats")
	}
	sold, err := s.repo.MonthlyRevenue(ctx, first)
	if err != nil {
		return nil, errors.Wrap(err, "monthly revenue")
	}
	st.Monthly = fillMonths(first, months, sold)
	return st, nil
}

// fillMonths lays sold over n consecutive months starting at first, with
// zero entries for months that had no sales.
func fillMonths(first time.Time, n int, sold []Month) []Month {
	byStart := make(map[time.Time]Month, len(sold))
	for _, m := range sold {
		byStart[m.Start.UTC()] = m
	}
	out := make([]Month, n)
	for i := range out {
		start := first.AddDate(0, i, 0)
		m, ok := byStart[start]
		if !ok {
			m = Month{Revenue: decimal.Zero}
		}
		m.Start = start
		out[i] = m
	}
	return out
}
