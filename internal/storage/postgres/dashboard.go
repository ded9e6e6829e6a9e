package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/dashboard"
)

const (
	dashboardStatsSQL = `SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE created_at >= $1),
			(SELECT COUNT(*) FROM users WHERE role = 'admin'),
			(SELECT COUNT(*) FROM users WHERE role = 'marketer'),
			(SELECT COUNT(*) FROM users WHERE role = 'customer'),
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM courses WHERE is_published),
			(SELECT COALESCE(SUM(amount), 0) FROM purchases WHERE payment_status = 'completed'),
			(SELECT COALESCE(SUM(amount), 0) FROM purchases
				WHERE payment_status = 'completed' AND created_at >= $1),
			(SELECT COALESCE(SUM(amount), 0) FROM marketer_commissions WHERE status = 'pending'),
			(SELECT COALESCE(SUM(amount), 0) FROM marketer_commissions WHERE status = 'paid'),
			(SELECT COUNT(*) FROM marketer_requests WHERE status = 'pending')`

	recentPurchasesSQL = purchaseSelectSQL + `
		WHERE x.payment_status = 'completed'
		ORDER BY x.created_at DESC, x.id
		LIMIT $1`

	// Months are cut in UTC regardless of the session time zone.
	monthlyRevenueSQL = `SELECT
			date_trunc('month', created_at AT TIME ZONE 'UTC') AT TIME ZONE 'UTC' AS month,
			SUM(amount), COUNT(*)
		FROM purchases
		WHERE payment_status = 'completed' AND created_at >= $1
		GROUP BY month
		ORDER BY month`
)

var _ dashboard.Repository = (*DashboardRepository)(nil)

// DashboardRepository implements dashboard.Repository backed by PostgreSQL.
type DashboardRepository struct {
	db DBTX
}

// NewDashboardRepository returns a DashboardRepository that uses the given connection.
func NewDashboardRepository(db DBTX) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Stats returns every figure except the monthly series.
func (r *DashboardRepository) Stats(ctx context.Context, monthStart time.Time, recent int) (*dashboard.Stats, error) {
	var st dashboard.Stats
	u, c, f := &st.Users, &st.Courses, &st.Financial
	err := r.db.QueryRow(ctx, dashboardStatsSQL, monthStart).Scan(
		&u.Total, &u.NewThisMonth, &u.Admins, &u.Marketers, &u.Customers,
		&c.Total, &c.Published,
		&f.TotalRevenue, &f.ThisMonthRevenue, &f.PendingCommissions, &f.PaidCommissions,
		&f.PendingRequests,
	)
	if err != nil {
		return nil, fmt.Errorf("counting dashboard stats: %w", err)
	}

	rows, err := r.db.Query(ctx, recentPurchasesSQL, recent)
	if err != nil {
		return nil, fmt.Errorf("listing recent purchases: %w", err)
	}
	st.RecentPurchases, err = pgx.CollectRows(rows, scanPurchase)
	if err != nil {
		return nil, fmt.Errorf("listing recent purchases: %w", err)
	}
	return &st, nil
}

// MonthlyRevenue returns completed revenue per UTC calendar month since since.
func (r *DashboardRepository) MonthlyRevenue(ctx context.Context, since time.Time) ([]dashboard.Month, error) {
	rows, err := r.db.Query(ctx, monthlyRevenueSQL, since)
	if err != nil {
		return nil, fmt.Errorf("summing monthly revenue: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Month, error) {
		var m dashboard.Month
		err := row.Scan(&m.Start, &m.Revenue, &m.Purchases)
		return m, err
	})
}
