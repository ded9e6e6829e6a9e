package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	monthStart time.Time
	since      time.Time
	recent     int
	sold       []Month
	err        error
}

func (m *mockRepo) Stats(_ context.Context, monthStart time.Time, recent int) (*Stats, error) {
	m.monthStart = monthStart
	m.recent = recent
	if m.err != nil {
		return nil, m.err
	}
	return &Stats{Financial: Financial{TotalRevenue: d("1720000")}}, nil
}

func (m *mockRepo) MonthlyRevenue(_ context.Context, since time.Time) ([]Month, error) {
	m.since = since
	return m.sold, nil
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func month(y int, mo time.Month) time.Time { return time.Date(y, mo, 1, 0, 0, 0, 0, time.UTC) }

func TestService_Stats(t *testing.T) {
	repo := &mockRepo{sold: []Month{
		{Start: month(2025, time.November), Revenue: d("800000"), Purchases: 1},
		{Start: month(2026, time.February), Revenue: d("920000"), Purchases: 3},
	}}
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2026, 2, 17, 23, 10, 0, 0, time.UTC) }

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, month(2026, time.February), repo.monthStart)
	assert.Equal(t, month(2025, time.September), repo.since)
	assert.Equal(t, recentPurchases, repo.recent)
	assert.True(t, d("1720000").Equal(st.Financial.TotalRevenue))

	require.Len(t, st.Monthly, months)
	wantStarts := []time.Time{
		month(2025, time.September), month(2025, time.October), month(2025, time.November),
		month(2025, time.December), month(2026, time.January), month(2026, time.February),
	}
	for i, m := range st.Monthly {
		assert.Equal(t, wantStarts[i], m.Start, i)
	}
	assert.True(t, st.Monthly[0].Revenue.IsZero())
	assert.True(t, d("800000").Equal(st.Monthly[2].Revenue))
	assert.Equal(t, 3, st.Monthly[5].Purchases)
}

func TestService_Stats_Error(t *testing.T) {
	svc := NewService(&mockRepo{err: errors.New("timeout")})
	_, err := svc.Stats(context.Background())
	require.ErrorContains(t, err, "dashboard stats")
}

func TestFillMonths_YearBoundary(t *testing.T) {
	ms := fillMonths(month(2025, time.December), 3, nil)
	require.Len(t, ms, 3)
	assert.Equal(t, month(2026, time.February), ms[2].Start)
	for _, m := range ms {
		assert.True(t, m.Revenue.IsZero())
	}
}
