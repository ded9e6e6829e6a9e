package marketer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// memRepo keeps requests in memory and mirrors the role promotion done by
// the storage layer on approval.
type memRepo struct {
	requests map[int64]*Request
	roles    map[int64]string
	seq      int64
	err      error
}

func newMemRepo() *memRepo {
	return &memRepo{
		requests: map[int64]*Request{},
		roles:    map[int64]string{1: "customer", 2: "customer", 9: "admin"},
	}
}

func (m *memRepo) Create(_ context.Context, r *Request) error {
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.requests {
		if existing.UserID == r.UserID {
			return ErrRequestExists
		}
	}
	m.seq++
	r.ID = m.seq
	r.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *memRepo) GetByUser(_ context.Context, userID int64) (*Request, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.requests {
		if r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRequestNotFound
}

func (m *memRepo) List(_ context.Context, status Status) ([]Request, error) {
	var out []Request
	for _, r := range m.requests {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out, m.err
}

func (m *memRepo) Review(_ context.Context, id int64, rv Review) (*Request, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if r.Status != StatusPending {
		return nil, ErrAlreadyReviewed
	}
	r.Status = rv.Status
	r.ReviewedBy = &rv.ReviewerID
	r.ReviewedAt = &rv.At
	r.UpdatedAt = rv.At
	if rv.Notes != "" {
		r.AdminNotes = rv.Notes
	}
	if rv.Status == StatusApproved && m.roles[r.UserID] == "customer" {
		m.roles[r.UserID] = "marketer"
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) ListMarketers(_ context.Context, search string) ([]Summary, error) {
	all := []Summary{
		{UserID: 3, Username: "sara_marketer", CodesCount: 2, ActiveCodesCount: 1, TotalCommissions: d("150000"), PendingCommissions: d("50000")},
		{UserID: 4, Username: "reza", TotalCommissions: decimal.Zero, PendingCommissions: decimal.Zero},
	}
	var out []Summary
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Username), strings.ToLower(search)) {
			out = append(out, s)
		}
	}
	return out, m.err
}

// --- Helpers ---

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func application() Application {
	return Application{
		FullName:    " Sara Ahmadi ",
		PhoneNumber: "09121234567",
		Email:       "sara@example.com",
		Experience:  ExperienceIntermediate,
		Interest:    InterestMedical,
		Motivation:  "I run a study group for nursing students.",
	}
}

var reviewTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newTestService(repo *memRepo) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return reviewTime }
	return svc
}

// --- Tests ---

func TestApplication_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(a *Application)
		field string
	}{
		{name: "Valid", edit: func(*Application) {}},
		{name: "BlankName", edit: func(a *Application) { a.FullName = "   " }, field: "full_name"},
		{name: "LongName", edit: func(a *Application) { a.FullName = strings.Repeat("ن", 101) }, field: "full_name"},
		{name: "NoPhone", edit: func(a *Application) { a.PhoneNumber = "" }, field: "phone_number"},
		{name: "LongPhone", edit: func(a *Application) { a.PhoneNumber = "+98 912 123 4567 8" }, field: "phone_number"},
		{name: "NoEmail", edit: func(a *Application) { a.Email = "" }, field: "email"},
		{name: "BadEmail", edit: func(a *Application) { a.Email = "sara.example.com" }, field: "email"},
		{name: "UnknownExperience", edit: func(a *Application) { a.Experience = "guru" }, field: "experience_level"},
		{name: "UnknownInterest", edit: func(a *Application) { a.Interest = "" }, field: "interest_area"},
		{name: "NoMotivation", edit: func(a *Application) { a.Motivation = "\n" }, field: "motivation"},
		{name: "LongHandle", edit: func(a *Application) { a.TelegramHandle = strings.Repeat("x", 101) }, field: "telegram_handle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := application()
			tt.edit(&a)
			err := a.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, "Sara Ahmadi", a.FullName)
				return
			}
			var fe *InvalidFieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestService_Submit(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	r, err := svc.Submit(context.Background(), 1, application())
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.UserID)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "Sara Ahmadi", r.FullName)

	_, err = svc.Submit(context.Background(), 1, application())
	require.ErrorIs(t, err, ErrRequestExists)

	bad := application()
	bad.Motivation = ""
	_, err = svc.Submit(context.Background(), 2, bad)
	var fe *InvalidFieldError
	require.ErrorAs(t, err, &fe)
	assert.Len(t, repo.requests, 1)
}

func TestService_Mine(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	_, err := svc.Mine(context.Background(), 1)
	require.ErrorIs(t, err, ErrRequestNotFound)

	_, err = svc.Submit(context.Background(), 1, application())
	require.NoError(t, err)
	r, err := svc.Mine(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
}

func TestService_Approve(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	r, err := svc.Submit(context.Background(), 1, application())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), 9, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, int64(9), *approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)
	assert.True(t, reviewTime.Equal(*approved.ReviewedAt))
	assert.Equal(t, "marketer", repo.roles[1])

	_, err = svc.Reject(context.Background(), 9, r.ID, "late")
	require.ErrorIs(t, err, ErrAlreadyReviewed)
	_, err = svc.Approve(context.Background(), 9, 404)
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestService_Reject(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	r, err := svc.Submit(context.Background(), 2, application())
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), 9, r.ID, "  incomplete profile ")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "incomplete profile", rejected.AdminNotes)
	assert.Equal(t, "customer", repo.roles[2])

	pending, err := svc.List(context.Background(), StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_StorageError(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("connection refused")
	svc := newTestService(repo)

	_, err := svc.Submit(context.Background(), 1, application())
	require.ErrorContains(t, err, "create marketer request")
	_, err = svc.Approve(context.Background(), 9, 1)
	require.ErrorContains(t, err, "review marketer request 1")
	assert.False(t, errors.Is(err, ErrRequestNotFound))
}

func TestService_Marketers(t *testing.T) {
	svc := newTestService(newMemRepo())

	ms, err := svc.Marketers(context.Background(), "  SARA ")
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "sara_marketer", ms[0].Username)
	assert.True(t, d("50000").Equal(ms[0].PendingCommissions))

	ms, err = svc.Marketers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, ms, 2)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, st)

	_, err = ParseStatus("maybe")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
