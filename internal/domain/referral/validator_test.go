package referral

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockCodeRepo struct {
	byCode    map[string]*Code
	byID      map[int64]*Code
	findErr   error
	createErr []error
	created   []Code
	updated   *Code
	deleted   int64
	deleteErr error
	lastQuery string
	filter    CodeFilter
}

func newMockCodeRepo(codes ...Code) *mockCodeRepo {
	m := &mockCodeRepo{byCode: map[string]*Code{}, byID: map[int64]*Code{}}
	for i := range codes {
		c := codes[i]
		m.byCode[c.Code] = &c
		m.byID[c.ID] = &c
	}
	return m
}

func (m *mockCodeRepo) FindByCode(_ context.Context, code string) (*Code, error) {
	m.lastQuery = code
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCodeRepo) GetByID(_ context.Context, id int64) (*Code, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCodeRepo) List(_ context.Context, f CodeFilter) ([]Code, error) {
	m.filter = f
	var out []Code
	for _, c := range m.byID {
		if f.MarketerID != 0 && c.MarketerID != f.MarketerID {
			continue
		}
		if f.Active != nil && c.IsActive != *f.Active {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCodeRepo) Create(_ context.Context, c *Code) error {
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	c.ID = int64(len(m.created) + 100)
	m.created = append(m.created, *c)
	return nil
}

func (m *mockCodeRepo) Update(_ context.Context, c *Code) error {
	cp := *c
	m.updated = &cp
	return nil
}

func (m *mockCodeRepo) Delete(_ context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = id
	return nil
}

// --- Tests ---

func TestValidator_Check(t *testing.T) {
	repo := newMockCodeRepo(
		Code{ID: 1, Code: "SPRING10", IsActive: true, DiscountPercentage: d("10")},
		Code{ID: 2, Code: "OFF", IsActive: false},
		Code{ID: 3, Code: "ONCE", IsActive: true, MaxUses: intPtr(1), CurrentUses: 1},
	)
	v := NewValidator(repo)

	tests := []struct {
		name       string
		input      string
		wantValid  bool
		wantReason Reason
	}{
		{name: "valid code", input: "SPRING10", wantValid: true},
		{name: "lower case input is normalised", input: "  spring10 ", wantValid: true},
		{name: "unknown code", input: "NOPE", wantReason: ReasonInvalidCode},
		{name: "empty code", input: "   ", wantReason: ReasonInvalidCode},
		{name: "inactive code", input: "off", wantReason: ReasonCodeInactive},
		{name: "exhausted code", input: "ONCE", wantReason: ReasonCodeExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := v.Check(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, verdict.Valid)
			assert.Equal(t, tt.wantReason, verdict.Reason)
			if tt.wantValid {
				require.NotNil(t, verdict.Code)
			}
		})
	}
}

func TestValidator_Check_StorageError(t *testing.T) {
	repo := newMockCodeRepo()
	repo.findErr = errors.New("connection refused")

	_, err := NewValidator(repo).Check(context.Background(), "SPRING10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidator_Resolve(t *testing.T) {
	repo := newMockCodeRepo(Code{ID: 3, Code: "ONCE", IsActive: true, MaxUses: intPtr(1), CurrentUses: 1})

	c, err := NewValidator(repo).Resolve(context.Background(), "once")
	require.ErrorIs(t, err, ErrCodeExhausted)
	require.NotNil(t, c)
	assert.Equal(t, int64(3), c.ID)
	assert.Equal(t, "ONCE", repo.lastQuery)
}
