package referral

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const maxGenerateAttempts = 5

// CreateRequest holds the input for creating a referral code. Empty Code asks
// for a generated one; nil percentages take the configured defaults.
type CreateRequest struct {
	Code                 string
	DiscountPercentage   *decimal.Decimal
	CommissionPercentage *decimal.Decimal
	MaxUses              *int
}

// UpdateRequest holds the mutable fields of a code. ClearMaxUses removes the
// usage limit and wins over MaxUses.
type UpdateRequest struct {
	IsActive     *bool
	MaxUses      *int
	ClearMaxUses bool
}

// AdminUpdateRequest also lets an admin change a code's percentages. New
// percentages apply to future checkouts only.
type AdminUpdateRequest struct {
	UpdateRequest
	DiscountPercentage   *decimal.Decimal
	CommissionPercentage *decimal.Decimal
}

// Service manages a marketer's referral codes and the default settings.
type Service struct {
	codes    Repository
	settings SettingsStore
	generate func() (string, error)
}

// NewService creates a referral Service.
func NewService(codes Repository, settings SettingsStore) *Service {
	return &Service{
		codes:    codes,
		settings: settings,
		generate: GenerateCode,
	}
}

// ListCodes returns the codes owned by marketerID.
func (s *Service) ListCodes(ctx context.Context, marketerID int64) ([]Code, error) {
	codes, err := s.codes.List(ctx, CodeFilter{MarketerID: marketerID})
	if err != nil {
		return nil, errors.Wrap(err, "list referral codes")
	}
	return codes, nil
}

// CreateCode creates a code owned by marketerID.
func (s *Service) CreateCode(ctx context.Context, marketerID int64, req CreateRequest) (*Code, error) {
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return nil, ErrInvalidMaxUses
	}

	defaults, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get referral settings")
	}

	c := &Code{
		MarketerID:           marketerID,
		DiscountPercentage:   defaults.DiscountPercentage,
		CommissionPercentage: defaults.CommissionPercentage,
		IsActive:             true,
		MaxUses:              req.MaxUses,
	}
	if req.DiscountPercentage != nil {
		c.DiscountPercentage = *req.DiscountPercentage
	}
	if req.CommissionPercentage != nil {
		c.CommissionPercentage = *req.CommissionPercentage
	}
	if err := ValidatePercentage(c.DiscountPercentage); err != nil {
		return nil, err
	}
	if err := ValidatePercentage(c.CommissionPercentage); err != nil {
		return nil, err
	}

	if code := Normalize(req.Code); code != "" {
		if !ValidFormat(code) {
			return nil, ErrInvalidCodeFormat
		}
		c.Code = code
		if err := s.codes.Create(ctx, c); err != nil {
			return nil, errors.Wrap(err, "create referral code")
		}
		return c, nil
	}

	for range maxGenerateAttempts {
		code, err := s.generate()
		if err != nil {
			return nil, errors.Wrap(err, "generate referral code")
		}
		c.Code = code
		err = s.codes.Create(ctx, c)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "create referral code")
		}
		return c, nil
	}
	return nil, errors.Wrapf(ErrCodeTaken, "no free code after %d attempts", maxGenerateAttempts)
}

// UpdateCode changes the active flag or usage limit of a code owned by
// marketerID. Codes owned by someone else are reported as not found.
func (s *Service) UpdateCode(ctx context.Context, marketerID, id int64, req UpdateRequest) (*Code, error) {
	c, err := s.owned(ctx, marketerID, id)
	if err != nil {
		return nil, err
	}
	if err := apply(c, req); err != nil {
		return nil, err
	}
	return s.save(ctx, c)
}

// AdminUpdateCode changes any code.
func (s *Service) AdminUpdateCode(ctx context.Context, id int64, req AdminUpdateRequest) (*Code, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(c, req.UpdateRequest); err != nil {
		return nil, err
	}
	for _, p := range []struct {
		in  *decimal.Decimal
		out *decimal.Decimal
	}{
		{req.DiscountPercentage, &c.DiscountPercentage},
		{req.CommissionPercentage, &c.CommissionPercentage},
	} {
		if p.in == nil {
			continue
		}
		if err := ValidatePercentage(*p.in); err != nil {
			return nil, err
		}
		*p.out = *p.in
	}
	return s.save(ctx, c)
}

// AdminListCodes returns every code matching f.
func (s *Service) AdminListCodes(ctx context.Context, f CodeFilter) ([]Code, error) {
	codes, err := s.codes.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list referral codes")
	}
	return codes, nil
}

// AdminDeleteCode removes any unused code.
func (s *Service) AdminDeleteCode(ctx context.Context, id int64) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	return s.delete(ctx, id)
}

func apply(c *Code, req UpdateRequest) error {
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	switch {
	case req.ClearMaxUses:
		c.MaxUses = nil
	case req.MaxUses != nil:
		if *req.MaxUses <= 0 || *req.MaxUses < c.CurrentUses {
			return ErrInvalidMaxUses
		}
		c.MaxUses = req.MaxUses
	}
	return nil
}

func (s *Service) save(ctx context.Context, c *Code) (*Code, error) {
	if err := s.codes.Update(ctx, c); err != nil {
		if errors.Is(err, ErrInvalidMaxUses) {
			return nil, ErrInvalidMaxUses
		}
		return nil, errors.Wrap(err, "update referral code")
	}
	return c, nil
}

// DeleteCode removes a code owned by marketerID.
func (s *Service) DeleteCode(ctx context.Context, marketerID, id int64) error {
	if _, err := s.owned(ctx, marketerID, id); err != nil {
		return err
	}
	return s.delete(ctx, id)
}

func (s *Service) delete(ctx context.Context, id int64) error {
	if err := s.codes.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrCodeInUse) {
			return ErrCodeInUse
		}
		return errors.Wrap(err, "delete referral code")
	}
	return nil
}

func (s *Service) owned(ctx context.Context, marketerID, id int64) (*Code, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.MarketerID != marketerID {
		return nil, ErrCodeNotFound
	}
	return c, nil
}

func (s *Service) get(ctx context.Context, id int64) (*Code, error) {
	c, err := s.codes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "get referral code")
	}
	return c, nil
}

// Settings returns the current default percentages.
func (s *Service) Settings(ctx context.Context) (*Settings, error) {
	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get referral settings")
	}
	return st, nil
}

// UpdateSettings replaces the default percentages. Existing codes keep the
// percentages they were created with.
func (s *Service) UpdateSettings(ctx context.Context, st Settings) (*Settings, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	updated, err := s.settings.PutSettings(ctx, st)
	if err != nil {
		return nil, errors.Wrap(err, "put referral settings")
	}
	return updated, nil
}
