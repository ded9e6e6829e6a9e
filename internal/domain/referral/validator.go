package referral

import (
	"context"

	"github.com/go-faster/errors"
)

// Verdict is the outcome of checking a code. Reason is empty when Valid.
type Verdict struct {
	Valid  bool
	Reason Reason
	Code   *Code
}

// Validator looks referral codes up and checks their availability.
type Validator struct {
	repo Repository
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// Resolve returns the available code matching the input, or one of
// ErrCodeNotFound, ErrCodeInactive and ErrCodeExhausted.
func (v *Validator) Resolve(ctx context.Context, code string) (*Code, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return nil, ErrCodeNotFound
	}

	c, err := v.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "lookup referral code")
	}
	if err := c.Check(); err != nil {
		return c, err
	}
	return c, nil
}

// Check reports whether code can be applied. An unusable code yields a
// negative verdict rather than an error; errors are reserved for storage
// failures.
func (v *Validator) Check(ctx context.Context, code string) (*Verdict, error) {
	c, err := v.Resolve(ctx, code)
	if err != nil {
		reason := ReasonError(err)
		if reason == ReasonNone {
			return nil, err
		}
		return &Verdict{Reason: reason, Code: c}, nil
	}
	return &Verdict{Valid: true, Code: c}, nil
}
