package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the access level of an authenticated user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMarketer Role = "marketer"
	RoleAdmin    Role = "admin"
)

var (
	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller lacks the required role or scope.
	ErrForbidden = errors.New("forbidden")
)

// ParseRole parses s into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleMarketer, RoleAdmin:
		return r, nil
	default:
		return "", errors.Wrapf(ErrUnauthorized, "unknown role %q", s)
	}
}

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Role   Role
}

// Allows reports whether the identity holds one of roles. Admins are allowed
// everywhere.
func (i Identity) Allows(roles ...Role) bool {
	if i.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored in ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// User is a registered account.
type User struct {
	ID       int64
	Username string
	Role     Role
}
