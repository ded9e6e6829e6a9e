package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/academy-ledger/internal/domain/auth"
)

// ErrUserNotFound is returned when no user has the requested username.
var ErrUserNotFound = errors.New("user not found")

const (
	upsertUserSQL = `INSERT INTO users (username, role) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role
		RETURNING id`

	findUserByUsernameSQL = `SELECT id, username, role FROM users WHERE username = $1`
)

// UserRepository reads and seeds user accounts.
type UserRepository struct {
	db DBTX
}

// NewUserRepository returns a UserRepository that uses the given connection.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert creates the user or updates their role, returning the id.
func (r *UserRepository) Upsert(ctx context.Context, username string, role auth.Role) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, upsertUserSQL, username, string(role)).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting user %q: %w", username, err)
	}
	return id, nil
}

// FindByUsername returns the user with the given username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := r.db.QueryRow(ctx, findUserByUsernameSQL, username).Scan(&u.ID, &u.Username, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user %q: %w", username, err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}
