package memory

import (
	"context"
	"errors"
	"time"

	"github.com/awehrman/peas/internal/domain/user"
	"github.com/awehrman/peas/internal/security"
	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// UsersRepo holds the single operator account local mode runs with.
type UsersRepo struct {
	admin user.User
}

func NewUsersRepo(email, password, name, role string) *UsersRepo {
	if email == "" {
		email = "admin@localhost"
	}
	if password == "" {
		password = "peas-local"
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		// bcrypt only fails on absurd cost settings; treat as fatal
		panic(err)
	}

	now := time.Now().UTC()

	return &UsersRepo{
		admin: user.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			Name:         name,
			Role:         role,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	if email != r.admin.Email {
		return user.User{}, ErrUserNotFound
	}
	return r.admin, nil
}
