package port

import (
	"context"

	"github.com/vrd2140/storefront/internal/core/domain"
)

type UserStore interface {
	// Create persists a new user, returning domain.ErrEmailTaken on a
	// duplicate email.
	Create(ctx context.Context, user *domain.User) error

	// Get loads a user by ID, returning domain.ErrUserNotFound if absent.
	Get(ctx context.Context, userID string) (*domain.User, error)

	// GetByEmail loads a user by email, returning domain.ErrUserNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
