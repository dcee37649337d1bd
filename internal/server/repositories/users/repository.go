package users

import (
	"context"

	"github.com/dmitrijs2005/libraryauth/internal/server/models"
)

// Repository persists credentials. Usernames are compared exactly; callers
// trim them before they reach the store.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, userName string) (*models.User, error)
	UpdatePassword(ctx context.Context, userName, salt, hash string) error
}
