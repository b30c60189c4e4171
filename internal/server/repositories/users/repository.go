package users

import (
	"context"

	"github.com/dmitrijs2005/storykeeper/internal/server/models"
)

// Repository is the credential store. Emails are compared as given; callers
// normalise them before calling.
type Repository interface {
	// Create persists user, assigning an ID when empty. A duplicate email
	// yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByEmail and GetByID yield common.ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
