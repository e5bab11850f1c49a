// Package users declares the user repository and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts user (ID set by the caller) and fills CreatedAt.
	// A duplicate email, compared case-insensitively, is common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// List returns all users ordered by name.
	List(ctx context.Context) ([]*models.User, error)
	// ExistingIDs returns the subset of ids that belong to a user.
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
	Delete(ctx context.Context, id string) error
}
