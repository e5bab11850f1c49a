// Package refreshtokens declares the repository for server-side refresh
// tokens and its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

type Repository interface {
	// Create stores token for userID, valid until now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns the token row or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes the tokens of userID that expired before now.
	DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error)
}
