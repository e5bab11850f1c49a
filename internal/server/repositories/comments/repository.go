// Package comments stores the append-only comment thread of a task.
package comments

import (
	"context"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, comment *models.Comment) error
}
