// Package files stores attachment metadata. Blob content is handled by
// internal/server/blob.
package files

import (
	"context"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

type Repository interface {
	// Create appends file to its task and category.
	Create(ctx context.Context, file *models.File) error
	// Delete removes file id of taskID, or returns common.ErrorNotFound.
	Delete(ctx context.Context, taskID, id string) error
}
