// Package tasks declares the task repository and its PostgreSQL
// implementation. Tasks are returned fully populated: assignees, creator,
// files and comments with their user references expanded.
package tasks

import (
	"context"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
)

// Scope restricts listings to what one user may read. The zero Scope
// sees everything.
type Scope struct {
	// UserID, when set, keeps tasks created by or assigned to this user.
	UserID string
}

type Repository interface {
	// Create inserts task and its assignees. Files and comments are ignored.
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	// List returns the page of tasks described by q within scope and the
	// number of tasks matching q and scope across all pages.
	List(ctx context.Context, q query.Query, scope Scope) ([]*models.Task, int64, error)
	// Update writes the scalar fields of task.
	Update(ctx context.Context, task *models.Task) error
	// SetAssignees replaces the assignees of a task, keeping the given order.
	SetAssignees(ctx context.Context, taskID string, userIDs []string) error
	Delete(ctx context.Context, id string) error
}
