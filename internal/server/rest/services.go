package rest

import (
	"context"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
	"github.com/dmitrijs2005/taskkeeper/internal/server/services"
)

// UserService is what the handlers need from services.UserService.
type UserService interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Authenticate(ctx context.Context, accessToken string) (models.Actor, error)
	Register(ctx context.Context, actor models.Actor, in services.NewUser) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

// TaskService is what the handlers need from services.TaskService.
type TaskService interface {
	List(ctx context.Context, actor models.Actor, q query.Query) ([]*models.Task, int64, error)
	ListCompleted(ctx context.Context, actor models.Actor, page, limit int) ([]*models.Task, int64, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Task, error)
	Create(ctx context.Context, actor models.Actor, in services.CreateTaskInput) (*models.Task, error)
	Update(ctx context.Context, actor models.Actor, id string, in services.UpdateTaskInput) (*models.Task, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	Start(ctx context.Context, actor models.Actor, id string) (*models.Task, error)
	Complete(ctx context.Context, actor models.Actor, id string) (*models.Task, error)
	AddComment(ctx context.Context, actor models.Actor, id, text string) (*models.Task, error)
	AttachFiles(ctx context.Context, actor models.Actor, id, category string, uploads []services.Upload) (*models.Task, error)
	RemoveFile(ctx context.Context, actor models.Actor, id, category, fileID string) (*models.Task, error)
}

var (
	_ UserService = (*services.UserService)(nil)
	_ TaskService = (*services.TaskService)(nil)
)
