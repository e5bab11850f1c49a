package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/blob"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/taskkeeper/internal/timex"
)

// CreateTaskInput carries the fields of a new task. Dates are RFC 3339 or
// YYYY-MM-DD strings; an empty StartDate means now.
type CreateTaskInput struct {
	Title       string
	Description string
	StartDate   string
	DueDate     string
	AssignedTo  []string
}

// UpdateTaskInput is a partial update: nil fields are left unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	StartDate   *string
	DueDate     *string
	AssignedTo  *[]string
}

// TaskService implements the task lifecycle and its authorization rules.
// Every method takes the authenticated actor; a task the actor cannot read
// is reported as not found.
type TaskService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	blobs       blob.Store
	log         logging.Logger
	now         func() time.Time
}

func NewTaskService(tx dbx.Transactor, m repomanager.RepositoryManager, blobs blob.Store, log logging.Logger) *TaskService {
	return &TaskService{
		tx:          tx,
		repomanager: m,
		blobs:       blobs,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns the page of tasks described by q that actor may read, and
// the number of such tasks across all pages.
func (s *TaskService) List(ctx context.Context, actor models.Actor, q query.Query) ([]*models.Task, int64, error) {
	list, total, err := s.repomanager.Tasks(s.tx.Conn()).List(ctx, q, scopeOf(actor))
	if err != nil {
		return nil, 0, fmt.Errorf("error listing tasks: %w", err)
	}
	return list, total, nil
}

// ListCompleted lists completed tasks, most recently completed first.
func (s *TaskService) ListCompleted(ctx context.Context, actor models.Actor, page, limit int) ([]*models.Task, int64, error) {
	return s.List(ctx, actor, query.Completed(page, limit))
}

// Get returns the task with id if actor can see it, otherwise ErrorNotFound.
func (s *TaskService) Get(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	return s.load(ctx, actor, id)
}

// Create stores a new pending task created by actor, applying the overdue
// rule against the due date.
func (s *TaskService) Create(ctx context.Context, actor models.Actor, in CreateTaskInput) (*models.Task, error) {
	now := s.now()

	title, err := validTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description, err := validDescription(in.Description)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.StartDate) == "" {
		return nil, common.Errorf(common.ErrorValidation, "please add a start date")
	}
	start, err := parseDate("startDate", in.StartDate)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.DueDate) == "" {
		return nil, common.Errorf(common.ErrorValidation, "please add a due date")
	}
	due, err := parseDate("dueDate", in.DueDate)
	if err != nil {
		return nil, err
	}
	assignees, err := s.validAssignees(ctx, in.AssignedTo)
	if err != nil {
		return nil, err
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      models.StatusPending,
		StartDate:   start,
		DueDate:     due,
		CreatedBy:   models.UserRef{ID: actor.ID},
		CreatedAt:   now,
	}
	for _, uid := range assignees {
		task.AssignedTo = append(task.AssignedTo, models.UserRef{ID: uid})
	}
	task.ApplyOverdue(now)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Tasks(tx).Create(ctx, task)
	})
	if err != nil {
		return nil, fmt.Errorf("error creating task: %w", err)
	}

	s.log.Info(ctx, "task created", "task_id", task.ID, "user_id", actor.ID)
	return s.reload(ctx, task.ID)
}

// Update merges in into the task. Only admins and the creator may update.
func (s *TaskService) Update(ctx context.Context, actor models.Actor, id string, in UpdateTaskInput) (*models.Task, error) {
	task, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !task.IsCreator(actor.ID) {
		return nil, common.Errorf(common.ErrorForbidden, "user is not authorized to update this task")
	}

	now := s.now()

	if in.Title != nil {
		if task.Title, err = validTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if task.Description, err = validDescription(*in.Description); err != nil {
			return nil, err
		}
	}
	if in.StartDate != nil {
		if task.StartDate, err = parseDate("startDate", *in.StartDate); err != nil {
			return nil, err
		}
	}
	if in.DueDate != nil {
		if task.DueDate, err = parseDate("dueDate", *in.DueDate); err != nil {
			return nil, err
		}
	}
	if in.Status != nil {
		if !models.ValidStatus(*in.Status) {
			return nil, common.Errorf(common.ErrorValidation, "unknown status %q", *in.Status)
		}
		task.SetStatus(*in.Status, now)
	}

	var assignees []string
	if in.AssignedTo != nil {
		if assignees, err = s.validAssignees(ctx, *in.AssignedTo); err != nil {
			return nil, err
		}
	}
	task.ApplyOverdue(now)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tasks(tx)
		if err := repo.Update(ctx, task); err != nil {
			return err
		}
		if assignees != nil && !slices.Equal(assignees, task.AssigneeIDs()) {
			return repo.SetAssignees(ctx, task.ID, assignees)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error updating task: %w", err)
	}
	return s.reload(ctx, task.ID)
}

// Delete removes the task with its files, comments and blob subtree.
func (s *TaskService) Delete(ctx context.Context, actor models.Actor, id string) error {
	task, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !task.IsCreator(actor.ID) {
		return common.Errorf(common.ErrorForbidden, "user is not authorized to delete this task")
	}

	if err := s.repomanager.Tasks(s.tx.Conn()).Delete(ctx, task.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return taskNotFound(id)
		}
		return fmt.Errorf("error deleting task: %w", err)
	}

	if err := s.blobs.DeletePrefix(ctx, task.ID); err != nil {
		s.log.Warn(ctx, "task blobs left behind", "task_id", task.ID, "error", err)
	}

	s.log.Info(ctx, "task deleted", "task_id", task.ID, "user_id", actor.ID)
	return nil
}

// Start moves a pending or overdue task to in_progress.
func (s *TaskService) Start(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	return s.transition(ctx, actor, id, "start", models.StatusInProgress, func(status string) bool {
		return status == models.StatusPending || status == models.StatusOverdue
	})
}

// Complete moves a task that is not yet completed to completed.
func (s *TaskService) Complete(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	return s.transition(ctx, actor, id, "complete", models.StatusCompleted, func(status string) bool {
		return status != models.StatusCompleted
	})
}

func (s *TaskService) transition(ctx context.Context, actor models.Actor, id, verb, target string, allowed func(string) bool) (*models.Task, error) {
	task, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !task.IsAssignee(actor.ID) {
		return nil, common.Errorf(common.ErrorForbidden, "user is not authorized to %s this task", verb)
	}
	if !allowed(task.Status) {
		return nil, common.Errorf(common.ErrorConflict, "task is already %s", task.Status)
	}

	task.SetStatus(target, s.now())
	if err := s.repomanager.Tasks(s.tx.Conn()).Update(ctx, task); err != nil {
		return nil, fmt.Errorf("error updating task: %w", err)
	}
	return s.reload(ctx, task.ID)
}

// AddComment appends a comment by actor to the task.
func (s *TaskService) AddComment(ctx context.Context, actor models.Actor, id, text string) (*models.Task, error) {
	task, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !task.IsCreator(actor.ID) && !task.IsAssignee(actor.ID) {
		return nil, common.Errorf(common.ErrorForbidden, "user is not authorized to comment on this task")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.Errorf(common.ErrorValidation, "please add a comment text")
	}

	cid, err := newID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	comment := &models.Comment{
		ID:        cid,
		Text:      text,
		User:      models.UserRef{ID: actor.ID},
		CreatedAt: now,
		TaskID:    task.ID,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Comments(tx).Create(ctx, comment); err != nil {
			return err
		}
		return s.saveOverdue(ctx, tx, task, now)
	})
	if err != nil {
		return nil, fmt.Errorf("error adding comment: %w", err)
	}
	return s.reload(ctx, task.ID)
}

// load fetches a task the actor may read.
func (s *TaskService) load(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	if !validID(id) {
		return nil, taskNotFound(id)
	}
	task, err := s.repomanager.Tasks(s.tx.Conn()).Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, taskNotFound(id)
		}
		return nil, fmt.Errorf("error loading task: %w", err)
	}
	if !actor.IsAdmin() && !task.IsCreator(actor.ID) && !task.IsAssignee(actor.ID) {
		return nil, taskNotFound(id)
	}
	return task, nil
}

// reload returns the populated task after a write.
func (s *TaskService) reload(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.repomanager.Tasks(s.tx.Conn()).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading task: %w", err)
	}
	return task, nil
}

// saveOverdue persists the overdue status if the task has just become overdue.
func (s *TaskService) saveOverdue(ctx context.Context, tx dbx.DBTX, task *models.Task, now time.Time) error {
	if !task.ApplyOverdue(now) {
		return nil
	}
	return s.repomanager.Tasks(tx).Update(ctx, task)
}

// validAssignees dedupes ids, keeping order, and checks every user exists.
func (s *TaskService) validAssignees(ctx context.Context, ids []string) ([]string, error) {
	var uniq []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(uniq, id) {
			continue
		}
		if !validID(id) {
			return nil, userNotFound(id)
		}
		uniq = append(uniq, id)
	}
	if len(uniq) == 0 {
		return nil, common.Errorf(common.ErrorValidation, "please assign the task to at least one user")
	}

	found, err := s.repomanager.Users(s.tx.Conn()).ExistingIDs(ctx, uniq)
	if err != nil {
		return nil, fmt.Errorf("error checking users: %w", err)
	}
	for _, id := range uniq {
		if !slices.Contains(found, id) {
			return nil, userNotFound(id)
		}
	}
	return uniq, nil
}

func scopeOf(actor models.Actor) tasks.Scope {
	if actor.IsAdmin() {
		return tasks.Scope{}
	}
	return tasks.Scope{UserID: actor.ID}
}

func taskNotFound(id string) error {
	return common.Errorf(common.ErrorNotFound, "task not found with id %s", id)
}

func validTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", common.Errorf(common.ErrorValidation, "please add a title")
	}
	if utf8.RuneCountInString(s) > models.TitleMaxLength {
		return "", common.Errorf(common.ErrorValidation, "title can not be more than %d characters", models.TitleMaxLength)
	}
	return s, nil
}

func validDescription(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", common.Errorf(common.ErrorValidation, "please add a description")
	}
	return s, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := timex.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, common.Errorf(common.ErrorValidation, "invalid %s %q", field, s)
	}
	return t, nil
}
