package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectTask = `SELECT t.id, t.title, t.description, t.status, t.start_date, t.due_date,
		t.completed_date, t.created_by, COALESCE(u.name, ''), COALESCE(u.email, ''), t.created_at
	FROM tasks t
	LEFT JOIN users u ON u.id = t.created_by`

func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, title, description, status, start_date, due_date, completed_date, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.StartDate, task.DueDate,
		nullTime(task.CompletedDate), task.CreatedBy.ID, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return r.insertAssignees(ctx, task.ID, task.AssigneeIDs())
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, selectTask+` WHERE t.id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidInput(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := r.populate(ctx, []*models.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *PostgresRepository) List(ctx context.Context, q query.Query, scope Scope) ([]*models.Task, int64, error) {
	var where whereBuilder
	for _, f := range q.Filters {
		if err := where.filter(f); err != nil {
			return nil, 0, err
		}
	}
	where.scope(scope)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM tasks t`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	order, err := orderBy(q.Sort)
	if err != nil {
		return nil, 0, err
	}

	args := append(where.args, q.Limit, q.Offset())
	limit := fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, selectTask+where.String()+order+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Task, 0, q.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.populate(ctx, result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PostgresRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, start_date = $5, due_date = $6, completed_date = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.StartDate, task.DueDate, nullTime(task.CompletedDate))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) SetAssignees(ctx context.Context, taskID string, userIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.insertAssignees(ctx, taskID, userIDs)
}

func (r *PostgresRepository) insertAssignees(ctx context.Context, taskID string, userIDs []string) error {
	query := `INSERT INTO task_assignees (task_id, user_id, position) VALUES ($1, $2, $3)`
	for i, uid := range userIDs {
		if _, err := r.db.ExecContext(ctx, query, taskID, uid, i); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		if dbx.IsInvalidInput(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	t := &models.Task{
		AssignedTo:      []models.UserRef{},
		TaskFiles:       []models.File{},
		CompletionFiles: []models.File{},
		Comments:        []models.Comment{},
	}
	var completed sql.NullTime
	err := s.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.StartDate, &t.DueDate,
		&completed, &t.CreatedBy.ID, &t.CreatedBy.Name, &t.CreatedBy.Email, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		ts := completed.Time
		t.CompletedDate = &ts
	}
	return t, nil
}

// populate loads assignees, files and comments of tasks in three queries.
func (r *PostgresRepository) populate(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]*models.Task, len(tasks))
	ids := make([]any, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	in := dbx.Placeholders(1, len(ids))

	if err := r.loadAssignees(ctx, in, ids, byID); err != nil {
		return err
	}
	if err := r.loadFiles(ctx, in, ids, byID); err != nil {
		return err
	}
	return r.loadComments(ctx, in, ids, byID)
}

func (r *PostgresRepository) loadAssignees(ctx context.Context, in string, ids []any, byID map[string]*models.Task) error {
	query := `SELECT a.task_id, a.user_id, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM task_assignees a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.task_id IN (` + in + `)
		ORDER BY a.task_id, a.position`

	rows, err := r.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID string
		var ref models.UserRef
		if err := rows.Scan(&taskID, &ref.ID, &ref.Name, &ref.Email); err != nil {
			return err
		}
		if t, ok := byID[taskID]; ok {
			t.AssignedTo = append(t.AssignedTo, ref)
		}
	}
	return rows.Err()
}

func (r *PostgresRepository) loadFiles(ctx context.Context, in string, ids []any, byID map[string]*models.Task) error {
	query := `SELECT f.id, f.task_id, f.category, f.filename, f.original_name, f.path, f.file_type,
			f.storage_key, f.uploaded_by, COALESCE(u.name, ''), COALESCE(u.email, ''), f.uploaded_at
		FROM task_files f
		LEFT JOIN users u ON u.id = f.uploaded_by
		WHERE f.task_id IN (` + in + `)
		ORDER BY f.seq`

	rows, err := r.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.File
		var uploader sql.NullString
		var name, email string
		if err := rows.Scan(&f.ID, &f.TaskID, &f.Category, &f.Filename, &f.OriginalName, &f.Path, &f.FileType,
			&f.StorageKey, &uploader, &name, &email, &f.UploadedAt); err != nil {
			return err
		}
		if uploader.Valid {
			f.UploadedBy = &models.UserRef{ID: uploader.String, Name: name, Email: email}
		}
		t, ok := byID[f.TaskID]
		if !ok {
			continue
		}
		if f.Category == models.FileCategoryCompletion {
			t.CompletionFiles = append(t.CompletionFiles, f)
		} else {
			t.TaskFiles = append(t.TaskFiles, f)
		}
	}
	return rows.Err()
}

func (r *PostgresRepository) loadComments(ctx context.Context, in string, ids []any, byID map[string]*models.Task) error {
	query := `SELECT c.id, c.task_id, c.text, c.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''), c.created_at
		FROM task_comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.task_id IN (` + in + `)
		ORDER BY c.seq`

	rows, err := r.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Text, &c.User.ID, &c.User.Name, &c.User.Email, &c.CreatedAt); err != nil {
			return err
		}
		if t, ok := byID[c.TaskID]; ok {
			t.Comments = append(t.Comments, c)
		}
	}
	return rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
