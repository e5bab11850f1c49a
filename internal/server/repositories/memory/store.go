// Package memory keeps every repository in process memory. It backs the
// "memory" DSN used for development and the service and handler tests.
// All repositories of one Store share a single lock.
package memory

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/tasks"
)

type Store struct {
	mu     sync.RWMutex
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
	tasks  map[string]*models.Task
	nextID int64
}

func NewStore() *Store {
	return &Store{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
		tasks:  make(map[string]*models.Task),
	}
}

func (s *Store) Users() *Users                 { return &Users{s: s} }
func (s *Store) RefreshTokens() *RefreshTokens { return &RefreshTokens{s: s} }
func (s *Store) Tasks() *Tasks                 { return &Tasks{s: s} }
func (s *Store) Files() *Files                 { return &Files{s: s} }
func (s *Store) Comments() *Comments           { return &Comments{s: s} }

// ref expands a stored reference. Callers hold s.mu.
func (s *Store) ref(id string) models.UserRef {
	if u, ok := s.users[id]; ok {
		return u.Ref()
	}
	return models.UserRef{ID: id}
}

// render returns a populated deep copy of a stored task. Callers hold s.mu.
func (s *Store) render(t *models.Task) *models.Task {
	out := *t
	if t.CompletedDate != nil {
		ts := *t.CompletedDate
		out.CompletedDate = &ts
	}
	out.CreatedBy = s.ref(t.CreatedBy.ID)

	out.AssignedTo = make([]models.UserRef, 0, len(t.AssignedTo))
	for _, r := range t.AssignedTo {
		out.AssignedTo = append(out.AssignedTo, s.ref(r.ID))
	}

	out.TaskFiles = s.renderFiles(t.TaskFiles)
	out.CompletionFiles = s.renderFiles(t.CompletionFiles)

	out.Comments = make([]models.Comment, 0, len(t.Comments))
	for _, c := range t.Comments {
		c.User = s.ref(c.User.ID)
		out.Comments = append(out.Comments, c)
	}
	return &out
}

func (s *Store) renderFiles(files []models.File) []models.File {
	out := make([]models.File, 0, len(files))
	for _, f := range files {
		if f.UploadedBy != nil {
			r := s.ref(f.UploadedBy.ID)
			f.UploadedBy = &r
		}
		out = append(out, f)
	}
	return out
}

// Users implements users.Repository.
type Users struct{ s *Store }

func (r *Users) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	stored := *user
	r.s.users[user.ID] = &stored
	return user, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *Users) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *Users) List(ctx context.Context) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		cp := *u
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *models.User) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (r *Users) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found []string
	for _, id := range ids {
		if _, ok := r.s.users[id]; ok && !slices.Contains(found, id) {
			found = append(found, id)
		}
	}
	return found, nil
}

func (r *Users) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.users, id)
	for tok, rt := range r.s.tokens {
		if rt.UserID == id {
			delete(r.s.tokens, tok)
		}
	}
	return nil
}

// RefreshTokens implements refreshtokens.Repository.
type RefreshTokens struct{ s *Store }

func (r *RefreshTokens) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextID++
	now := time.Now().UTC()
	r.s.tokens[token] = &models.RefreshToken{
		ID:        strconv.FormatInt(r.s.nextID, 10),
		UserID:    userID,
		Token:     token,
		Expires:   now.Add(validity),
		CreatedAt: now,
	}
	return nil
}

func (r *RefreshTokens) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rt, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rt
	return &cp, nil
}

func (r *RefreshTokens) Delete(ctx context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.tokens, token)
	return nil
}

func (r *RefreshTokens) DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for token, rt := range r.s.tokens {
		if rt.UserID == userID && rt.Expires.Before(now) {
			delete(r.s.tokens, token)
			n++
		}
	}
	return n, nil
}

// Tasks implements tasks.Repository.
type Tasks struct{ s *Store }

func (r *Tasks) Create(ctx context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tasks[task.ID]; ok {
		return common.ErrorAlreadyExists
	}
	stored := *task
	stored.AssignedTo = idRefs(task.AssigneeIDs())
	stored.CreatedBy = models.UserRef{ID: task.CreatedBy.ID}
	stored.TaskFiles = nil
	stored.CompletionFiles = nil
	stored.Comments = nil
	if task.CompletedDate != nil {
		ts := *task.CompletedDate
		stored.CompletedDate = &ts
	}
	r.s.tasks[task.ID] = &stored
	return nil
}

func (r *Tasks) Get(ctx context.Context, id string) (*models.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tasks[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.s.render(t), nil
}

func (r *Tasks) List(ctx context.Context, q query.Query, scope tasks.Scope) ([]*models.Task, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*models.Task, 0)
	for _, t := range r.s.tasks {
		if scope.UserID != "" && !t.IsCreator(scope.UserID) && !t.IsAssignee(scope.UserID) {
			continue
		}
		if q.Match(t) {
			matched = append(matched, t)
		}
	}
	q.SortTasks(matched)

	page := q.Paginate(matched)
	result := make([]*models.Task, 0, len(page))
	for _, t := range page {
		result = append(result, r.s.render(t))
	}
	return result, int64(len(matched)), nil
}

func (r *Tasks) Update(ctx context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[task.ID]
	if !ok {
		return common.ErrorNotFound
	}
	t.Title = task.Title
	t.Description = task.Description
	t.Status = task.Status
	t.StartDate = task.StartDate
	t.DueDate = task.DueDate
	t.CompletedDate = nil
	if task.CompletedDate != nil {
		ts := *task.CompletedDate
		t.CompletedDate = &ts
	}
	return nil
}

func (r *Tasks) SetAssignees(ctx context.Context, taskID string, userIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[taskID]
	if !ok {
		return common.ErrorNotFound
	}
	t.AssignedTo = idRefs(userIDs)
	return nil
}

func (r *Tasks) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tasks[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

func idRefs(ids []string) []models.UserRef {
	refs := make([]models.UserRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, models.UserRef{ID: id})
	}
	return refs
}

// Files implements files.Repository.
type Files struct{ s *Store }

func (r *Files) Create(ctx context.Context, file *models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[file.TaskID]
	if !ok {
		return common.ErrorNotFound
	}
	stored := *file
	if file.UploadedBy != nil {
		stored.UploadedBy = &models.UserRef{ID: file.UploadedBy.ID}
	}
	if file.Category == models.FileCategoryCompletion {
		t.CompletionFiles = append(t.CompletionFiles, stored)
	} else {
		t.TaskFiles = append(t.TaskFiles, stored)
	}
	return nil
}

func (r *Files) Delete(ctx context.Context, taskID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[taskID]
	if !ok {
		return common.ErrorNotFound
	}
	match := func(f models.File) bool { return f.ID == id }
	if i := slices.IndexFunc(t.TaskFiles, match); i >= 0 {
		t.TaskFiles = slices.Delete(t.TaskFiles, i, i+1)
		return nil
	}
	if i := slices.IndexFunc(t.CompletionFiles, match); i >= 0 {
		t.CompletionFiles = slices.Delete(t.CompletionFiles, i, i+1)
		return nil
	}
	return common.ErrorNotFound
}

// Comments implements comments.Repository.
type Comments struct{ s *Store }

func (r *Comments) Create(ctx context.Context, c *models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[c.TaskID]
	if !ok {
		return common.ErrorNotFound
	}
	stored := *c
	stored.User = models.UserRef{ID: c.User.ID}
	t.Comments = append(t.Comments, stored)
	return nil
}
