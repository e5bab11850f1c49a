package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/blob"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	users *UserService
	tasks *TaskService
	root  string

	admin, creator, u1, u2, outsider models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	rm := repomanager.NewInMemoryRepositoryManager()
	root := t.TempDir()
	store, err := blob.NewLocalStore(root)
	require.NoError(t, err)

	f := &fixture{
		users: newUserService(t, dbx.NoTx{}, rm),
		tasks: NewTaskService(dbx.NoTx{}, rm, store, logging.NewNopLogger()),
		root:  root,
	}

	mk := func(name, role string) models.Actor {
		u, err := f.users.CreateUser(ctx, NewUser{Name: name, Email: name + "@example.com", Password: "secret1", Role: role})
		require.NoError(t, err)
		return models.Actor{ID: u.ID, Role: u.Role}
	}
	f.admin = mk("admin", models.RoleAdmin)
	f.creator = mk("creator", models.RoleUser)
	f.u1 = mk("u1", models.RoleUser)
	f.u2 = mk("u2", models.RoleUser)
	f.outsider = mk("outsider", models.RoleUser)
	return f
}

func (f *fixture) create(t *testing.T, actor models.Actor, due string, assignees ...models.Actor) *models.Task {
	t.Helper()
	ids := make([]string, 0, len(assignees))
	for _, a := range assignees {
		ids = append(ids, a.ID)
	}
	task, err := f.tasks.Create(context.Background(), actor, CreateTaskInput{
		Title:       "  Write report  ",
		Description: "quarterly",
		StartDate:   today(),
		DueDate:     due,
		AssignedTo:  ids,
	})
	require.NoError(t, err)
	return task
}

func today() string { return time.Now().Format(time.RFC3339) }

func future() string { return time.Now().Add(48 * time.Hour).Format(time.RFC3339) }

func upload(name, body string) Upload {
	return Upload{Name: name, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestCreate_PopulatesAndValidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task := f.create(t, f.creator, future(), f.u1, f.u2, f.u1)
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Nil(t, task.CompletedDate)
	assert.Equal(t, "creator", task.CreatedBy.Name)
	require.Len(t, task.AssignedTo, 2)
	assert.Equal(t, "u1@example.com", task.AssignedTo[0].Email)
	assert.False(t, task.StartDate.IsZero())

	tests := []struct {
		name string
		in   CreateTaskInput
		kind error
	}{
		{"blank title", CreateTaskInput{StartDate: today(), Title: "  ", Description: "d", DueDate: future(), AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"long title", CreateTaskInput{StartDate: today(), Title: strings.Repeat("x", 101), Description: "d", DueDate: future(), AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"no description", CreateTaskInput{StartDate: today(), Title: "t", DueDate: future(), AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"no start date", CreateTaskInput{Title: "t", Description: "d", DueDate: future(), AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"bad start date", CreateTaskInput{Title: "t", Description: "d", StartDate: "soon", DueDate: future(), AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"no due date", CreateTaskInput{StartDate: today(), Title: "t", Description: "d", AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"bad due date", CreateTaskInput{StartDate: today(), Title: "t", Description: "d", DueDate: "tomorrow", AssignedTo: []string{f.u1.ID}}, common.ErrorValidation},
		{"no assignees", CreateTaskInput{StartDate: today(), Title: "t", Description: "d", DueDate: future()}, common.ErrorValidation},
		{"unknown assignee", CreateTaskInput{StartDate: today(), Title: "t", Description: "d", DueDate: future(), AssignedTo: []string{"00000000-0000-7000-8000-000000000000"}}, common.ErrorNotFound},
		{"malformed assignee", CreateTaskInput{StartDate: today(), Title: "t", Description: "d", DueDate: future(), AssignedTo: []string{"bob"}}, common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.Create(ctx, f.creator, tt.in)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}

	_, err := f.tasks.Create(ctx, f.creator, CreateTaskInput{
		Title: strings.Repeat("é", 100), Description: "d", StartDate: "2099-01-01", DueDate: "2099-01-01", AssignedTo: []string{f.u1.ID},
	})
	assert.NoError(t, err, "100 multi-byte characters fit")
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	past := time.Now().Add(-24 * time.Hour).Format("2006-01-02")
	task := f.create(t, f.admin, past, f.u1, f.u2)
	assert.Equal(t, models.StatusOverdue, task.Status)

	got, err := f.tasks.Get(ctx, f.u1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)

	started, err := f.tasks.Start(ctx, f.u1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)

	_, err = f.tasks.Start(ctx, f.u2, task.ID)
	assert.True(t, errors.Is(err, common.ErrorConflict))
	assert.Contains(t, common.Message(err), models.StatusInProgress)

	done, err := f.tasks.Complete(ctx, f.u2, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedDate)

	_, err = f.tasks.Complete(ctx, f.u1, task.ID)
	assert.True(t, errors.Is(err, common.ErrorConflict))

	commented, err := f.tasks.AddComment(ctx, f.u1, task.ID, " done ")
	require.NoError(t, err)
	require.Len(t, commented.Comments, 1)
	assert.Equal(t, "done", commented.Comments[0].Text)
	assert.Equal(t, "u1", commented.Comments[0].User.Name)
	assert.Equal(t, models.StatusCompleted, commented.Status, "completed tasks never become overdue")
}

func TestStartComplete_Permissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	_, err := f.tasks.Start(ctx, f.creator, task.ID)
	assert.True(t, errors.Is(err, common.ErrorForbidden), "creator who is not assigned")

	_, err = f.tasks.Complete(ctx, f.outsider, task.ID)
	assert.True(t, errors.Is(err, common.ErrorNotFound), "unreadable task")

	done, err := f.tasks.Complete(ctx, f.admin, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
}

func TestReadVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)
	f.create(t, f.u2, future(), f.u2)

	for _, a := range []models.Actor{f.creator, f.u1, f.admin} {
		_, err := f.tasks.Get(ctx, a, task.ID)
		assert.NoError(t, err)
	}

	_, err := f.tasks.Get(ctx, f.outsider, task.ID)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	_, err = f.tasks.AddComment(ctx, f.outsider, task.ID, "hi")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	_, err = f.tasks.Get(ctx, f.admin, "not-a-uuid")
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	list, total, err := f.tasks.List(ctx, f.u1, query.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].ID)

	list, total, err = f.tasks.List(ctx, f.outsider, query.Default())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	_, total, err = f.tasks.List(ctx, f.admin, query.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestListCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.create(t, f.creator, future(), f.u1)
	second := f.create(t, f.creator, future(), f.u1)
	f.create(t, f.creator, future(), f.u1)

	_, err := f.tasks.Complete(ctx, f.u1, first.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.tasks.Complete(ctx, f.u1, second.ID)
	require.NoError(t, err)

	list, total, err := f.tasks.ListCompleted(ctx, f.creator, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	title := "New title"
	_, err := f.tasks.Update(ctx, f.u1, task.ID, UpdateTaskInput{Title: &title})
	assert.True(t, errors.Is(err, common.ErrorForbidden), "assignee may not use generic update")

	completed := models.StatusCompleted
	assignees := []string{f.u2.ID}
	updated, err := f.tasks.Update(ctx, f.creator, task.ID, UpdateTaskInput{
		Title:      &title,
		Status:     &completed,
		AssignedTo: &assignees,
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "quarterly", updated.Description)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedDate)
	require.Len(t, updated.AssignedTo, 1)
	assert.Equal(t, f.u2.ID, updated.AssignedTo[0].ID)

	pending := models.StatusPending
	reopened, err := f.tasks.Update(ctx, f.admin, task.ID, UpdateTaskInput{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reopened.Status)
	assert.Nil(t, reopened.CompletedDate)

	past := "2000-01-01"
	overdue, err := f.tasks.Update(ctx, f.creator, task.ID, UpdateTaskInput{DueDate: &past})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, overdue.Status)

	bogus := "done"
	_, err = f.tasks.Update(ctx, f.creator, task.ID, UpdateTaskInput{Status: &bogus})
	assert.True(t, errors.Is(err, common.ErrorValidation))

	empty := []string{}
	_, err = f.tasks.Update(ctx, f.creator, task.ID, UpdateTaskInput{AssignedTo: &empty})
	assert.True(t, errors.Is(err, common.ErrorValidation))
}

func TestDelete_RemovesBlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	_, err := f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask, []Upload{upload("a.pdf", "%PDF")})
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(f.root, task.ID))

	err = f.tasks.Delete(ctx, f.u1, task.ID)
	assert.True(t, errors.Is(err, common.ErrorForbidden))

	require.NoError(t, f.tasks.Delete(ctx, f.creator, task.ID))
	assert.NoDirExists(t, filepath.Join(f.root, task.ID))

	_, err = f.tasks.Get(ctx, f.admin, task.ID)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestAttachFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	got, err := f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask,
		[]Upload{upload("brief.PDF", "%PDF"), upload("dir/photo.png", "png")})
	require.NoError(t, err)
	require.Len(t, got.TaskFiles, 2)

	first := got.TaskFiles[0]
	assert.Equal(t, "brief.PDF", first.OriginalName)
	assert.Equal(t, "pdf", first.FileType)
	assert.True(t, strings.HasSuffix(first.Filename, "-brief.PDF"))
	assert.Equal(t, "/uploads/"+task.ID+"/task/"+first.Filename, first.Path)
	assert.Nil(t, first.UploadedBy)
	assert.Equal(t, "photo.png", got.TaskFiles[1].OriginalName)

	b, err := os.ReadFile(filepath.Join(f.root, task.ID, "task", first.Filename))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(b))

	_, err = f.tasks.AttachFiles(ctx, f.u1, task.ID, models.FileCategoryTask, []Upload{upload("a.pdf", "x")})
	assert.True(t, errors.Is(err, common.ErrorForbidden), "assignee may not add task files")

	_, err = f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryCompletion, []Upload{upload("a.pdf", "x")})
	assert.True(t, errors.Is(err, common.ErrorForbidden), "creator who is not assigned")

	done, err := f.tasks.AttachFiles(ctx, f.u1, task.ID, models.FileCategoryCompletion, []Upload{upload("proof.jpg", "jpg")})
	require.NoError(t, err)
	require.Len(t, done.CompletionFiles, 1)
	require.NotNil(t, done.CompletionFiles[0].UploadedBy)
	assert.Equal(t, "u1", done.CompletionFiles[0].UploadedBy.Name)

	_, err = f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask, nil)
	assert.True(t, errors.Is(err, common.ErrorValidation))
}

func TestAttachFiles_RejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	_, err := f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask,
		[]Upload{upload("ok.pdf", "%PDF"), upload("evil.exe", "MZ")})
	require.True(t, errors.Is(err, common.ErrorValidation))
	assert.Contains(t, common.Message(err), "evil.exe")

	assert.NoDirExists(t, filepath.Join(f.root, task.ID))
	got, err := f.tasks.Get(ctx, f.creator, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TaskFiles)
}

func TestAttachFiles_SameNameInOneBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	got, err := f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask,
		[]Upload{upload("a.csv", "1"), upload("a.csv", "2")})
	require.NoError(t, err)
	require.Len(t, got.TaskFiles, 2)
	assert.NotEqual(t, got.TaskFiles[0].Filename, got.TaskFiles[1].Filename)
}

// failingStore fails the Put call with index failAt and records deletes.
type failingStore struct {
	blob.Store
	puts    int
	failAt  int
	deleted []string
}

func (s *failingStore) Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string) error {
	s.puts++
	if s.puts-1 == s.failAt {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, r, size, contentType)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return s.Store.Delete(ctx, key)
}

func TestAttachFiles_CompensatesFailedBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	fs := &failingStore{Store: f.tasks.blobs, failAt: 1}
	f.tasks.blobs = fs

	_, err := f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask,
		[]Upload{upload("a.pdf", "1"), upload("b.pdf", "2")})
	require.ErrorContains(t, err, "disk full")
	require.Len(t, fs.deleted, 1)

	entries, err := os.ReadDir(filepath.Join(f.root, task.ID, "task"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, err := f.tasks.Get(ctx, f.creator, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TaskFiles)
}

func TestRemoveFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1, f.u2)

	withTask, err := f.tasks.AttachFiles(ctx, f.creator, task.ID, models.FileCategoryTask, []Upload{upload("a.pdf", "1")})
	require.NoError(t, err)
	withDone, err := f.tasks.AttachFiles(ctx, f.u1, task.ID, models.FileCategoryCompletion, []Upload{upload("b.png", "2")})
	require.NoError(t, err)

	taskFile := withTask.TaskFiles[0]
	doneFile := withDone.CompletionFiles[0]

	_, err = f.tasks.RemoveFile(ctx, f.u1, task.ID, models.FileCategoryTask, taskFile.ID)
	assert.True(t, errors.Is(err, common.ErrorForbidden))

	_, err = f.tasks.RemoveFile(ctx, f.u2, task.ID, models.FileCategoryCompletion, doneFile.ID)
	assert.True(t, errors.Is(err, common.ErrorForbidden), "assignee who did not upload")

	_, err = f.tasks.RemoveFile(ctx, f.creator, task.ID, models.FileCategoryCompletion, "missing")
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	got, err := f.tasks.RemoveFile(ctx, f.u1, task.ID, models.FileCategoryCompletion, doneFile.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CompletionFiles)
	assert.NoFileExists(t, filepath.Join(f.root, doneFile.StorageKey))

	// a blob that is already gone does not block removing the metadata
	require.NoError(t, os.Remove(filepath.Join(f.root, taskFile.StorageKey)))
	got, err = f.tasks.RemoveFile(ctx, f.creator, task.ID, models.FileCategoryTask, taskFile.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TaskFiles)
}

func TestDeletedUserKeepsReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.create(t, f.creator, future(), f.u1)

	require.NoError(t, f.users.Delete(ctx, f.admin, f.u1.ID))

	got, err := f.tasks.Get(ctx, f.creator, task.ID)
	require.NoError(t, err)
	require.Len(t, got.AssignedTo, 1)
	assert.Equal(t, models.UserRef{ID: f.u1.ID}, got.AssignedTo[0])
}
