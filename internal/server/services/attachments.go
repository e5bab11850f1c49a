package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/blob"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

// Upload is one file of a multipart batch.
type Upload struct {
	Name    string
	Size    int64
	Content io.ReadSeeker
}

// AttachFiles stores a batch of uploads under category and appends their
// metadata to the task. The batch is all or nothing: a disallowed
// extension rejects it before anything is written, and a failed write
// removes the blobs already stored.
func (s *TaskService) AttachFiles(ctx context.Context, actor models.Actor, id, category string, uploads []Upload) (*models.Task, error) {
	task, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	switch category {
	case models.FileCategoryTask:
		if !actor.IsAdmin() && !task.IsCreator(actor.ID) {
			return nil, common.Errorf(common.ErrorForbidden, "only the task creator can add task files")
		}
	case models.FileCategoryCompletion:
		if !actor.IsAdmin() && !task.IsAssignee(actor.ID) {
			return nil, common.Errorf(common.ErrorForbidden, "only assigned users can add completion files")
		}
	default:
		return nil, common.Errorf(common.ErrorValidation, "unknown file category %q", category)
	}

	if len(uploads) == 0 {
		return nil, common.Errorf(common.ErrorValidation, "please upload a file")
	}
	for _, u := range uploads {
		if !blob.IsAllowed(u.Name) {
			return nil, common.Errorf(common.ErrorValidation, "file type not allowed: %s", blob.BaseName(u.Name))
		}
	}

	now := s.now()
	records := make([]*models.File, 0, len(uploads))
	written := make([]string, 0, len(uploads))
	used := make(map[string]bool, len(uploads))

	for i, u := range uploads {
		// same-millisecond duplicates within one batch get the next free stamp
		stamp := now
		name := blob.StoredName(stamp, u.Name)
		for used[name] {
			stamp = stamp.Add(time.Millisecond)
			name = blob.StoredName(stamp, u.Name)
		}
		used[name] = true

		key := blob.Key(task.ID, category, name)
		if err := s.blobs.Put(ctx, key, u.Content, u.Size, blob.ContentType(u.Name)); err != nil {
			s.discard(ctx, written)
			return nil, fmt.Errorf("error storing file %d: %w", i, err)
		}
		written = append(written, key)

		fid, err := newID()
		if err != nil {
			s.discard(ctx, written)
			return nil, err
		}
		f := &models.File{
			ID:           fid,
			Filename:     name,
			OriginalName: blob.BaseName(u.Name),
			Path:         blob.PublicPath(key),
			FileType:     blob.FileType(u.Name),
			UploadedAt:   now,
			TaskID:       task.ID,
			Category:     category,
			StorageKey:   key,
		}
		if category == models.FileCategoryCompletion {
			f.UploadedBy = &models.UserRef{ID: actor.ID}
		}
		records = append(records, f)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)
		for _, f := range records {
			if err := repo.Create(ctx, f); err != nil {
				return err
			}
		}
		return s.saveOverdue(ctx, tx, task, now)
	})
	if err != nil {
		s.discard(ctx, written)
		return nil, fmt.Errorf("error saving file metadata: %w", err)
	}

	s.log.Info(ctx, "files attached", "task_id", task.ID, "category", category, "count", len(records))
	return s.reload(ctx, task.ID)
}

// RemoveFile deletes one file of category from the task. Task files may be
// removed by the creator, completion files by their uploader.
func (s *TaskService) RemoveFile(ctx context.Context, actor models.Actor, id, category, fileID string) (*models.Task, error) {
	task, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if category == models.FileCategoryTask && !actor.IsAdmin() && !task.IsCreator(actor.ID) {
		return nil, common.Errorf(common.ErrorForbidden, "only the task creator can remove task files")
	}
	if category != models.FileCategoryTask && category != models.FileCategoryCompletion {
		return nil, common.Errorf(common.ErrorValidation, "unknown file category %q", category)
	}

	f, ok := task.FindFile(category, fileID)
	if !ok {
		return nil, common.Errorf(common.ErrorNotFound, "file not found with id %s", fileID)
	}
	if category == models.FileCategoryCompletion && !actor.IsAdmin() &&
		(f.UploadedBy == nil || f.UploadedBy.ID != actor.ID) {
		return nil, common.Errorf(common.ErrorForbidden, "only the uploader can remove this file")
	}

	if err := s.blobs.Delete(ctx, f.StorageKey); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error deleting file: %w", err)
	}

	now := s.now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Delete(ctx, task.ID, f.ID); err != nil {
			return err
		}
		return s.saveOverdue(ctx, tx, task, now)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Errorf(common.ErrorNotFound, "file not found with id %s", fileID)
		}
		return nil, fmt.Errorf("error removing file metadata: %w", err)
	}
	return s.reload(ctx, task.ID)
}

// discard removes blobs written by a failed batch.
func (s *TaskService) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.Warn(ctx, "could not remove blob of failed upload", "key", key, "error", err)
		}
	}
}
