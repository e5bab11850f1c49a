// Package models defines the server-side entities persisted in the store
// and rendered by the REST API.
package models

import "time"

// File categories; they also name the middle segment of a blob key.
const (
	FileCategoryTask       = "task"
	FileCategoryCompletion = "completion"
)

// File is the metadata of an uploaded attachment. The content lives in the
// blob area under StorageKey.
type File struct {
	ID           string    `json:"_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Path         string    `json:"path"`
	FileType     string    `json:"fileType"`
	UploadedBy   *UserRef  `json:"uploadedBy,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`

	TaskID     string `json:"-"`
	Category   string `json:"-"`
	StorageKey string `json:"-"`
}

type Comment struct {
	ID        string    `json:"_id"`
	Text      string    `json:"text"`
	User      UserRef   `json:"user"`
	CreatedAt time.Time `json:"createdAt"`

	TaskID string `json:"-"`
}
