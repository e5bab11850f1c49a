package models

import (
	"slices"
	"time"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusOverdue    = "overdue"
)

// TitleMaxLength bounds Task.Title after trimming.
const TitleMaxLength = 100

type Task struct {
	ID              string     `json:"_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	StartDate       time.Time  `json:"startDate"`
	DueDate         time.Time  `json:"dueDate"`
	CompletedDate   *time.Time `json:"completedDate,omitempty"`
	AssignedTo      []UserRef  `json:"assignedTo"`
	CreatedBy       UserRef    `json:"createdBy"`
	TaskFiles       []File     `json:"taskFiles"`
	CompletionFiles []File     `json:"completionFiles"`
	Comments        []Comment  `json:"comments"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ValidStatus reports whether s is a known task status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// IsAssignee reports whether userID is among the assignees.
func (t *Task) IsAssignee(userID string) bool {
	return slices.ContainsFunc(t.AssignedTo, func(r UserRef) bool { return r.ID == userID })
}

func (t *Task) IsCreator(userID string) bool {
	return t.CreatedBy.ID == userID
}

// AssigneeIDs returns the ids of AssignedTo in order.
func (t *Task) AssigneeIDs() []string {
	ids := make([]string, 0, len(t.AssignedTo))
	for _, r := range t.AssignedTo {
		ids = append(ids, r.ID)
	}
	return ids
}

// ApplyOverdue marks a non-completed task whose due date has passed as
// overdue and reports whether the status changed.
func (t *Task) ApplyOverdue(now time.Time) bool {
	if t.Status == StatusCompleted || t.Status == StatusOverdue {
		return false
	}
	if t.DueDate.Before(now) {
		t.Status = StatusOverdue
		return true
	}
	return false
}

// SetStatus changes the status and keeps CompletedDate consistent with it:
// entering completed stamps now, leaving completed clears it.
func (t *Task) SetStatus(status string, now time.Time) {
	switch {
	case status == StatusCompleted && t.Status != StatusCompleted:
		ts := now
		t.CompletedDate = &ts
	case status != StatusCompleted:
		t.CompletedDate = nil
	}
	t.Status = status
}

// FindFile returns the file with id in the given category.
func (t *Task) FindFile(category, id string) (*File, bool) {
	files := t.TaskFiles
	if category == FileCategoryCompletion {
		files = t.CompletionFiles
	}
	for i := range files {
		if files[i].ID == id {
			return &files[i], true
		}
	}
	return nil, false
}
