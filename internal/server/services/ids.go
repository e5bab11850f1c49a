package services

import (
	"fmt"

	"github.com/google/uuid"
)

// newID returns a time-ordered UUIDv7 string.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("error generating id: %w", err)
	}
	return id.String(), nil
}

// validID reports whether s can name a stored entity. Anything that is not
// a UUID cannot, and callers answer it with not found.
func validID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
