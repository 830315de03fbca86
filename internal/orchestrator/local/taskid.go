package local

import "github.com/google/uuid"

// newTaskID mints a random UUID task identifier.
func newTaskID() string {
	return uuid.New().String()
}
