package common

import (
	"github.com/google/uuid"
)

// NewProfileID generates a unique profile ID with the "prof_" prefix
func NewProfileID() string {
	return "prof_" + uuid.New().String()
}

// NewTaskID generates a unique render task ID with the "task_" prefix
func NewTaskID() string {
	return "task_" + uuid.New().String()
}
