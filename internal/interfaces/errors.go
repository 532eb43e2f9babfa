package interfaces

import "errors"

// Storage-level sentinel errors shared across services and handlers
var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrNoActiveProfile  = errors.New("no active profile")
	ErrProfileInUse     = errors.New("profile is in use")
	ErrDuplicateProfile = errors.New("profile name already exists")
	ErrTaskNotFound     = errors.New("task not found")
)
