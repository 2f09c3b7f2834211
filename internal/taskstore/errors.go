package taskstore

import "errors"

// Sentinel errors for task store operations.
var (
	ErrNotFound      = errors.New("task not found")
	ErrDuplicateID   = errors.New("task id already exists")
	ErrBadTransition = errors.New("invalid task status transition")
)
