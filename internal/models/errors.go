package models

import "errors"

// Validation errors for task prompts.
var (
	ErrMissingRepositoryURL = errors.New("repository_url is required")
	ErrMissingDescription   = errors.New("description is required")
)
