package models

import "errors"

// Errors shared between the stores and the services
var (
	// ErrDuplicateRequest is returned when a pair already has a Pending request
	ErrDuplicateRequest = errors.New("a pending request already exists for this student")
	// ErrCorruptValue is returned when a stored value exists but cannot be decoded
	ErrCorruptValue = errors.New("stored value is corrupt")
)
