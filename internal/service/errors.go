package service

import (
	"errors"

	"marks-access/internal/email"
)

// Validation errors
var (
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrInvalidRegd    = errors.New("invalid registration number")
	ErrInvalidMarks   = errors.New("marks out of range")
	ErrMarksRequired  = errors.New("marks must be entered before verification")
	ErrReasonRequired = errors.New("a reason is required")
	ErrInvalidDate    = errors.New("invalid date")
)

// State errors
var (
	ErrInvalidStatus = errors.New("invalid status for this action")
	ErrNotFound      = errors.New("not found")
	ErrNotOwned      = errors.New("student is not assigned to this faculty")
	ErrRecordLocked  = errors.New("record is verified and locked")
	ErrStatusChanged = errors.New("record changed concurrently")
)

// Resource errors
var (
	ErrQuotaExceeded    = email.ErrQuotaExceeded
	ErrStoreUnavailable = errors.New("store unavailable")
)
