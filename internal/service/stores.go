package service

import (
	"context"
	"time"

	"marks-access/internal/email"
	"marks-access/internal/models"
)

// RecordStore is the student-paper table the core reads and conditionally writes.
// Conditional writes report applied=false when the row no longer matches the
// state the caller observed.
type RecordStore interface {
	ListAll(ctx context.Context) ([]models.StudentPaperRecord, error)
	ListByFaculty(ctx context.Context, facultyEmail string) ([]models.StudentPaperRecord, error)
	ListByRegistrationNumber(ctx context.Context, regd string) ([]models.StudentPaperRecord, error)
	UpdateMarks(ctx context.Context, id int64, marks float64, expectVerified bool) (bool, error)
	MarkVerified(ctx context.Context, id int64) (bool, error)
	Upsert(ctx context.Context, rec *models.StudentPaperRecord) error
}

// EditRequestStore is the edit-access request ledger
type EditRequestStore interface {
	Create(ctx context.Context, req *models.EditAccessRequest) error
	// GetByID returns nil, nil when the request does not exist
	GetByID(ctx context.Context, requestID string) (*models.EditAccessRequest, error)
	// List returns every request, or only those in status when it is non-empty
	List(ctx context.Context, status string) ([]models.EditAccessRequest, error)
	ListByFaculty(ctx context.Context, facultyEmail string) ([]models.EditAccessRequest, error)
	// TransitionFromPending moves a Pending request to status and appends note.
	// Returns false when the request was no longer Pending.
	TransitionFromPending(ctx context.Context, requestID, status, note string, unlockUntil *time.Time) (bool, error)
	// RelockApproved completes every Approved request for the pair and returns how many changed
	RelockApproved(ctx context.Context, facultyEmail, regd string, unlockUntil time.Time, note string) (int64, error)
}

// DeadlineStore holds one FacultyDeadline per faculty
type DeadlineStore interface {
	Upsert(ctx context.Context, d *models.FacultyDeadline) error
	// Get returns nil, nil when no deadline is set
	Get(ctx context.Context, facultyEmail string) (*models.FacultyDeadline, error)
	List(ctx context.Context) ([]models.FacultyDeadline, error)
	UpdateStats(ctx context.Context, facultyEmail string, stats models.FacultyStats) error
	UpdateStatus(ctx context.Context, facultyEmail, from, to string) (bool, error)
	RecordReminder(ctx context.Context, facultyEmail string, sentAt time.Time) error
	// Confirm returns false when the deadline was already Confirmed
	Confirm(ctx context.Context, facultyEmail string, at time.Time) (bool, error)
}

// PropertyStore is durable process-wide key/value storage
type PropertyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetIfAbsent writes value only when key is unset and reports whether it did
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// AuditStore persists administrator actions
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
}

// Notifier delivers portal notifications. Every send counts against a daily quota.
type Notifier interface {
	SendOTP(ctx context.Context, to, otp string) error
	SendEditRequestNotification(ctx context.Context, facultyEmail string, items []email.EditRequestItem) error
	SendEditApproval(ctx context.Context, req *models.EditAccessRequest) error
	SendEditDisapproval(ctx context.Context, req *models.EditAccessRequest, reason string) error
	SendDeadlineReminder(ctx context.Context, reminder email.Reminder) error
	SendCompletionConfirmation(ctx context.Context, to string, stats models.FacultyStats) error
	SendAdminCompletionReport(ctx context.Context, report *models.CompletionReport) error
	SendPendingDigest(ctx context.Context, requests []models.EditAccessRequest) error
	SendAdminSelectiveAlert(ctx context.Context, skipped []email.SkippedFaculty, totalFaculty int) error
	RemainingQuota(ctx context.Context) (int, error)
}
