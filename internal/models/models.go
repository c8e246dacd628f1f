package models

import (
	"math"
	"time"
)

// DefaultMaxMarks applies when a record carries no maximum
const DefaultMaxMarks = 100.0

// VerifiedMarker is the sentinel the source spreadsheet uses for a verified row
const VerifiedMarker = "✅"

// StudentPaperRecord is one (faculty, student, paper) row
type StudentPaperRecord struct {
	ID                 int64    `json:"id" db:"id"`
	SerialNo           string   `json:"serial_no,omitempty" db:"serial_no"`
	Programme          string   `json:"programme,omitempty" db:"programme"`
	Campus             string   `json:"campus,omitempty" db:"campus"`
	Semester           string   `json:"semester,omitempty" db:"semester"`
	RegistrationNumber string   `json:"registration_number" db:"registration_number"`
	StudentName        string   `json:"student_name" db:"student_name"`
	PaperCode          string   `json:"paper_code" db:"paper_code"`
	PaperTitle         string   `json:"paper_title,omitempty" db:"paper_title"`
	Examiner           string   `json:"examiner,omitempty" db:"examiner"`
	FacultyEmail       string   `json:"faculty_email" db:"faculty_email"`
	Exam               string   `json:"exam,omitempty" db:"exam"`
	Credits            string   `json:"credits,omitempty" db:"credits"`
	MaxMarks           *float64 `json:"max_marks,omitempty" db:"max_marks"`
	Marks              *float64 `json:"marks" db:"marks"`
	Verified           bool     `json:"verified" db:"verified"`
}

// EffectiveMaxMarks returns MaxMarks, falling back to fallback (or 100) when absent
func (r *StudentPaperRecord) EffectiveMaxMarks(fallback float64) float64 {
	if r.MaxMarks != nil && *r.MaxMarks > 0 {
		return *r.MaxMarks
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxMarks
}

// HasMarks reports whether marks have been entered
func (r *StudentPaperRecord) HasMarks() bool {
	return r.Marks != nil
}

// Edit request statuses
const (
	RequestStatusPending     = "Pending"
	RequestStatusApproved    = "Approved"
	RequestStatusDisapproved = "Disapproved"
	RequestStatusCompleted   = "Completed"
	// RequestStatusExpired is derived at read time and never stored
	RequestStatusExpired = "Expired"
)

// EditAccessRequest is a faculty request to edit a verified record
type EditAccessRequest struct {
	RequestID            string     `json:"request_id" db:"request_id"`
	FacultyEmail         string     `json:"faculty_email" db:"faculty_email"`
	RegistrationNumber   string     `json:"registration_number" db:"registration_number"`
	StudentName          string     `json:"student_name" db:"student_name"`
	PaperCode            string     `json:"paper_code" db:"paper_code"`
	CurrentMarksSnapshot *float64   `json:"current_marks_snapshot" db:"current_marks_snapshot"`
	RequestTime          time.Time  `json:"request_time" db:"request_time"`
	Status               string     `json:"status" db:"status"`
	ActionNotes          string     `json:"action_notes" db:"action_notes"`
	UnlockUntil          *time.Time `json:"unlock_until,omitempty" db:"unlock_until"`
}

// IsPending checks if request is pending
func (r *EditAccessRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// IsActiveGrant reports an approved request whose unlock window is still open at now
func (r *EditAccessRequest) IsActiveGrant(now time.Time) bool {
	return r.Status == RequestStatusApproved && r.UnlockUntil != nil && r.UnlockUntil.After(now)
}

// EffectiveStatus derives Expired for approved rows whose window has closed
func (r *EditAccessRequest) EffectiveStatus(now time.Time) string {
	if r.Status == RequestStatusApproved && (r.UnlockUntil == nil || !r.UnlockUntil.After(now)) {
		return RequestStatusExpired
	}
	return r.Status
}

// Deadline completion statuses
const (
	CompletionPending   = "Pending"
	CompletionReady     = "Ready for Confirmation"
	CompletionConfirmed = "Confirmed"
)

// FacultyStats aggregates a faculty's records
type FacultyStats struct {
	TotalStudents          int `json:"total_students"`
	StudentsWithMarks      int `json:"students_with_marks"`
	StudentsVerified       int `json:"students_verified"`
	CompletionPercentage   int `json:"completion_percentage"`
	VerificationPercentage int `json:"verification_percentage"`
}

// NewFacultyStats fills in the rounded percentages
func NewFacultyStats(total, withMarks, verified int) FacultyStats {
	s := FacultyStats{
		TotalStudents:     total,
		StudentsWithMarks: withMarks,
		StudentsVerified:  verified,
	}
	if total > 0 {
		s.CompletionPercentage = int(math.Round(float64(withMarks) / float64(total) * 100))
		s.VerificationPercentage = int(math.Round(float64(verified) / float64(total) * 100))
	}
	return s
}

// FacultyDeadline tracks one faculty's due date and reminder cadence
type FacultyDeadline struct {
	FacultyEmail            string     `json:"faculty_email" db:"faculty_email"`
	DueDate                 time.Time  `json:"due_date" db:"due_date"`
	TotalStudents           int        `json:"total_students" db:"total_students"`
	StudentsWithMarks       int        `json:"students_with_marks" db:"students_with_marks"`
	StudentsVerified        int        `json:"students_verified" db:"students_verified"`
	CompletionStatus        string     `json:"completion_status" db:"completion_status"`
	LastReminderSent        *time.Time `json:"last_reminder_sent,omitempty" db:"last_reminder_sent"`
	ReminderCount           int        `json:"reminder_count" db:"reminder_count"`
	CompletionConfirmedDate *time.Time `json:"completion_confirmed_date,omitempty" db:"completion_confirmed_date"`
	Notes                   string     `json:"notes" db:"notes"`
}

// Stats returns the cached totals as FacultyStats
func (d *FacultyDeadline) Stats() FacultyStats {
	return NewFacultyStats(d.TotalStudents, d.StudentsWithMarks, d.StudentsVerified)
}

// Email log types
const (
	EmailTypeOTP                 = "OTP_EMAIL"
	EmailTypeEditRequest         = "EDIT_REQUEST"
	EmailTypeEditApproval        = "EDIT_APPROVAL"
	EmailTypeEditDisapproval     = "EDIT_DISAPPROVAL"
	EmailTypeDeadlineReminder    = "DEADLINE_REMINDER"
	EmailTypeCompletionConfirmed = "COMPLETION_CONFIRMATION"
	EmailTypeAdminCompletion     = "ADMIN_COMPLETION_NOTIFICATION"
	EmailTypePendingDigest       = "PENDING_DIGEST"
	EmailTypeAdminSelectiveAlert = "ADMIN_SELECTIVE_ALERT"
)

// EmailStatusSuccess marks a delivered notification
const EmailStatusSuccess = "SUCCESS"

// EmailLog records one notification attempt
type EmailLog struct {
	ID        int64     `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Recipient string    `json:"recipient" db:"recipient"`
	Subject   string    `json:"subject" db:"subject"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         int64     `json:"id" db:"id"`
	ActorEmail string    `json:"actor_email,omitempty" db:"actor_email"`
	Action     string    `json:"action" db:"action"`
	Resource   string    `json:"resource" db:"resource"`
	Details    string    `json:"details,omitempty" db:"details"`
	IPAddress  string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PaperSummary is one paper-code group of the completion report
type PaperSummary struct {
	PaperCode         string   `json:"paper_code"`
	PaperTitle        string   `json:"paper_title"`
	Programme         string   `json:"programme"`
	Semester          string   `json:"semester"`
	Exam              string   `json:"exam"`
	Credits           string   `json:"credits"`
	MaxMarks          float64  `json:"max_marks"`
	TotalStudents     int      `json:"total_students"`
	StudentsWithMarks int      `json:"students_with_marks"`
	StudentsVerified  int      `json:"students_verified"`
	FacultyEmails     []string `json:"faculty_emails"`
	FacultyNames      []string `json:"faculty_names"`
}

// CompletionReport is the paper-wise breakdown sent on global completion
type CompletionReport struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	FacultyCount  int            `json:"faculty_count"`
	TotalStudents int            `json:"total_students"`
	TotalVerified int            `json:"total_verified"`
	WithMarks     int            `json:"total_with_marks"`
	Complete      bool           `json:"complete"`
	Papers        []PaperSummary `json:"papers"`
}
