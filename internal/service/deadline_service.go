package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marks-access/internal/email"
	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

// DeadlineService tracks per-faculty due dates, reminders and confirmation
type DeadlineService struct {
	deadlines  DeadlineStore
	records    RecordStore
	otp        *OTPService
	notifier   Notifier
	completion *CompletionService
	now        func() time.Time

	pollMu sync.Mutex
}

// NewDeadlineService creates a new deadline service
func NewDeadlineService(deadlines DeadlineStore, records RecordStore, otp *OTPService, notifier Notifier, completion *CompletionService) *DeadlineService {
	return &DeadlineService{
		deadlines:  deadlines,
		records:    records,
		otp:        otp,
		notifier:   notifier,
		completion: completion,
		now:        time.Now,
	}
}

// DeadlineView is a deadline with live stats
type DeadlineView struct {
	models.FacultyDeadline
	Stats         models.FacultyStats `json:"stats"`
	DaysRemaining int                 `json:"days_remaining"`
}

// PollSummary reports one sweep over all deadlines. CompletionChecks counts
// faculty promoted to Ready for Confirmation during the sweep.
type PollSummary struct {
	ProcessedCount   int              `json:"processed_count"`
	SkippedCount     int              `json:"skipped_count"`
	RemindersSent    int              `json:"reminders_sent"`
	CompletionChecks int              `json:"completion_checks"`
	Completion       *CompletionCheck `json:"completion,omitempty"`
	Errors           []string         `json:"errors"`
}

// ReminderOptions supplies values sendReminder would otherwise look up
type ReminderOptions struct {
	DueDate       *time.Time
	Stats         *models.FacultyStats
	ReminderCount int
}

// ReminderResult reports whether a reminder went out
type ReminderResult struct {
	Sent        bool   `json:"sent"`
	DaysPastDue int    `json:"days_past_due"`
	Message     string `json:"message"`
}

// ConfirmOutcome reports a completion confirmation
type ConfirmOutcome struct {
	AlreadyConfirmed  bool   `json:"already_confirmed"`
	NotificationError string `json:"notification_error,omitempty"`
}

// ComputeStats aggregates a faculty's records
func (s *DeadlineService) ComputeStats(ctx context.Context, facultyEmail string) (models.FacultyStats, error) {
	records, err := s.records.ListByFaculty(ctx, validator.SanitizeEmail(facultyEmail))
	if err != nil {
		return models.FacultyStats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return statsOf(records), nil
}

// SetDeadline creates or resets a faculty's deadline
func (s *DeadlineService) SetDeadline(ctx context.Context, facultyEmail string, dueDate time.Time, notes string) (*DeadlineView, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}
	if dueDate.IsZero() {
		return nil, ErrInvalidDate
	}

	stats, err := s.ComputeStats(ctx, facultyEmail)
	if err != nil {
		return nil, err
	}

	d := &models.FacultyDeadline{
		FacultyEmail:      facultyEmail,
		DueDate:           dateOf(dueDate),
		TotalStudents:     stats.TotalStudents,
		StudentsWithMarks: stats.StudentsWithMarks,
		StudentsVerified:  stats.StudentsVerified,
		CompletionStatus:  models.CompletionPending,
		Notes:             strings.TrimSpace(notes),
	}
	if err := s.deadlines.Upsert(ctx, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	slog.Info("Deadline set", "faculty_email", facultyEmail, "due_date", d.DueDate.Format(time.DateOnly))
	return s.view(*d, stats), nil
}

// GetDeadline returns a faculty's deadline with live stats
func (s *DeadlineService) GetDeadline(ctx context.Context, facultyEmail string) (*DeadlineView, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}

	d, err := s.deadlines.Get(ctx, facultyEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: no deadline for %s", ErrNotFound, facultyEmail)
	}

	stats, err := s.ComputeStats(ctx, facultyEmail)
	if err != nil {
		return nil, err
	}
	return s.view(*d, stats), nil
}

// ListDeadlines returns every deadline with its cached stats
func (s *DeadlineService) ListDeadlines(ctx context.Context) ([]DeadlineView, error) {
	deadlines, err := s.deadlines.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	views := make([]DeadlineView, 0, len(deadlines))
	for _, d := range deadlines {
		views = append(views, *s.view(d, d.Stats()))
	}
	return views, nil
}

func (s *DeadlineService) view(d models.FacultyDeadline, stats models.FacultyStats) *DeadlineView {
	return &DeadlineView{
		FacultyDeadline: d,
		Stats:           stats,
		DaysRemaining:   daysBetween(s.now(), d.DueDate),
	}
}

// Poll refreshes every deadline, promotes finished faculty, reminds overdue
// ones at most once per calendar day, then evaluates global completion.
// Concurrent calls in this process run one after another.
func (s *DeadlineService) Poll(ctx context.Context) (*PollSummary, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	deadlines, err := s.deadlines.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	summary := &PollSummary{Errors: []string{}}
	today := dateOf(s.now())

	for _, d := range deadlines {
		if d.CompletionStatus == models.CompletionConfirmed {
			summary.SkippedCount++
			continue
		}
		facultyEmail := validator.SanitizeEmail(d.FacultyEmail)
		if !validator.IsValidEmail(facultyEmail) {
			summary.SkippedCount++
			continue
		}

		stats, err := s.ComputeStats(ctx, facultyEmail)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", facultyEmail, err))
			continue
		}
		if err := s.deadlines.UpdateStats(ctx, facultyEmail, stats); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", facultyEmail, err))
			continue
		}

		status := d.CompletionStatus
		if status == models.CompletionPending && stats.TotalStudents > 0 && stats.StudentsWithMarks == stats.TotalStudents {
			ok, err := s.deadlines.UpdateStatus(ctx, facultyEmail, models.CompletionPending, models.CompletionReady)
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", facultyEmail, err))
			} else if ok {
				status = models.CompletionReady
				summary.CompletionChecks++
				slog.Info("Deadline ready for confirmation", "faculty_email", facultyEmail)
			}
		}

		if s.reminderDue(d, status, today) {
			due := d.DueDate
			result, err := s.SendReminder(ctx, facultyEmail, ReminderOptions{
				DueDate:       &due,
				Stats:         &stats,
				ReminderCount: d.ReminderCount + 1,
			})
			switch {
			case err != nil:
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: reminder failed: %v", facultyEmail, err))
			case result.Sent:
				if err := s.deadlines.RecordReminder(ctx, facultyEmail, s.now()); err != nil {
					summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", facultyEmail, err))
				}
				summary.RemindersSent++
			}
		}

		summary.ProcessedCount++
	}

	check, err := s.completion.Evaluate(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("completion check: %v", err))
	}
	summary.Completion = check

	slog.Info("Deadline poll finished",
		"processed", summary.ProcessedCount,
		"skipped", summary.SkippedCount,
		"reminders", summary.RemindersSent,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

func (s *DeadlineService) reminderDue(d models.FacultyDeadline, status string, today time.Time) bool {
	if status == models.CompletionReady || status == models.CompletionConfirmed {
		return false
	}
	if !today.After(dateOf(d.DueDate)) {
		return false
	}
	return d.LastReminderSent == nil || dateOf(*d.LastReminderSent).Before(today)
}

// SendReminder mails an overdue reminder with the faculty's access code.
// Missing options are looked up; a deadline that is not yet past is a no-op.
func (s *DeadlineService) SendReminder(ctx context.Context, facultyEmail string, opts ReminderOptions) (*ReminderResult, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}

	dueDate := opts.DueDate
	if dueDate == nil {
		d, err := s.deadlines.Get(ctx, facultyEmail)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if d == nil {
			return nil, fmt.Errorf("%w: no deadline for %s", ErrNotFound, facultyEmail)
		}
		dueDate = &d.DueDate
	}

	daysPastDue := daysBetween(*dueDate, s.now())
	if daysPastDue <= 0 {
		return &ReminderResult{DaysPastDue: daysPastDue, Message: "Deadline has not passed"}, nil
	}

	var stats models.FacultyStats
	if opts.Stats != nil {
		stats = *opts.Stats
	} else {
		computed, err := s.ComputeStats(ctx, facultyEmail)
		if err != nil {
			return nil, err
		}
		stats = computed
	}

	count := opts.ReminderCount
	if count <= 0 {
		count = 1
	}

	code, err := s.otp.ResolveOrMint(ctx, facultyEmail)
	if err != nil {
		return nil, err
	}

	err = s.notifier.SendDeadlineReminder(ctx, email.Reminder{
		FacultyEmail:  facultyEmail,
		DueDate:       *dueDate,
		DaysPastDue:   daysPastDue,
		ReminderCount: count,
		Stats:         stats,
		OTP:           code,
	})
	if err != nil {
		return nil, err
	}

	remindersSentTotal.Inc()
	slog.Info("Deadline reminder sent", "faculty_email", facultyEmail, "days_past_due", daysPastDue, "reminder", count)
	return &ReminderResult{Sent: true, DaysPastDue: daysPastDue, Message: "Reminder sent"}, nil
}

// ConfirmCompletion marks a faculty Confirmed and acknowledges it. Confirming
// twice succeeds without a second acknowledgment.
func (s *DeadlineService) ConfirmCompletion(ctx context.Context, facultyEmail string) (*ConfirmOutcome, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}

	d, err := s.deadlines.Get(ctx, facultyEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: no deadline for %s", ErrNotFound, facultyEmail)
	}

	changed, err := s.deadlines.Confirm(ctx, facultyEmail, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !changed {
		return &ConfirmOutcome{AlreadyConfirmed: true}, nil
	}

	out := &ConfirmOutcome{}
	stats, err := s.ComputeStats(ctx, facultyEmail)
	if err != nil {
		stats = d.Stats()
	}
	if err := s.notifier.SendCompletionConfirmation(ctx, facultyEmail, stats); err != nil {
		out.NotificationError = err.Error()
	}

	slog.Info("Completion confirmed", "faculty_email", facultyEmail)
	return out, nil
}
