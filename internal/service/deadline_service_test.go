package service

import (
	"errors"
	"testing"
	"time"

	"marks-access/internal/email"
	"marks-access/internal/models"
	"marks-access/internal/testutil"
)

func scenarioRecords() []models.StudentPaperRecord {
	return []models.StudentPaperRecord{
		testutil.Record(testutil.FacultyA, "2301001", "PHY201", testutil.Float(78), true),
		testutil.Record(testutil.FacultyA, "2301002", "PHY201", testutil.Float(64), true),
		testutil.Record(testutil.FacultyA, "2301003", "PHY201", nil, false),
	}
}

func (h *harness) deadlineOf(facultyEmail string) models.FacultyDeadline {
	h.t.Helper()
	d, err := h.deadlines.Get(h.t.Context(), facultyEmail)
	if err != nil || d == nil {
		h.t.Fatalf("Deadline for %s not found: %v", facultyEmail, err)
	}
	return *d
}

func TestPollPromotesOnlyWhenEveryStudentIsMarked(t *testing.T) {
	h := newHarness(t, scenarioRecords()...)
	ctx := t.Context()

	if _, err := h.deadline.SetDeadline(ctx, testutil.FacultyA, h.clock.AddDate(0, 0, 7), ""); err != nil {
		t.Fatalf("SetDeadline failed: %v", err)
	}

	summary, err := h.deadline.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if summary.ProcessedCount != 1 || summary.CompletionChecks != 0 {
		t.Fatalf("Expected 1 processed deadline and no promotion, got %+v", summary)
	}
	if got := h.deadlineOf(testutil.FacultyA).CompletionStatus; got != models.CompletionPending {
		t.Fatalf("Expected Pending with one student unmarked, got %s", got)
	}

	if _, err := h.marks.Save(ctx, testutil.FacultyA, MarkEntry{
		StudentRef: StudentRef{RegistrationNumber: "2301003"},
		Marks:      testutil.Float(55),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	summary, err = h.deadline.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if summary.CompletionChecks != 1 {
		t.Errorf("Expected one promotion counted, got %d", summary.CompletionChecks)
	}
	d := h.deadlineOf(testutil.FacultyA)
	if d.CompletionStatus != models.CompletionReady {
		t.Errorf("Expected %s, got %s", models.CompletionReady, d.CompletionStatus)
	}
	if d.StudentsWithMarks != 3 || d.StudentsVerified != 2 {
		t.Errorf("Cached stats not refreshed: %+v", d)
	}

	summary, err = h.deadline.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if summary.CompletionChecks != 0 {
		t.Errorf("An already Ready deadline must not be counted again, got %d", summary.CompletionChecks)
	}
}

func TestPollRemindsOncePerDay(t *testing.T) {
	h := newHarness(t, scenarioRecords()...)
	ctx := t.Context()

	if _, err := h.deadline.SetDeadline(ctx, testutil.FacultyA, h.clock.AddDate(0, 0, -2), "first round"); err != nil {
		t.Fatalf("SetDeadline failed: %v", err)
	}

	summary, err := h.deadline.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if summary.RemindersSent != 1 {
		t.Fatalf("Expected 1 reminder, got %+v", summary)
	}

	sent, _ := h.notifier.Last(models.EmailTypeDeadlineReminder)
	reminder := sent.Data.(email.Reminder)
	if reminder.DaysPastDue != 2 || reminder.ReminderCount != 1 {
		t.Errorf("Unexpected reminder: %+v", reminder)
	}
	if !h.otp.Verify(ctx, testutil.FacultyA, reminder.OTP) {
		t.Error("Reminder should carry the faculty's current access code")
	}

	h.advance(3 * time.Hour)
	summary, _ = h.deadline.Poll(ctx)
	if summary.RemindersSent != 0 {
		t.Errorf("Expected no second reminder on the same day, got %d", summary.RemindersSent)
	}

	h.advance(24 * time.Hour)
	summary, _ = h.deadline.Poll(ctx)
	if summary.RemindersSent != 1 {
		t.Errorf("Expected a reminder the next day, got %d", summary.RemindersSent)
	}

	d := h.deadlineOf(testutil.FacultyA)
	if d.ReminderCount != 2 {
		t.Errorf("Expected reminder count 2, got %d", d.ReminderCount)
	}
	sent, _ = h.notifier.Last(models.EmailTypeDeadlineReminder)
	if sent.Data.(email.Reminder).ReminderCount != 2 {
		t.Errorf("Expected the second reminder to be numbered 2, got %+v", sent.Data)
	}
	if sent.Data.(email.Reminder).OTP != reminder.OTP {
		t.Error("Reminders should reuse the existing access code")
	}
}

func TestPollSkipsReadyAndConfirmedDeadlines(t *testing.T) {
	records := append(scenarioRecords(),
		testutil.Record(testutil.FacultyB, "2301004", "CHE105", testutil.Float(40), false),
	)
	h := newHarness(t, records...)
	ctx := t.Context()

	past := h.clock.AddDate(0, 0, -1)
	h.deadline.SetDeadline(ctx, testutil.FacultyA, past, "")
	h.deadline.SetDeadline(ctx, testutil.FacultyB, past, "")
	if _, err := h.deadline.ConfirmCompletion(ctx, testutil.FacultyA); err != nil {
		t.Fatalf("ConfirmCompletion failed: %v", err)
	}

	summary, err := h.deadline.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if summary.SkippedCount != 1 || summary.ProcessedCount != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.RemindersSent != 0 {
		t.Errorf("A fully marked faculty should be promoted rather than reminded, got %d reminders", summary.RemindersSent)
	}
	if got := h.deadlineOf(testutil.FacultyB).CompletionStatus; got != models.CompletionReady {
		t.Errorf("Expected faculty B ready, got %s", got)
	}
}

func TestPollContinuesAfterReminderFailure(t *testing.T) {
	records := append(scenarioRecords(),
		testutil.Record(testutil.FacultyB, "2301004", "CHE105", nil, false),
	)
	h := newHarness(t, records...)
	h.notifier.FailKinds[models.EmailTypeDeadlineReminder] = true
	ctx := t.Context()

	past := h.clock.AddDate(0, 0, -1)
	h.deadline.SetDeadline(ctx, testutil.FacultyA, past, "")
	h.deadline.SetDeadline(ctx, testutil.FacultyB, past, "")

	summary, err := h.deadline.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if summary.ProcessedCount != 2 || summary.RemindersSent != 0 || len(summary.Errors) != 2 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if d := h.deadlineOf(testutil.FacultyA); d.LastReminderSent != nil || d.ReminderCount != 0 {
		t.Errorf("Failed reminder must not be recorded: %+v", d)
	}
}

func TestSendReminderBeforeDueDateIsNoop(t *testing.T) {
	h := newHarness(t, scenarioRecords()...)
	ctx := t.Context()

	due := h.clock
	result, err := h.deadline.SendReminder(ctx, testutil.FacultyA, ReminderOptions{DueDate: &due})
	if err != nil {
		t.Fatalf("SendReminder failed: %v", err)
	}
	if result.Sent {
		t.Error("Reminder on the due date should not be sent")
	}
	if h.notifier.Count(models.EmailTypeDeadlineReminder) != 0 {
		t.Error("No reminder email expected")
	}

	if _, err := h.deadline.SendReminder(ctx, testutil.FacultyA, ReminderOptions{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound without a deadline, got %v", err)
	}
}

func TestConfirmCompletionIsIdempotent(t *testing.T) {
	h := newHarness(t, scenarioRecords()...)
	ctx := t.Context()

	if _, err := h.deadline.ConfirmCompletion(ctx, testutil.FacultyA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound without a deadline, got %v", err)
	}

	h.deadline.SetDeadline(ctx, testutil.FacultyA, h.clock, "")

	first, err := h.deadline.ConfirmCompletion(ctx, "Prof.A@university.edu")
	if err != nil {
		t.Fatalf("ConfirmCompletion failed: %v", err)
	}
	if first.AlreadyConfirmed {
		t.Error("First confirmation should not be reported as a repeat")
	}

	h.advance(time.Hour)
	second, err := h.deadline.ConfirmCompletion(ctx, testutil.FacultyA)
	if err != nil {
		t.Fatalf("ConfirmCompletion failed: %v", err)
	}
	if !second.AlreadyConfirmed {
		t.Error("Second confirmation should be reported as a repeat")
	}
	if n := h.notifier.Count(models.EmailTypeCompletionConfirmed); n != 1 {
		t.Errorf("Expected one acknowledgment, got %d", n)
	}

	d := h.deadlineOf(testutil.FacultyA)
	if d.CompletionConfirmedDate == nil || !d.CompletionConfirmedDate.Equal(h.clock.Add(-time.Hour)) {
		t.Errorf("Confirmation date should be the first confirmation, got %v", d.CompletionConfirmedDate)
	}
}

func TestGetDeadlineDaysRemaining(t *testing.T) {
	h := newHarness(t, scenarioRecords()...)
	ctx := t.Context()

	if _, err := h.deadline.SetDeadline(ctx, "bad", h.clock, ""); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("Expected ErrInvalidEmail, got %v", err)
	}
	if _, err := h.deadline.SetDeadline(ctx, testutil.FacultyA, time.Time{}, ""); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}

	h.deadline.SetDeadline(ctx, testutil.FacultyA, h.clock.AddDate(0, 0, 5), "")

	view, err := h.deadline.GetDeadline(ctx, testutil.FacultyA)
	if err != nil {
		t.Fatalf("GetDeadline failed: %v", err)
	}
	if view.DaysRemaining != 5 {
		t.Errorf("Expected 5 days remaining, got %d", view.DaysRemaining)
	}
	if view.Stats.TotalStudents != 3 || view.Stats.StudentsVerified != 2 {
		t.Errorf("Unexpected stats: %+v", view.Stats)
	}

	if _, err := h.deadline.GetDeadline(ctx, testutil.FacultyB); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", base, base.Add(-20 * time.Hour), 0},
		{"next calendar day", base, base.Add(time.Hour), 1},
		{"past", base, base.AddDate(0, 0, -3), -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysBetween(tt.a, tt.b); got != tt.want {
				t.Errorf("daysBetween = %d, want %d", got, tt.want)
			}
		})
	}
}
