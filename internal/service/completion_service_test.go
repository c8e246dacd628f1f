package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"marks-access/internal/models"
	"marks-access/internal/testutil"
)

// completeRecords gives faculty A and B five verified students each
func completeRecords() []models.StudentPaperRecord {
	var records []models.StudentPaperRecord
	for i := 0; i < 5; i++ {
		records = append(records,
			testutil.Record(testutil.FacultyA, fmt.Sprintf("23010%02d", i), "PHY201", testutil.Float(70), true),
			testutil.Record(testutil.FacultyB, fmt.Sprintf("23020%02d", i), "CHE105", testutil.Float(60), true),
		)
	}
	return records
}

func TestCompletionNotifiesOncePerTriple(t *testing.T) {
	h := newHarness(t, completeRecords()...)
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		summary, err := h.deadline.Poll(ctx)
		if err != nil {
			t.Fatalf("Poll %d failed: %v", i, err)
		}
		if summary.Completion == nil || !summary.Completion.Complete {
			t.Fatalf("Poll %d: unexpected completion check %+v", i, summary.Completion)
		}
	}
	if n := h.notifier.Count(models.EmailTypeAdminCompletion); n != 1 {
		t.Fatalf("Expected exactly one completion report, got %d", n)
	}

	key := CompletionKey(2, 10, 10)
	if _, found, _ := h.props.Get(ctx, key); !found {
		t.Errorf("Expected dedup flag %s", key)
	}
	if v, _, _ := h.props.Get(ctx, CompletionNotifiedKey); v != "true" {
		t.Errorf("Expected %s=true, got %q", CompletionNotifiedKey, v)
	}

	// A new student breaks completion until verified
	late := testutil.Record(testutil.FacultyB, "2302099", "CHE105", nil, false)
	if err := h.records.Upsert(ctx, &late); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	check, err := h.completion.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if check.Complete {
		t.Fatal("Completion should be lost with an unverified student")
	}

	if _, err := h.marks.Save(ctx, testutil.FacultyB, MarkEntry{StudentRef: StudentRef{RegistrationNumber: "2302099"}, Marks: testutil.Float(50)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := h.marks.Verify(ctx, testutil.FacultyB, StudentRef{RegistrationNumber: "2302099"}); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		h.deadline.Poll(ctx)
	}
	if n := h.notifier.Count(models.EmailTypeAdminCompletion); n != 2 {
		t.Errorf("Expected a second report for the new triple, got %d", n)
	}
}

func TestCompletionIncompleteOrEmpty(t *testing.T) {
	h := newHarness(t)
	check, err := h.completion.Evaluate(t.Context())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if check.Complete {
		t.Error("An empty record store is never complete")
	}

	h = newHarness(t, testutil.SampleRecords()...)
	check, err = h.completion.Evaluate(t.Context())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if check.Complete || check.FacultyCount != 2 || check.TotalStudents != 5 || check.TotalVerified != 2 {
		t.Errorf("Unexpected check: %+v", check)
	}
	if h.notifier.Count(models.EmailTypeAdminCompletion) != 0 {
		t.Error("No report expected while incomplete")
	}
}

func TestCompletionSendFailureRetries(t *testing.T) {
	h := newHarness(t, completeRecords()...)
	ctx := t.Context()
	h.notifier.FailKinds[models.EmailTypeAdminCompletion] = true

	if _, err := h.completion.Evaluate(ctx); err == nil {
		t.Fatal("Expected the send failure to be returned")
	}
	if _, found, _ := h.props.Get(ctx, CompletionKey(2, 10, 10)); found {
		t.Fatal("Flag must not be set when the report was not sent")
	}

	delete(h.notifier.FailKinds, models.EmailTypeAdminCompletion)
	check, err := h.completion.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !check.Notified {
		t.Error("Expected the retry to send the report")
	}
}

// reentrantNotifier runs during once, in the middle of the first completion send
type reentrantNotifier struct {
	*testutil.RecordingNotifier
	during func()
}

func (n *reentrantNotifier) SendAdminCompletionReport(ctx context.Context, report *models.CompletionReport) error {
	if f := n.during; f != nil {
		n.during = nil
		f()
	}
	return n.RecordingNotifier.SendAdminCompletionReport(ctx, report)
}

func TestCompletionReportedOnceAcrossEvaluators(t *testing.T) {
	h := newHarness(t, completeRecords()...)
	ctx := t.Context()

	notifier := &reentrantNotifier{RecordingNotifier: h.notifier}
	first := NewCompletionService(h.records, h.props, notifier, 100)
	second := NewCompletionService(h.records, h.props, h.notifier, 100)

	var overlapping *CompletionCheck
	notifier.during = func() {
		var err error
		if overlapping, err = second.Evaluate(ctx); err != nil {
			t.Errorf("Overlapping Evaluate failed: %v", err)
		}
	}

	check, err := first.Evaluate(ctx)
	if err != nil || !check.Notified {
		t.Fatalf("Expected the first evaluator to report, got %+v err=%v", check, err)
	}
	if overlapping == nil || !overlapping.Suppressed || overlapping.Notified {
		t.Errorf("Overlapping evaluator should be suppressed, got %+v", overlapping)
	}
	if n := h.notifier.Count(models.EmailTypeAdminCompletion); n != 1 {
		t.Errorf("Expected exactly one completion report, got %d", n)
	}
}

func TestCompletionResetAllowsRenotify(t *testing.T) {
	h := newHarness(t, completeRecords()...)
	ctx := t.Context()

	if _, err := h.completion.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if err := h.props.Set(ctx, OTPPropertyKey, "{}"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cleared, err := h.completion.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Expected 2 cleared flags, got %d", cleared)
	}
	if _, found, _ := h.props.Get(ctx, OTPPropertyKey); !found {
		t.Error("Reset must not touch unrelated properties")
	}

	check, err := h.completion.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !check.Notified || check.Suppressed {
		t.Errorf("Expected a fresh report after reset, got %+v", check)
	}
	if n := h.notifier.Count(models.EmailTypeAdminCompletion); n != 2 {
		t.Errorf("Expected 2 reports, got %d", n)
	}
}

func TestCompletionStoreFailure(t *testing.T) {
	h := newHarness(t, completeRecords()...)
	h.props.Fail = true

	if _, err := h.completion.Evaluate(t.Context()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if h.notifier.Count(models.EmailTypeAdminCompletion) != 0 {
		t.Error("No report should be sent when the flag cannot be read")
	}
}

func TestCompletionReportGroupsByPaper(t *testing.T) {
	records := testutil.SampleRecords()
	records = append(records, testutil.Record(testutil.FacultyB, "2301006", "", testutil.Float(30), true))
	h := newHarness(t, records...)

	report, err := h.completion.Report(t.Context())
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if report.FacultyCount != 2 || report.TotalStudents != 6 || report.TotalVerified != 3 || report.WithMarks != 5 {
		t.Errorf("Unexpected totals: %+v", report)
	}
	if report.Complete {
		t.Error("Report should not be complete")
	}

	wantOrder := []string{"CHE105", unspecifiedPaper, "PHY201"}
	if len(report.Papers) != len(wantOrder) {
		t.Fatalf("Expected %d papers, got %d", len(wantOrder), len(report.Papers))
	}
	for i, code := range wantOrder {
		if report.Papers[i].PaperCode != code {
			t.Errorf("Paper %d: expected %s, got %s", i, code, report.Papers[i].PaperCode)
		}
	}

	phy := report.Papers[2]
	if phy.TotalStudents != 3 || phy.StudentsVerified != 2 || phy.StudentsWithMarks != 3 {
		t.Errorf("Unexpected PHY201 summary: %+v", phy)
	}
	if len(phy.FacultyEmails) != 1 || phy.FacultyEmails[0] != testutil.FacultyA {
		t.Errorf("Unexpected PHY201 faculty: %v", phy.FacultyEmails)
	}
}
