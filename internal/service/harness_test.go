package service

import (
	"testing"
	"time"

	"marks-access/internal/models"
	"marks-access/internal/testutil"
)

// harness wires every service over in-memory stores sharing one clock
type harness struct {
	t *testing.T

	records   *testutil.MemoryRecordStore
	requests  *testutil.MemoryEditRequestStore
	deadlines *testutil.MemoryDeadlineStore
	props     *testutil.MemoryPropertyStore
	notifier  *testutil.RecordingNotifier

	otp        *OTPService
	access     *EditAccessService
	marks      *MarksService
	completion *CompletionService
	deadline   *DeadlineService

	clock time.Time
}

func newHarness(t *testing.T, records ...models.StudentPaperRecord) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		records:   testutil.NewMemoryRecordStore(records...),
		requests:  testutil.NewMemoryEditRequestStore(),
		deadlines: testutil.NewMemoryDeadlineStore(),
		props:     testutil.NewMemoryPropertyStore(),
		notifier:  testutil.NewRecordingNotifier(),
		clock:     time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return h.clock }

	h.otp = NewOTPService(h.props, h.records, h.deadlines, h.notifier)
	h.access = NewEditAccessService(h.records, h.requests, h.notifier, 48*time.Hour)
	h.access.now = now
	h.marks = NewMarksService(h.records, h.access, 100)
	h.completion = NewCompletionService(h.records, h.props, h.notifier, 100)
	h.completion.now = now
	h.deadline = NewDeadlineService(h.deadlines, h.records, h.otp, h.notifier, h.completion)
	h.deadline.now = now
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

// record returns the stored row for faculty and student
func (h *harness) record(facultyEmail, regd string) models.StudentPaperRecord {
	h.t.Helper()
	recs, err := h.records.ListByFaculty(h.t.Context(), facultyEmail)
	if err != nil {
		h.t.Fatalf("Failed to list records: %v", err)
	}
	if rec := findRecord(recs, regd, ""); rec != nil {
		return *rec
	}
	h.t.Fatalf("Record %s/%s not found", facultyEmail, regd)
	return models.StudentPaperRecord{}
}

// requestFor returns the single stored request for regd
func (h *harness) requestFor(regd string) models.EditAccessRequest {
	h.t.Helper()
	var found []models.EditAccessRequest
	for _, req := range h.requests.All() {
		if req.RegistrationNumber == regd {
			found = append(found, req)
		}
	}
	if len(found) != 1 {
		h.t.Fatalf("Expected 1 request for %s, got %d", regd, len(found))
	}
	return found[0]
}

// approvedGrant submits and approves an edit request for regd
func (h *harness) approvedGrant(facultyEmail, regd string) models.EditAccessRequest {
	h.t.Helper()
	out := h.access.Submit(h.t.Context(), facultyEmail, []string{regd})
	if !out.Success || len(out.RequestIDs) != 1 {
		h.t.Fatalf("Submit failed: %+v", out)
	}
	if _, err := h.access.Approve(h.t.Context(), out.RequestIDs[0]); err != nil {
		h.t.Fatalf("Approve failed: %v", err)
	}
	return h.requestFor(regd)
}
