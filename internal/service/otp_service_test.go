package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"marks-access/internal/models"
	"marks-access/internal/testutil"
)

func TestVerifyOTPIgnoresEmailCase(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	if err := h.props.Set(ctx, OTPPropertyKey, `{"prof@x.edu":"123456"}`); err != nil {
		t.Fatalf("Failed to seed OTPs: %v", err)
	}

	tests := []struct {
		name  string
		email string
		code  string
		want  bool
	}{
		{"mixed case email", "Prof@X.edu", "123456", true},
		{"padded email", "  prof@x.edu ", "123456", true},
		{"wrong code", "prof@x.edu", "654321", false},
		{"short code", "prof@x.edu", "12345", false},
		{"unknown email", "other@x.edu", "123456", false},
		{"empty email", "", "123456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.otp.Verify(ctx, tt.email, tt.code); got != tt.want {
				t.Errorf("Verify(%q, %q) = %v, want %v", tt.email, tt.code, got, tt.want)
			}
		})
	}
}

func TestVerifyOTPFailsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	if h.otp.Verify(ctx, "prof@x.edu", "123456") {
		t.Error("Verification should fail when no OTPs are stored")
	}

	if err := h.props.Set(ctx, OTPPropertyKey, "{not json"); err != nil {
		t.Fatalf("Failed to seed OTPs: %v", err)
	}
	if h.otp.Verify(ctx, "prof@x.edu", "123456") {
		t.Error("Verification should fail on a corrupt blob")
	}

	h.props.Fail = true
	if h.otp.Verify(ctx, "prof@x.edu", "123456") {
		t.Error("Verification should fail when the store is unavailable")
	}
}

func TestIssueOneRecoversFromCorruptBlob(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	if err := h.props.Set(ctx, OTPPropertyKey, "garbage"); err != nil {
		t.Fatalf("Failed to seed OTPs: %v", err)
	}

	code, err := h.otp.IssueOne(ctx, "Prof@X.edu")
	if err != nil {
		t.Fatalf("IssueOne failed: %v", err)
	}
	if len(code) != 6 || code[0] == '0' {
		t.Errorf("Expected a six digit code, got %q", code)
	}
	if !h.otp.Verify(ctx, "prof@x.edu", code) {
		t.Error("Freshly issued code should verify")
	}
}

// undecryptableStore fails OTP reads as corrupt until the blob is rewritten
type undecryptableStore struct {
	*testutil.MemoryPropertyStore
	corrupt bool
}

func (s *undecryptableStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.corrupt && key == OTPPropertyKey {
		return "", false, fmt.Errorf("%w: bad ciphertext", models.ErrCorruptValue)
	}
	return s.MemoryPropertyStore.Get(ctx, key)
}

func (s *undecryptableStore) Set(ctx context.Context, key, value string) error {
	if key == OTPPropertyKey {
		s.corrupt = false
	}
	return s.MemoryPropertyStore.Set(ctx, key, value)
}

func TestResolveOrMintRecoversFromUndecryptableBlob(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	store := &undecryptableStore{MemoryPropertyStore: h.props, corrupt: true}
	otp := NewOTPService(store, h.records, h.deadlines, h.notifier)

	if otp.Verify(ctx, "prof@x.edu", "123456") {
		t.Error("Verification should fail while the blob cannot be decrypted")
	}

	code, err := otp.ResolveOrMint(ctx, "Prof@X.edu")
	if err != nil {
		t.Fatalf("ResolveOrMint should recreate the map, got %v", err)
	}
	if !otp.Verify(ctx, "prof@x.edu", code) {
		t.Error("Code minted after discarding the blob should verify")
	}
}

func TestIssueReplacesWholeMap(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	oldCode, err := h.otp.IssueOne(ctx, "a@x.edu")
	if err != nil {
		t.Fatalf("IssueOne failed: %v", err)
	}

	codes, err := h.otp.Issue(ctx, []string{"B@x.edu", " ", "b@x.edu"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(codes) != 1 {
		t.Fatalf("Expected 1 code, got %v", codes)
	}

	if h.otp.Verify(ctx, "a@x.edu", oldCode) {
		t.Error("Bulk issue should invalidate codes of faculty not in the batch")
	}
	if !h.otp.Verify(ctx, "b@x.edu", codes["b@x.edu"]) {
		t.Error("Code from the batch should verify")
	}
}

func TestIssueOneMergesAndResolveReuses(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	codeA, err := h.otp.IssueOne(ctx, "a@x.edu")
	if err != nil {
		t.Fatalf("IssueOne failed: %v", err)
	}
	codeB, err := h.otp.IssueOne(ctx, "b@x.edu")
	if err != nil {
		t.Fatalf("IssueOne failed: %v", err)
	}

	if !h.otp.Verify(ctx, "a@x.edu", codeA) || !h.otp.Verify(ctx, "b@x.edu", codeB) {
		t.Error("Both merged codes should verify")
	}

	resolved, err := h.otp.ResolveOrMint(ctx, "A@x.edu")
	if err != nil {
		t.Fatalf("ResolveOrMint failed: %v", err)
	}
	if resolved != codeA {
		t.Errorf("Expected existing code %s, got %s", codeA, resolved)
	}

	minted, err := h.otp.ResolveOrMint(ctx, "c@x.edu")
	if err != nil {
		t.Fatalf("ResolveOrMint failed: %v", err)
	}
	if !h.otp.Verify(ctx, "c@x.edu", minted) {
		t.Error("Minted code should be persisted")
	}

	if _, err := h.otp.IssueOne(ctx, "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("Expected ErrInvalidEmail, got %v", err)
	}
}

// withDeadlines gives each faculty a deadline a week out
func (h *harness) withDeadlines(faculty ...string) {
	h.t.Helper()
	for _, f := range faculty {
		if _, err := h.deadline.SetDeadline(h.t.Context(), f, h.clock.AddDate(0, 0, 7), ""); err != nil {
			h.t.Fatalf("SetDeadline failed: %v", err)
		}
	}
}

func TestSendAllMailsEveryFaculty(t *testing.T) {
	h := newHarness(t, testutil.SampleRecords()...)
	ctx := t.Context()
	h.withDeadlines(testutil.FacultyA, testutil.FacultyB)

	dist, err := h.otp.SendAll(ctx)
	if err != nil {
		t.Fatalf("SendAll failed: %v", err)
	}
	if !dist.Success || dist.SentCount != 2 || dist.FailedCount != 0 || len(dist.Skipped) != 0 {
		t.Fatalf("Unexpected distribution: %+v", dist)
	}
	if h.notifier.Count(models.EmailTypeAdminSelectiveAlert) != 0 {
		t.Error("No alert expected when every faculty has a deadline")
	}

	for _, n := range h.notifier.Sent {
		if n.Kind != models.EmailTypeOTP {
			continue
		}
		if !h.otp.Verify(ctx, n.To, n.OTP) {
			t.Errorf("Mailed code for %s does not verify", n.To)
		}
	}
}

func TestSendAllSkipsFacultyWithoutDeadline(t *testing.T) {
	h := newHarness(t, testutil.SampleRecords()...)
	ctx := t.Context()

	oldCode, err := h.otp.IssueOne(ctx, testutil.FacultyB)
	if err != nil {
		t.Fatalf("IssueOne failed: %v", err)
	}
	h.withDeadlines(testutil.FacultyA)

	dist, err := h.otp.SendAll(ctx)
	if err != nil {
		t.Fatalf("SendAll failed: %v", err)
	}
	if !dist.Success || dist.TotalFaculty != 2 || dist.SentCount != 1 {
		t.Fatalf("Unexpected distribution: %+v", dist)
	}
	if len(dist.Skipped) != 1 || dist.Skipped[0].Email != testutil.FacultyB || dist.Skipped[0].Reason != skipReasonNoDeadline {
		t.Fatalf("Expected %s skipped, got %+v", testutil.FacultyB, dist.Skipped)
	}

	sent, ok := h.notifier.Last(models.EmailTypeOTP)
	if !ok || sent.To != testutil.FacultyA || h.notifier.Count(models.EmailTypeOTP) != 1 {
		t.Errorf("Only %s should be mailed, got %+v", testutil.FacultyA, h.notifier.Sent)
	}
	if h.otp.Verify(ctx, testutil.FacultyB, oldCode) {
		t.Error("Skipped faculty should not keep a code")
	}

	alert, ok := h.notifier.Last(models.EmailTypeAdminSelectiveAlert)
	if !ok || alert.To != testutil.AdminEmail {
		t.Fatalf("Expected an administrator alert, got %+v", alert)
	}
}

func TestSendAllWithoutAnyDeadlineSendsNothing(t *testing.T) {
	h := newHarness(t, testutil.SampleRecords()...)
	ctx := t.Context()

	dist, err := h.otp.SendAll(ctx)
	if err != nil {
		t.Fatalf("SendAll failed: %v", err)
	}
	if dist.Success || dist.SentCount != 0 || len(dist.Skipped) != 2 {
		t.Fatalf("Unexpected distribution: %+v", dist)
	}
	if h.notifier.Count(models.EmailTypeOTP) != 0 {
		t.Error("No OTP email expected")
	}
	if h.notifier.Count(models.EmailTypeAdminSelectiveAlert) != 1 {
		t.Error("Administrator should be alerted once")
	}
	if _, found, _ := h.props.Get(ctx, OTPPropertyKey); found {
		t.Error("No codes should be stored")
	}
}

func TestSendAllChecksQuotaFirst(t *testing.T) {
	h := newHarness(t, testutil.SampleRecords()...)
	h.withDeadlines(testutil.FacultyA, testutil.FacultyB)
	h.notifier.Quota = 1

	if _, err := h.otp.SendAll(t.Context()); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}
	if n := h.notifier.Count(models.EmailTypeOTP); n != 0 {
		t.Errorf("Expected no OTP emails, got %d", n)
	}
	if _, found, _ := h.props.Get(t.Context(), OTPPropertyKey); found {
		t.Error("No codes should be issued when the quota is insufficient")
	}
}

func TestSendIndividualRequiresKnownFaculty(t *testing.T) {
	h := newHarness(t, testutil.SampleRecords()...)
	ctx := t.Context()

	if _, err := h.otp.SendIndividual(ctx, "stranger@university.edu"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	result, err := h.otp.SendIndividual(ctx, testutil.FacultyA)
	if err != nil {
		t.Fatalf("SendIndividual failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %+v", result)
	}
	sent, ok := h.notifier.Last(models.EmailTypeOTP)
	if !ok || !h.otp.Verify(ctx, testutil.FacultyA, sent.OTP) {
		t.Error("Individually mailed code should verify")
	}
}
