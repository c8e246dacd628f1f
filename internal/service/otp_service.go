package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"marks-access/internal/email"
	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

// OTPPropertyKey is the property holding the JSON map of email to current code
const OTPPropertyKey = "OTPs"

// OTPService issues and checks portal one-time passwords.
//
// The whole map is one blob, so writers read-modify-write it. The mutex
// serializes writers inside this process; two processes issuing codes at the
// same moment can still lose one update.
type OTPService struct {
	props     PropertyStore
	records   RecordStore
	deadlines DeadlineStore
	notifier  Notifier
	mu        sync.Mutex
}

// NewOTPService creates a new OTP service
func NewOTPService(props PropertyStore, records RecordStore, deadlines DeadlineStore, notifier Notifier) *OTPService {
	return &OTPService{
		props:     props,
		records:   records,
		deadlines: deadlines,
		notifier:  notifier,
	}
}

// skipReasonNoDeadline explains why a bulk send passed over a faculty member
const skipReasonNoDeadline = "No deadline set"

// OTPSendResult is the outcome of mailing one code
type OTPSendResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OTPDistribution summarizes a bulk send
type OTPDistribution struct {
	Success      bool                   `json:"success"`
	Message      string                 `json:"message"`
	TotalFaculty int                    `json:"total_faculty"`
	SentCount    int                    `json:"sent_count"`
	FailedCount  int                    `json:"failed_count"`
	Results      []OTPSendResult        `json:"results"`
	Skipped      []email.SkippedFaculty `json:"skipped"`
}

// generateOTP returns a uniformly random code in 100000-999999
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// load reads the stored map. A corrupt blob is discarded and an empty map returned.
func (s *OTPService) load(ctx context.Context) (map[string]string, error) {
	raw, found, err := s.props.Get(ctx, OTPPropertyKey)
	if errors.Is(err, models.ErrCorruptValue) {
		slog.Warn("Discarding undecryptable OTP blob", "error", err)
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	otps := make(map[string]string)
	if !found || raw == "" {
		return otps, nil
	}
	if err := json.Unmarshal([]byte(raw), &otps); err != nil {
		slog.Warn("Discarding unparsable OTP blob", "error", err)
		return make(map[string]string), nil
	}
	if otps == nil {
		otps = make(map[string]string)
	}
	return otps, nil
}

func (s *OTPService) save(ctx context.Context, otps map[string]string) error {
	raw, err := json.Marshal(otps)
	if err != nil {
		return fmt.Errorf("failed to encode otps: %w", err)
	}
	if err := s.props.Set(ctx, OTPPropertyKey, string(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Issue mints a fresh code for each email and replaces the entire stored map.
// Faculty not in emails lose their previous code and must be re-issued one.
func (s *OTPService) Issue(ctx context.Context, emails []string) (map[string]string, error) {
	otps := make(map[string]string, len(emails))
	for _, e := range emails {
		key := validator.SanitizeEmail(e)
		if key == "" {
			continue
		}
		code, err := generateOTP()
		if err != nil {
			return nil, err
		}
		otps[key] = code
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx, otps); err != nil {
		return nil, err
	}
	return otps, nil
}

// IssueOne mints a code for one email and merges it into the stored map
func (s *OTPService) IssueOne(ctx context.Context, email string) (string, error) {
	key := validator.SanitizeEmail(email)
	if !validator.IsValidEmail(key) {
		return "", ErrInvalidEmail
	}

	code, err := generateOTP()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	otps, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	otps[key] = code
	if err := s.save(ctx, otps); err != nil {
		return "", err
	}
	return code, nil
}

// ResolveOrMint returns the current code for email, minting and persisting one if absent
func (s *OTPService) ResolveOrMint(ctx context.Context, email string) (string, error) {
	key := validator.SanitizeEmail(email)
	if !validator.IsValidEmail(key) {
		return "", ErrInvalidEmail
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	otps, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if code, ok := otps[key]; ok && code != "" {
		return code, nil
	}

	code, err := generateOTP()
	if err != nil {
		return "", err
	}
	otps[key] = code
	if err := s.save(ctx, otps); err != nil {
		return "", err
	}
	return code, nil
}

// Verify reports whether code is the current code for email. It never errors:
// storage or parse failures simply fail verification.
func (s *OTPService) Verify(ctx context.Context, email, code string) bool {
	ok := s.verify(ctx, email, code)
	if ok {
		otpVerificationsTotal.WithLabelValues("success").Inc()
	} else {
		otpVerificationsTotal.WithLabelValues("failure").Inc()
	}
	return ok
}

func (s *OTPService) verify(ctx context.Context, email, code string) bool {
	key := validator.SanitizeEmail(email)
	if key == "" || len(code) != 6 {
		return false
	}

	raw, found, err := s.props.Get(ctx, OTPPropertyKey)
	if err != nil {
		slog.Warn("OTP store unavailable during verification", "error", err)
		return false
	}
	if !found {
		return false
	}

	var otps map[string]string
	if err := json.Unmarshal([]byte(raw), &otps); err != nil {
		slog.Warn("Unparsable OTP blob during verification", "error", err)
		return false
	}

	stored, ok := otps[key]
	return ok && stored == code
}

// facultyEmails returns the distinct, valid, lowercased faculty addresses in the record store
func (s *OTPService) facultyEmails(ctx context.Context) ([]string, error) {
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	seen := make(map[string]struct{})
	for _, rec := range records {
		e := validator.SanitizeEmail(rec.FacultyEmail)
		if !validator.IsValidEmail(e) {
			continue
		}
		seen[e] = struct{}{}
	}

	emails := make([]string, 0, len(seen))
	for e := range seen {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails, nil
}

// SendAll issues fresh codes to every faculty member with a deadline and mails
// them. Faculty without a deadline are skipped, lose any previous code, and are
// reported to the administrator.
func (s *OTPService) SendAll(ctx context.Context) (*OTPDistribution, error) {
	all, err := s.facultyEmails(ctx)
	if err != nil {
		return nil, err
	}
	dist := &OTPDistribution{
		TotalFaculty: len(all),
		Results:      []OTPSendResult{},
		Skipped:      []email.SkippedFaculty{},
	}
	if len(all) == 0 {
		dist.Message = "No faculty emails found"
		return dist, nil
	}

	emails := make([]string, 0, len(all))
	for _, e := range all {
		d, err := s.deadlines.Get(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if d == nil {
			dist.Skipped = append(dist.Skipped, email.SkippedFaculty{Email: e, Reason: skipReasonNoDeadline})
			continue
		}
		emails = append(emails, e)
	}

	if len(dist.Skipped) > 0 {
		if err := s.notifier.SendAdminSelectiveAlert(ctx, dist.Skipped, len(all)); err != nil {
			slog.Warn("Failed to alert administrator about skipped faculty", "skipped", len(dist.Skipped), "error", err)
		}
	}
	if len(emails) == 0 {
		dist.Message = fmt.Sprintf("No OTPs sent: all %d faculty need a deadline", len(all))
		slog.Warn("No faculty with deadlines for OTP distribution", "skipped", len(dist.Skipped))
		return dist, nil
	}

	remaining, err := s.notifier.RemainingQuota(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if remaining < len(emails) {
		return nil, fmt.Errorf("%w: %d remaining, %d faculty", ErrQuotaExceeded, remaining, len(emails))
	}

	otps, err := s.Issue(ctx, emails)
	if err != nil {
		return nil, err
	}

	for _, e := range emails {
		result := OTPSendResult{Email: e, Success: true}
		if err := s.notifier.SendOTP(ctx, e, otps[e]); err != nil {
			slog.Warn("Failed to send OTP", "faculty_email", e, "error", err)
			result.Success = false
			result.Error = err.Error()
			dist.FailedCount++
		} else {
			dist.SentCount++
		}
		dist.Results = append(dist.Results, result)
	}

	dist.Success = dist.SentCount > 0
	dist.Message = fmt.Sprintf("OTPs sent to %d of %d faculty, %d skipped without a deadline",
		dist.SentCount, len(all), len(dist.Skipped))
	slog.Info("Distributed OTPs", "sent", dist.SentCount, "failed", dist.FailedCount, "skipped", len(dist.Skipped))
	return dist, nil
}

// SendIndividual issues and mails a code to one faculty member present in the record store
func (s *OTPService) SendIndividual(ctx context.Context, email string) (*OTPSendResult, error) {
	key := validator.SanitizeEmail(email)
	if !validator.IsValidEmail(key) {
		return nil, ErrInvalidEmail
	}

	records, err := s.records.ListByFaculty(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records for %s", ErrNotFound, key)
	}

	code, err := s.IssueOne(ctx, key)
	if err != nil {
		return nil, err
	}

	result := &OTPSendResult{Email: key, Success: true}
	if err := s.notifier.SendOTP(ctx, key, code); err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	return result, nil
}
