package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"marks-access/internal/email"
	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

// Submit outcome codes
const (
	CodeInvalidEmail     = "INVALID_EMAIL"
	CodeNoStudents       = "NO_STUDENTS"
	CodeAllDuplicate     = "ALL_DUPLICATE"
	CodeNoValidStudents  = "NO_VALID_STUDENTS"
	CodeProcessingFailed = "PROCESSING_FAILED"
)

const (
	submitNote    = "Requested via faculty portal"
	noteTimestamp = "2006-01-02 15:04:05"
)

// EditAccessService runs the edit-access request state machine
type EditAccessService struct {
	records      RecordStore
	requests     EditRequestStore
	notifier     Notifier
	unlockWindow time.Duration
	now          func() time.Time
}

// NewEditAccessService creates a new edit access service
func NewEditAccessService(records RecordStore, requests EditRequestStore, notifier Notifier, unlockWindow time.Duration) *EditAccessService {
	if unlockWindow <= 0 {
		unlockWindow = 48 * time.Hour
	}
	return &EditAccessService{
		records:      records,
		requests:     requests,
		notifier:     notifier,
		unlockWindow: unlockWindow,
		now:          time.Now,
	}
}

// SubmitOutcome reports a faculty edit-access submission
type SubmitOutcome struct {
	Success           bool      `json:"success"`
	Message           string    `json:"message"`
	Code              string    `json:"code,omitempty"`
	ProcessedCount    int       `json:"processed_count"`
	TotalRequested    int       `json:"total_requested"`
	RequestIDs        []string  `json:"request_ids"`
	DuplicateRequests []string  `json:"duplicate_requests"`
	InvalidStudents   []string  `json:"invalid_students"`
	Errors            []string  `json:"errors"`
	Warnings          []string  `json:"warnings"`
	Timestamp         time.Time `json:"timestamp"`
}

// DecisionResult is the outcome of one approve/disapprove
type DecisionResult struct {
	RequestID         string                    `json:"request_id"`
	Success           bool                      `json:"success"`
	Error             string                    `json:"error,omitempty"`
	NotificationError string                    `json:"notification_error,omitempty"`
	Request           *models.EditAccessRequest `json:"request,omitempty"`
}

// BulkDecisionOutcome summarizes a bulk approval
type BulkDecisionOutcome struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	SuccessCount int              `json:"success_count"`
	ErrorCount   int              `json:"error_count"`
	Results      []DecisionResult `json:"results"`
}

// EditRequestView is a request with its read-time status
type EditRequestView struct {
	models.EditAccessRequest
	EffectiveStatus string  `json:"effective_status"`
	RemainingHours  float64 `json:"remaining_hours"`
}

func newRequestID(regd string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("REQ-%d-%s-%s", now.UnixMilli(), regd, suffix)
}

// Submit files one Pending request per eligible student. Ineligible items are
// reported individually and never fail the whole call.
func (s *EditAccessService) Submit(ctx context.Context, facultyEmail string, registrationNumbers []string) *SubmitOutcome {
	now := s.now()
	out := &SubmitOutcome{
		TotalRequested:    len(registrationNumbers),
		RequestIDs:        []string{},
		DuplicateRequests: []string{},
		InvalidStudents:   []string{},
		Errors:            []string{},
		Warnings:          []string{},
		Timestamp:         now,
	}

	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		out.Code = CodeInvalidEmail
		out.Message = "Invalid faculty email"
		return out
	}

	regds := uniqueTrimmed(registrationNumbers)
	if len(regds) == 0 {
		out.Code = CodeNoStudents
		out.Message = "No students selected"
		return out
	}

	records, err := s.records.ListByFaculty(ctx, facultyEmail)
	if err != nil {
		slog.Error("Failed to load records for edit request", "faculty_email", facultyEmail, "error", err)
		out.Code = CodeProcessingFailed
		out.Message = "Could not read student records"
		return out
	}
	existing, err := s.requests.ListByFaculty(ctx, facultyEmail)
	if err != nil {
		slog.Error("Failed to load edit requests", "faculty_email", facultyEmail, "error", err)
		out.Code = CodeProcessingFailed
		out.Message = "Could not read existing requests"
		return out
	}

	var created []email.EditRequestItem
	for _, regd := range regds {
		rec := findRecord(records, regd, "")
		if rec == nil {
			out.InvalidStudents = append(out.InvalidStudents, regd)
			out.Errors = append(out.Errors, fmt.Sprintf("Student %s is not assigned to you", regd))
			continue
		}
		if rec = findVerifiedRecord(records, regd); rec == nil {
			out.InvalidStudents = append(out.InvalidStudents, regd)
			out.Errors = append(out.Errors, fmt.Sprintf("Student %s is not verified and can be edited directly", regd))
			continue
		}
		if blocking := activeRequestFor(existing, regd, now); blocking != nil {
			out.DuplicateRequests = append(out.DuplicateRequests, regd)
			out.Warnings = append(out.Warnings, fmt.Sprintf("Student %s already has a %s request", regd, blocking.EffectiveStatus(now)))
			continue
		}

		req := &models.EditAccessRequest{
			RequestID:            newRequestID(regd, now),
			FacultyEmail:         facultyEmail,
			RegistrationNumber:   regd,
			StudentName:          rec.StudentName,
			PaperCode:            rec.PaperCode,
			CurrentMarksSnapshot: rec.Marks,
			RequestTime:          now,
			Status:               models.RequestStatusPending,
			ActionNotes:          submitNote,
		}
		err := s.requests.Create(ctx, req)
		if errors.Is(err, models.ErrDuplicateRequest) {
			out.DuplicateRequests = append(out.DuplicateRequests, regd)
			out.Warnings = append(out.Warnings, fmt.Sprintf("Student %s already has a %s request", regd, models.RequestStatusPending))
			continue
		}
		if err != nil {
			slog.Error("Failed to create edit request", "faculty_email", facultyEmail, "registration_number", regd, "error", err)
			out.Errors = append(out.Errors, fmt.Sprintf("Failed to create request for %s", regd))
			continue
		}

		existing = append(existing, *req)
		out.RequestIDs = append(out.RequestIDs, req.RequestID)
		created = append(created, email.EditRequestItem{
			RegistrationNumber: regd,
			StudentName:        rec.StudentName,
			PaperCode:          rec.PaperCode,
		})
	}

	out.ProcessedCount = len(created)
	if len(created) == 0 {
		switch {
		case len(out.DuplicateRequests) == len(regds):
			out.Code = CodeAllDuplicate
			out.Message = "All selected students already have active requests"
		case len(out.InvalidStudents)+len(out.DuplicateRequests) == len(regds):
			out.Code = CodeNoValidStudents
			out.Message = "No valid students to request edit access for"
		default:
			out.Code = CodeProcessingFailed
			out.Message = "Failed to create edit requests"
		}
		return out
	}

	if err := s.notifier.SendEditRequestNotification(ctx, facultyEmail, created); err != nil {
		out.Warnings = append(out.Warnings, "Administrator notification failed: "+err.Error())
	}

	out.Success = true
	out.Message = fmt.Sprintf("Edit access requested for %d student(s)", len(created))
	slog.Info("Edit access requested", "faculty_email", facultyEmail, "created", len(created),
		"duplicates", len(out.DuplicateRequests), "invalid", len(out.InvalidStudents))
	return out
}

// Approve opens a Pending request's unlock window
func (s *EditAccessService) Approve(ctx context.Context, requestID string) (*DecisionResult, error) {
	now := s.now()
	return s.approve(ctx, requestID, "Approved on "+now.Format(noteTimestamp), now)
}

func (s *EditAccessService) approve(ctx context.Context, requestID, note string, now time.Time) (*DecisionResult, error) {
	req, err := s.pending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	until := now.Add(s.unlockWindow)
	ok, err := s.requests.TransitionFromPending(ctx, requestID, models.RequestStatusApproved, note, &until)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %s is no longer Pending", ErrStatusChanged, requestID)
	}

	req.Status = models.RequestStatusApproved
	req.UnlockUntil = &until
	req.ActionNotes = joinNote(req.ActionNotes, note)

	result := &DecisionResult{RequestID: requestID, Success: true, Request: req}
	if err := s.notifier.SendEditApproval(ctx, req); err != nil {
		result.NotificationError = err.Error()
	}

	slog.Info("Edit request approved", "request_id", requestID, "faculty_email", req.FacultyEmail, "unlock_until", until)
	return result, nil
}

// Disapprove declines a Pending request with a mandatory reason
func (s *EditAccessService) Disapprove(ctx context.Context, requestID, reason string) (*DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	req, err := s.pending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Disapproved on %s. Reason: %s", s.now().Format(noteTimestamp), reason)
	ok, err := s.requests.TransitionFromPending(ctx, requestID, models.RequestStatusDisapproved, note, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %s is no longer Pending", ErrStatusChanged, requestID)
	}

	req.Status = models.RequestStatusDisapproved
	req.ActionNotes = joinNote(req.ActionNotes, note)

	result := &DecisionResult{RequestID: requestID, Success: true, Request: req}
	if err := s.notifier.SendEditDisapproval(ctx, req, reason); err != nil {
		result.NotificationError = err.Error()
	}

	slog.Info("Edit request disapproved", "request_id", requestID, "faculty_email", req.FacultyEmail)
	return result, nil
}

// ApproveAll approves every currently Pending request independently
func (s *EditAccessService) ApproveAll(ctx context.Context) (*BulkDecisionOutcome, error) {
	pending, err := s.requests.List(ctx, models.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := &BulkDecisionOutcome{Results: make([]DecisionResult, 0, len(pending))}
	if len(pending) == 0 {
		out.Success = true
		out.Message = "No pending requests"
		return out, nil
	}

	now := s.now()
	note := "Bulk approved on " + now.Format(noteTimestamp)
	for _, req := range pending {
		result, err := s.approve(ctx, req.RequestID, note, now)
		if err != nil {
			slog.Warn("Bulk approval item failed", "request_id", req.RequestID, "error", err)
			out.ErrorCount++
			out.Results = append(out.Results, DecisionResult{RequestID: req.RequestID, Error: err.Error()})
			continue
		}
		out.SuccessCount++
		out.Results = append(out.Results, *result)
	}

	out.Success = out.SuccessCount > 0
	out.Message = fmt.Sprintf("Approved %d of %d pending request(s)", out.SuccessCount, len(pending))
	return out, nil
}

// ForceRelock completes every Approved grant for the pair, closing the window immediately
func (s *EditAccessService) ForceRelock(ctx context.Context, facultyEmail, regd string) (int64, error) {
	now := s.now()
	note := "LOCKED after verification on " + now.Format(noteTimestamp)

	n, err := s.requests.RelockApproved(ctx, validator.SanitizeEmail(facultyEmail), strings.TrimSpace(regd), now.Add(-24*time.Hour), note)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		slog.Info("Edit grant relocked", "faculty_email", facultyEmail, "registration_number", regd, "requests", n)
	}
	return n, nil
}

// IsUnlocked reports whether the pair has an Approved request whose window is still open
func (s *EditAccessService) IsUnlocked(ctx context.Context, facultyEmail, regd string) (bool, error) {
	unlocked, _, err := s.grantState(ctx, facultyEmail)
	if err != nil {
		return false, err
	}
	return unlocked[strings.TrimSpace(regd)], nil
}

// PendingFor returns the registration numbers with an outstanding Pending request
func (s *EditAccessService) PendingFor(ctx context.Context, facultyEmail string) (map[string]bool, error) {
	_, pending, err := s.grantState(ctx, facultyEmail)
	return pending, err
}

// grantState reads a faculty's requests once and derives both annotations
func (s *EditAccessService) grantState(ctx context.Context, facultyEmail string) (unlocked, pending map[string]bool, err error) {
	requests, err := s.requests.ListByFaculty(ctx, validator.SanitizeEmail(facultyEmail))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	unlocked = make(map[string]bool)
	pending = make(map[string]bool)
	for i := range requests {
		req := &requests[i]
		switch {
		case req.IsActiveGrant(now):
			unlocked[req.RegistrationNumber] = true
		case req.IsPending():
			pending[req.RegistrationNumber] = true
		}
	}
	return unlocked, pending, nil
}

// List returns requests with derived status. "Expired" and "Approved" filter on the derived status.
func (s *EditAccessService) List(ctx context.Context, status string) ([]EditRequestView, error) {
	stored := status
	if status == models.RequestStatusExpired {
		stored = models.RequestStatusApproved
	}
	switch stored {
	case "", models.RequestStatusPending, models.RequestStatusApproved, models.RequestStatusDisapproved, models.RequestStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, status)
	}

	requests, err := s.requests.List(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	views := make([]EditRequestView, 0, len(requests))
	for _, req := range requests {
		effective := req.EffectiveStatus(now)
		if status != "" && effective != status {
			continue
		}
		view := EditRequestView{EditAccessRequest: req, EffectiveStatus: effective}
		if req.IsActiveGrant(now) {
			view.RemainingHours = math.Round(req.UnlockUntil.Sub(now).Hours()*10) / 10
		}
		views = append(views, view)
	}
	return views, nil
}

// SendPendingDigest mails the admin every request still awaiting a decision
// and returns how many were listed. Nothing is sent when none are pending.
func (s *EditAccessService) SendPendingDigest(ctx context.Context) (int, error) {
	pending, err := s.requests.List(ctx, models.RequestStatusPending)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := s.notifier.SendPendingDigest(ctx, pending); err != nil {
		return 0, err
	}
	slog.Info("Pending request digest sent", "count", len(pending))
	return len(pending), nil
}

// pending loads a request and requires it to be Pending
func (s *EditAccessService) pending(ctx context.Context, requestID string) (*models.EditAccessRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	if !req.IsPending() {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidStatus, requestID, req.EffectiveStatus(s.now()))
	}
	return req, nil
}

// activeRequestFor returns the request that blocks a new one for regd, if any
func activeRequestFor(requests []models.EditAccessRequest, regd string, now time.Time) *models.EditAccessRequest {
	for i := range requests {
		req := &requests[i]
		if req.RegistrationNumber != regd {
			continue
		}
		if req.IsPending() || req.IsActiveGrant(now) {
			return req
		}
	}
	return nil
}
