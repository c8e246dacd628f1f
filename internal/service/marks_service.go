package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

// MarksService is the verification lock around marks entry
type MarksService struct {
	records         RecordStore
	access          *EditAccessService
	defaultMaxMarks float64
}

// NewMarksService creates a new marks service
func NewMarksService(records RecordStore, access *EditAccessService, defaultMaxMarks float64) *MarksService {
	if defaultMaxMarks <= 0 {
		defaultMaxMarks = models.DefaultMaxMarks
	}
	return &MarksService{
		records:         records,
		access:          access,
		defaultMaxMarks: defaultMaxMarks,
	}
}

// StudentRef addresses one record of a faculty. PaperCode is optional and
// only needed when a student sits several of the faculty's papers.
type StudentRef struct {
	RegistrationNumber string `json:"registration_number" validate:"required,regd"`
	PaperCode          string `json:"paper_code,omitempty"`
}

// MarkEntry is one marks value to save. A nil Marks is rejected per entry.
type MarkEntry struct {
	StudentRef
	Marks *float64 `json:"marks"`
}

// ItemResult is the per-student outcome of a batch
type ItemResult struct {
	RegistrationNumber string `json:"registration_number"`
	PaperCode          string `json:"paper_code,omitempty"`
	Success            bool   `json:"success"`
	Message            string `json:"message,omitempty"`
	Error              string `json:"error,omitempty"`
}

// BatchOutcome aggregates a bulk save or verify
type BatchOutcome struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Results      []ItemResult `json:"results"`
}

// PaperView is a record annotated for the faculty portal
type PaperView struct {
	models.StudentPaperRecord
	MaxMarks          float64 `json:"max_marks"`
	IsUnlocked        bool    `json:"is_unlocked"`
	HasPendingRequest bool    `json:"has_pending_request"`
	CanEdit           bool    `json:"can_edit"`
}

// PaperListing is everything the portal shows a faculty member
type PaperListing struct {
	FacultyEmail string              `json:"faculty_email"`
	Papers       []PaperView         `json:"papers"`
	Stats        models.FacultyStats `json:"stats"`
}

// ListPapers returns a faculty's records with unlock and pending annotations
func (s *MarksService) ListPapers(ctx context.Context, facultyEmail string) (*PaperListing, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}

	records, err := s.records.ListByFaculty(ctx, facultyEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	unlocked, pending, err := s.access.grantState(ctx, facultyEmail)
	if err != nil {
		return nil, err
	}

	listing := &PaperListing{
		FacultyEmail: facultyEmail,
		Papers:       make([]PaperView, 0, len(records)),
		Stats:        statsOf(records),
	}
	for _, rec := range records {
		isUnlocked := unlocked[rec.RegistrationNumber]
		listing.Papers = append(listing.Papers, PaperView{
			StudentPaperRecord: rec,
			MaxMarks:           rec.EffectiveMaxMarks(s.defaultMaxMarks),
			IsUnlocked:         isUnlocked,
			HasPendingRequest:  pending[rec.RegistrationNumber],
			CanEdit:            isUnlocked || !rec.Verified,
		})
	}
	return listing, nil
}

// locate finds the faculty's record for ref, telling apart unknown students from
// students that belong to someone else
func (s *MarksService) locate(ctx context.Context, facultyEmail string, ref StudentRef) (*models.StudentPaperRecord, error) {
	if err := validator.ValidateStruct(ref); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegd, err)
	}
	regd := strings.TrimSpace(ref.RegistrationNumber)

	records, err := s.records.ListByRegistrationNumber(ctx, regd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: student %s", ErrNotFound, regd)
	}

	var owned []models.StudentPaperRecord
	for _, rec := range records {
		if strings.EqualFold(strings.TrimSpace(rec.FacultyEmail), facultyEmail) {
			owned = append(owned, rec)
		}
	}
	if len(owned) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotOwned, regd)
	}

	rec := findRecord(owned, regd, strings.TrimSpace(ref.PaperCode))
	if rec == nil {
		return nil, fmt.Errorf("%w: student %s paper %s", ErrNotFound, regd, ref.PaperCode)
	}
	return rec, nil
}

func (s *MarksService) checkRange(rec *models.StudentPaperRecord, marks float64) error {
	maxMarks := rec.EffectiveMaxMarks(s.defaultMaxMarks)
	if math.IsNaN(marks) || math.IsInf(marks, 0) || marks < 0 || marks > maxMarks {
		return fmt.Errorf("%w: marks must be between 0 and %g", ErrInvalidMarks, maxMarks)
	}
	return nil
}

// Save writes marks for one student. Verified records need an open grant and
// are un-verified by the write.
func (s *MarksService) Save(ctx context.Context, facultyEmail string, entry MarkEntry) (*models.StudentPaperRecord, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}

	if entry.Marks == nil {
		return nil, fmt.Errorf("%w: marks are required", ErrInvalidMarks)
	}

	rec, err := s.locate(ctx, facultyEmail, entry.StudentRef)
	if err != nil {
		return nil, err
	}
	if err := s.checkRange(rec, *entry.Marks); err != nil {
		return nil, err
	}

	if rec.Verified {
		unlocked, err := s.access.IsUnlocked(ctx, facultyEmail, rec.RegistrationNumber)
		if err != nil {
			return nil, err
		}
		if !unlocked {
			return nil, fmt.Errorf("%w: %s", ErrRecordLocked, rec.RegistrationNumber)
		}
	}

	ok, err := s.records.UpdateMarks(ctx, rec.ID, *entry.Marks, rec.Verified)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStatusChanged, rec.RegistrationNumber)
	}

	marks := *entry.Marks
	rec.Marks = &marks
	rec.Verified = false
	return rec, nil
}

// SaveBulk applies Save to each entry independently
func (s *MarksService) SaveBulk(ctx context.Context, facultyEmail string, entries []MarkEntry) *BatchOutcome {
	out := &BatchOutcome{Results: make([]ItemResult, 0, len(entries))}
	for _, entry := range entries {
		item := ItemResult{RegistrationNumber: entry.RegistrationNumber, PaperCode: entry.PaperCode}
		if _, err := s.Save(ctx, facultyEmail, entry); err != nil {
			slog.Warn("Failed to save marks", "faculty_email", facultyEmail, "registration_number", entry.RegistrationNumber, "error", err)
			item.Error = err.Error()
			out.ErrorCount++
		} else {
			item.Success = true
			item.Message = "Saved"
			out.SuccessCount++
		}
		out.Results = append(out.Results, item)
	}
	out.Success = out.SuccessCount > 0
	out.Message = fmt.Sprintf("Saved %d of %d", out.SuccessCount, len(entries))
	return out
}

// Verify locks one student's marks, consuming any open grant
func (s *MarksService) Verify(ctx context.Context, facultyEmail string, ref StudentRef) (*ItemResult, error) {
	facultyEmail = validator.SanitizeEmail(facultyEmail)
	if !validator.IsValidEmail(facultyEmail) {
		return nil, ErrInvalidEmail
	}

	rec, err := s.locate(ctx, facultyEmail, ref)
	if err != nil {
		return nil, err
	}
	if rec.Marks == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarksRequired, rec.RegistrationNumber)
	}
	if err := s.checkRange(rec, *rec.Marks); err != nil {
		return nil, err
	}

	result := &ItemResult{RegistrationNumber: rec.RegistrationNumber, PaperCode: rec.PaperCode, Success: true}

	unlocked, err := s.access.IsUnlocked(ctx, facultyEmail, rec.RegistrationNumber)
	if err != nil {
		return nil, err
	}
	if rec.Verified && !unlocked {
		result.Message = "Already verified"
		return result, nil
	}

	if unlocked {
		if _, err := s.access.ForceRelock(ctx, facultyEmail, rec.RegistrationNumber); err != nil {
			return nil, err
		}
	}

	if rec.Verified {
		result.Message = "Verified and locked"
		return result, nil
	}

	ok, err := s.records.MarkVerified(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStatusChanged, rec.RegistrationNumber)
	}

	result.Message = "Verified"
	return result, nil
}

// VerifyBulk applies Verify to each student independently
func (s *MarksService) VerifyBulk(ctx context.Context, facultyEmail string, refs []StudentRef) *BatchOutcome {
	out := &BatchOutcome{Results: make([]ItemResult, 0, len(refs))}
	for _, ref := range refs {
		result, err := s.Verify(ctx, facultyEmail, ref)
		if err != nil {
			if !errors.Is(err, ErrMarksRequired) {
				slog.Warn("Failed to verify", "faculty_email", facultyEmail, "registration_number", ref.RegistrationNumber, "error", err)
			}
			out.ErrorCount++
			out.Results = append(out.Results, ItemResult{
				RegistrationNumber: ref.RegistrationNumber,
				PaperCode:          ref.PaperCode,
				Error:              err.Error(),
			})
			continue
		}
		out.SuccessCount++
		out.Results = append(out.Results, *result)
	}
	out.Success = out.SuccessCount > 0
	out.Message = fmt.Sprintf("Verified %d of %d", out.SuccessCount, len(refs))
	return out
}

// statsOf aggregates records into FacultyStats
func statsOf(records []models.StudentPaperRecord) models.FacultyStats {
	withMarks, verified := 0, 0
	for _, rec := range records {
		if rec.HasMarks() {
			withMarks++
		}
		if rec.Verified {
			verified++
		}
	}
	return models.NewFacultyStats(len(records), withMarks, verified)
}
