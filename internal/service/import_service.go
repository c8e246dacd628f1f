package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

// Main-sheet headers
const (
	headerSerialNo     = "Sl. No."
	headerProgramme    = "Programme Name"
	headerCampus       = "Campus"
	headerSemester     = "Semester"
	headerRegd         = "Regd. No."
	headerStudentName  = "Student Name"
	headerPaperCode    = "Paper Code"
	headerPaperTitle   = "Paper Title"
	headerExaminer     = "Examiner"
	headerFacultyEmail = "Examiner Email"
	headerExam         = "Exam"
	headerCredits      = "Credits"
	headerMarks        = "Marks"
	headerVerified     = "Verified"
	headerMaxMarks     = "Max Marks"
)

var requiredHeaders = []string{
	headerRegd, headerStudentName, headerPaperCode, headerFacultyEmail,
	headerMarks, headerVerified, headerMaxMarks,
}

// Import errors
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrInvalidCSV    = errors.New("invalid csv")
)

// ImportService loads the main sheet into the record store
type ImportService struct {
	records RecordStore
}

// NewImportService creates a new import service
func NewImportService(records RecordStore) *ImportService {
	return &ImportService{records: records}
}

// ImportResult summarizes an import
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ImportCSV upserts every row of a main-sheet CSV export
func (s *ImportService) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrInvalidCSV, err)
	}

	cols := indexHeaders(header)
	for _, h := range requiredHeaders {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, h)
		}
	}

	result := &ImportResult{Errors: []string{}}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		rec, err := parseRow(row, cols)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		if err := s.records.Upsert(ctx, rec); err != nil {
			return result, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		result.Imported++
	}

	slog.Info("Records imported", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

// indexHeaders maps canonical header names to column positions. A marks header
// may carry its maximum, as in "Marks (100)".
func indexHeaders(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if strings.HasPrefix(h, headerMarks+" (") {
			h = headerMarks
		}
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func parseRow(row []string, cols map[string]int) (*models.StudentPaperRecord, error) {
	get := func(h string) string {
		i, ok := cols[h]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := &models.StudentPaperRecord{
		SerialNo:           get(headerSerialNo),
		Programme:          get(headerProgramme),
		Campus:             get(headerCampus),
		Semester:           get(headerSemester),
		RegistrationNumber: get(headerRegd),
		StudentName:        get(headerStudentName),
		PaperCode:          get(headerPaperCode),
		PaperTitle:         get(headerPaperTitle),
		Examiner:           get(headerExaminer),
		FacultyEmail:       validator.SanitizeEmail(get(headerFacultyEmail)),
		Exam:               get(headerExam),
		Credits:            get(headerCredits),
		Verified:           get(headerVerified) == models.VerifiedMarker,
	}

	if rec.RegistrationNumber == "" {
		return nil, fmt.Errorf("empty registration number")
	}
	if !validator.IsValidEmail(rec.FacultyEmail) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, rec.FacultyEmail)
	}

	var err error
	if rec.MaxMarks, err = parseOptionalFloat(get(headerMaxMarks)); err != nil {
		return nil, fmt.Errorf("max marks: %w", err)
	}
	if rec.Marks, err = parseOptionalFloat(get(headerMarks)); err != nil {
		return nil, fmt.Errorf("marks: %w", err)
	}

	if rec.Marks != nil {
		maxMarks := rec.EffectiveMaxMarks(models.DefaultMaxMarks)
		if *rec.Marks < 0 || *rec.Marks > maxMarks {
			return nil, fmt.Errorf("%w: %g not in 0-%g", ErrInvalidMarks, *rec.Marks, maxMarks)
		}
	}
	if rec.Verified && rec.Marks == nil {
		return nil, fmt.Errorf("%w: verified row has no marks", ErrMarksRequired)
	}

	return rec, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %q is not a finite number", ErrInvalidMarks, s)
	}
	return &f, nil
}
