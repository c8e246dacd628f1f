package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

const (
	// CompletionFlagPrefix prefixes the per-triple dedup keys
	CompletionFlagPrefix = "admin_notified_all_complete_"
	// CompletionNotifiedKey is set once any completion report has been sent
	CompletionNotifiedKey = "ASSESSMENT_COMPLETION_NOTIFIED"

	unspecifiedPaper = "Not Specified"
)

// CompletionService detects global completion and notifies the administrator
// at most once per (faculty, students, verified) triple
type CompletionService struct {
	records         RecordStore
	props           PropertyStore
	notifier        Notifier
	defaultMaxMarks float64
	now             func() time.Time
}

// NewCompletionService creates a new completion service
func NewCompletionService(records RecordStore, props PropertyStore, notifier Notifier, defaultMaxMarks float64) *CompletionService {
	if defaultMaxMarks <= 0 {
		defaultMaxMarks = models.DefaultMaxMarks
	}
	return &CompletionService{
		records:         records,
		props:           props,
		notifier:        notifier,
		defaultMaxMarks: defaultMaxMarks,
		now:             time.Now,
	}
}

// CompletionCheck is the result of one evaluation
type CompletionCheck struct {
	Complete      bool   `json:"complete"`
	FacultyCount  int    `json:"faculty_count"`
	TotalStudents int    `json:"total_students"`
	TotalVerified int    `json:"total_verified"`
	Key           string `json:"key,omitempty"`
	Notified      bool   `json:"notified"`
	Suppressed    bool   `json:"suppressed"`
}

// CompletionKey derives the dedup key for a completion triple
func CompletionKey(facultyCount, totalStudents, totalVerified int) string {
	return fmt.Sprintf("%s%d_%d_%d", CompletionFlagPrefix, facultyCount, totalStudents, totalVerified)
}

// Evaluate checks global completion and sends the report unless this exact
// triple was already reported
func (s *CompletionService) Evaluate(ctx context.Context) (*CompletionCheck, error) {
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	check := &CompletionCheck{}
	perFaculty := make(map[string]models.FacultyStats)
	grouped := make(map[string][]models.StudentPaperRecord)
	for _, rec := range records {
		key := validator.SanitizeEmail(rec.FacultyEmail)
		if key == "" {
			continue
		}
		grouped[key] = append(grouped[key], rec)
	}

	check.Complete = len(grouped) > 0
	for facultyEmail, recs := range grouped {
		stats := statsOf(recs)
		perFaculty[facultyEmail] = stats
		check.TotalStudents += stats.TotalStudents
		check.TotalVerified += stats.StudentsVerified
		if stats.StudentsVerified != stats.TotalStudents {
			check.Complete = false
		}
	}
	check.FacultyCount = len(perFaculty)
	if check.TotalStudents == 0 {
		check.Complete = false
	}

	if !check.Complete {
		completionReportsTotal.WithLabelValues("incomplete").Inc()
		return check, nil
	}

	// Claiming the key before sending lets exactly one evaluator, in any
	// process, send the report for this triple
	check.Key = CompletionKey(check.FacultyCount, check.TotalStudents, check.TotalVerified)
	claimed, err := s.props.SetIfAbsent(ctx, check.Key, s.now().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !claimed {
		check.Suppressed = true
		completionReportsTotal.WithLabelValues("suppressed").Inc()
		return check, nil
	}

	report := s.buildReport(records)
	if err := s.notifier.SendAdminCompletionReport(ctx, report); err != nil {
		completionReportsTotal.WithLabelValues("failed").Inc()
		if delErr := s.props.Delete(ctx, check.Key); delErr != nil {
			slog.Error("Failed to release completion flag", "key", check.Key, "error", delErr)
		}
		return check, fmt.Errorf("failed to send completion report: %w", err)
	}

	if err := s.props.Set(ctx, CompletionNotifiedKey, "true"); err != nil {
		slog.Error("Failed to record completion notified flag", "error", err)
	}

	check.Notified = true
	completionReportsTotal.WithLabelValues("sent").Inc()
	slog.Info("Global completion reported", "faculty_count", check.FacultyCount,
		"total_students", check.TotalStudents, "total_verified", check.TotalVerified)
	return check, nil
}

// Report builds the paper-wise breakdown from the current records
func (s *CompletionService) Report(ctx context.Context) (*models.CompletionReport, error) {
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.buildReport(records), nil
}

// Reset deletes every completion dedup flag so the next completion is reported again
func (s *CompletionService) Reset(ctx context.Context) (int, error) {
	keys, err := s.props.List(ctx, CompletionFlagPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	keys = append(keys, CompletionNotifiedKey)

	cleared := 0
	for _, key := range keys {
		if err := s.props.Delete(ctx, key); err != nil {
			return cleared, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		cleared++
	}

	slog.Info("Completion notification flags reset", "cleared", cleared)
	return cleared, nil
}

func (s *CompletionService) buildReport(records []models.StudentPaperRecord) *models.CompletionReport {
	report := &models.CompletionReport{GeneratedAt: s.now(), Papers: []models.PaperSummary{}}

	papers := make(map[string]*models.PaperSummary)
	faculty := make(map[string]struct{})
	for _, rec := range records {
		facultyEmail := validator.SanitizeEmail(rec.FacultyEmail)
		if facultyEmail != "" {
			faculty[facultyEmail] = struct{}{}
		}

		code := strings.TrimSpace(rec.PaperCode)
		if code == "" {
			code = unspecifiedPaper
		}

		p, ok := papers[code]
		if !ok {
			p = &models.PaperSummary{
				PaperCode:     code,
				PaperTitle:    rec.PaperTitle,
				Programme:     rec.Programme,
				Semester:      rec.Semester,
				Exam:          rec.Exam,
				Credits:       rec.Credits,
				MaxMarks:      rec.EffectiveMaxMarks(s.defaultMaxMarks),
				FacultyEmails: []string{},
				FacultyNames:  []string{},
			}
			papers[code] = p
		}

		p.TotalStudents++
		report.TotalStudents++
		if rec.HasMarks() {
			p.StudentsWithMarks++
			report.WithMarks++
		}
		if rec.Verified {
			p.StudentsVerified++
			report.TotalVerified++
		}
		p.FacultyEmails = appendUnique(p.FacultyEmails, facultyEmail)
		p.FacultyNames = appendUnique(p.FacultyNames, strings.TrimSpace(rec.Examiner))
	}

	codes := make([]string, 0, len(papers))
	for code := range papers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		report.Papers = append(report.Papers, *papers[code])
	}

	report.FacultyCount = len(faculty)
	report.Complete = report.TotalStudents > 0 && report.TotalVerified == report.TotalStudents
	return report
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
