package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"marks-access/internal/models"
)

// RecordRepository handles student-paper database operations
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `
	id, serial_no, programme, campus, semester, registration_number, student_name,
	paper_code, paper_title, examiner, faculty_email, exam, credits, max_marks, marks, verified
`

// ListAll retrieves every record ordered by insertion
func (r *RecordRepository) ListAll(ctx context.Context) ([]models.StudentPaperRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM student_papers ORDER BY id`
	return r.query(ctx, query)
}

// ListByFaculty retrieves a faculty's records, matching the email case-insensitively
func (r *RecordRepository) ListByFaculty(ctx context.Context, facultyEmail string) ([]models.StudentPaperRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM student_papers WHERE LOWER(faculty_email) = $1 ORDER BY id`
	return r.query(ctx, query, normalizeEmail(facultyEmail))
}

// ListByRegistrationNumber retrieves every paper row of one student across faculties
func (r *RecordRepository) ListByRegistrationNumber(ctx context.Context, regd string) ([]models.StudentPaperRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM student_papers WHERE registration_number = $1 ORDER BY id`
	return r.query(ctx, query, strings.TrimSpace(regd))
}

// UpdateMarks writes marks and clears the verified flag, but only while the
// row's verified flag still equals expectVerified.
func (r *RecordRepository) UpdateMarks(ctx context.Context, id int64, marks float64, expectVerified bool) (bool, error) {
	query := `
		UPDATE student_papers
		SET marks = $1, verified = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND verified = $3
	`
	result, err := r.db.ExecContext(ctx, query, marks, id, expectVerified)
	if err != nil {
		return false, fmt.Errorf("failed to update marks: %w", err)
	}
	return applied(result)
}

// MarkVerified sets the verified flag on a row that has marks and is not yet verified
func (r *RecordRepository) MarkVerified(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE student_papers
		SET verified = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND verified = FALSE AND marks IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark record verified: %w", err)
	}
	return applied(result)
}

// Upsert inserts a record or refreshes the one with the same faculty, student and paper
func (r *RecordRepository) Upsert(ctx context.Context, rec *models.StudentPaperRecord) error {
	query := `
		INSERT INTO student_papers (
			serial_no, programme, campus, semester, registration_number, student_name,
			paper_code, paper_title, examiner, faculty_email, exam, credits, max_marks, marks, verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (faculty_email, registration_number, paper_code) DO UPDATE SET
			serial_no = EXCLUDED.serial_no,
			programme = EXCLUDED.programme,
			campus = EXCLUDED.campus,
			semester = EXCLUDED.semester,
			student_name = EXCLUDED.student_name,
			paper_title = EXCLUDED.paper_title,
			examiner = EXCLUDED.examiner,
			exam = EXCLUDED.exam,
			credits = EXCLUDED.credits,
			max_marks = EXCLUDED.max_marks,
			marks = EXCLUDED.marks,
			verified = EXCLUDED.verified,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		rec.SerialNo,
		rec.Programme,
		rec.Campus,
		rec.Semester,
		strings.TrimSpace(rec.RegistrationNumber),
		rec.StudentName,
		rec.PaperCode,
		rec.PaperTitle,
		rec.Examiner,
		normalizeEmail(rec.FacultyEmail),
		rec.Exam,
		rec.Credits,
		rec.MaxMarks,
		rec.Marks,
		rec.Verified,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	return nil
}

func (r *RecordRepository) query(ctx context.Context, query string, args ...any) ([]models.StudentPaperRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	defer rows.Close()

	var records []models.StudentPaperRecord
	for rows.Next() {
		var rec models.StudentPaperRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SerialNo,
			&rec.Programme,
			&rec.Campus,
			&rec.Semester,
			&rec.RegistrationNumber,
			&rec.StudentName,
			&rec.PaperCode,
			&rec.PaperTitle,
			&rec.Examiner,
			&rec.FacultyEmail,
			&rec.Exam,
			&rec.Credits,
			&rec.MaxMarks,
			&rec.Marks,
			&rec.Verified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
