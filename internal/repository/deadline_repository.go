package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marks-access/internal/models"
)

// DeadlineRepository handles faculty deadline database operations
type DeadlineRepository struct {
	db *sql.DB
}

// NewDeadlineRepository creates a new deadline repository
func NewDeadlineRepository(db *sql.DB) *DeadlineRepository {
	return &DeadlineRepository{db: db}
}

const deadlineColumns = `
	faculty_email, due_date, total_students, students_with_marks, students_verified,
	completion_status, last_reminder_sent, reminder_count, completion_confirmed_date, notes
`

// Upsert creates or replaces the deadline row of a faculty
func (r *DeadlineRepository) Upsert(ctx context.Context, d *models.FacultyDeadline) error {
	query := `
		INSERT INTO faculty_deadlines (` + deadlineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (faculty_email) DO UPDATE SET
			due_date = EXCLUDED.due_date,
			total_students = EXCLUDED.total_students,
			students_with_marks = EXCLUDED.students_with_marks,
			students_verified = EXCLUDED.students_verified,
			completion_status = EXCLUDED.completion_status,
			last_reminder_sent = EXCLUDED.last_reminder_sent,
			reminder_count = EXCLUDED.reminder_count,
			completion_confirmed_date = EXCLUDED.completion_confirmed_date,
			notes = EXCLUDED.notes
	`

	_, err := r.db.ExecContext(ctx, query,
		normalizeEmail(d.FacultyEmail),
		d.DueDate,
		d.TotalStudents,
		d.StudentsWithMarks,
		d.StudentsVerified,
		d.CompletionStatus,
		d.LastReminderSent,
		d.ReminderCount,
		d.CompletionConfirmedDate,
		d.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deadline: %w", err)
	}

	return nil
}

// Get retrieves the deadline of a faculty, returning nil when none is set
func (r *DeadlineRepository) Get(ctx context.Context, facultyEmail string) (*models.FacultyDeadline, error) {
	query := `SELECT ` + deadlineColumns + ` FROM faculty_deadlines WHERE faculty_email = $1`

	d, err := scanDeadline(r.db.QueryRowContext(ctx, query, normalizeEmail(facultyEmail)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deadline: %w", err)
	}

	return d, nil
}

// List retrieves every deadline ordered by due date
func (r *DeadlineRepository) List(ctx context.Context) ([]models.FacultyDeadline, error) {
	query := `SELECT ` + deadlineColumns + ` FROM faculty_deadlines ORDER BY due_date, faculty_email`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines: %w", err)
	}
	defer rows.Close()

	var deadlines []models.FacultyDeadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deadline: %w", err)
		}
		deadlines = append(deadlines, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deadlines: %w", err)
	}

	return deadlines, nil
}

// UpdateStats persists the cached totals
func (r *DeadlineRepository) UpdateStats(ctx context.Context, facultyEmail string, stats models.FacultyStats) error {
	query := `
		UPDATE faculty_deadlines
		SET total_students = $1, students_with_marks = $2, students_verified = $3
		WHERE faculty_email = $4
	`
	_, err := r.db.ExecContext(ctx, query,
		stats.TotalStudents, stats.StudentsWithMarks, stats.StudentsVerified, normalizeEmail(facultyEmail))
	if err != nil {
		return fmt.Errorf("failed to update deadline stats: %w", err)
	}
	return nil
}

// UpdateStatus changes completion_status only while it still equals from
func (r *DeadlineRepository) UpdateStatus(ctx context.Context, facultyEmail, from, to string) (bool, error) {
	query := `UPDATE faculty_deadlines SET completion_status = $1 WHERE faculty_email = $2 AND completion_status = $3`
	result, err := r.db.ExecContext(ctx, query, to, normalizeEmail(facultyEmail), from)
	if err != nil {
		return false, fmt.Errorf("failed to update deadline status: %w", err)
	}
	return applied(result)
}

// RecordReminder stamps a sent reminder and bumps the counter
func (r *DeadlineRepository) RecordReminder(ctx context.Context, facultyEmail string, sentAt time.Time) error {
	query := `
		UPDATE faculty_deadlines
		SET last_reminder_sent = $1, reminder_count = reminder_count + 1
		WHERE faculty_email = $2
	`
	if _, err := r.db.ExecContext(ctx, query, sentAt, normalizeEmail(facultyEmail)); err != nil {
		return fmt.Errorf("failed to record reminder: %w", err)
	}
	return nil
}

// Confirm marks the deadline Confirmed; false means it already was
func (r *DeadlineRepository) Confirm(ctx context.Context, facultyEmail string, at time.Time) (bool, error) {
	query := `
		UPDATE faculty_deadlines
		SET completion_confirmed_date = $1, completion_status = $2
		WHERE faculty_email = $3 AND completion_status <> $2
	`
	result, err := r.db.ExecContext(ctx, query, at, models.CompletionConfirmed, normalizeEmail(facultyEmail))
	if err != nil {
		return false, fmt.Errorf("failed to confirm completion: %w", err)
	}
	return applied(result)
}

func scanDeadline(row rowScanner) (*models.FacultyDeadline, error) {
	d := &models.FacultyDeadline{}
	err := row.Scan(
		&d.FacultyEmail,
		&d.DueDate,
		&d.TotalStudents,
		&d.StudentsWithMarks,
		&d.StudentsVerified,
		&d.CompletionStatus,
		&d.LastReminderSent,
		&d.ReminderCount,
		&d.CompletionConfirmedDate,
		&d.Notes,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
