package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"marks-access/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict
const uniqueViolation = "23505"

// EditRequestRepository handles edit-access request database operations
type EditRequestRepository struct {
	db *sql.DB
}

// NewEditRequestRepository creates a new edit request repository
func NewEditRequestRepository(db *sql.DB) *EditRequestRepository {
	return &EditRequestRepository{db: db}
}

const editRequestColumns = `
	request_id, faculty_email, registration_number, student_name, paper_code,
	current_marks_snapshot, request_time, status, action_notes, unlock_until
`

// Create inserts a new request. A second Pending request for the same pair
// is rejected with models.ErrDuplicateRequest.
func (r *EditRequestRepository) Create(ctx context.Context, req *models.EditAccessRequest) error {
	query := `
		INSERT INTO edit_requests (` + editRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.RequestID,
		normalizeEmail(req.FacultyEmail),
		req.RegistrationNumber,
		req.StudentName,
		req.PaperCode,
		req.CurrentMarksSnapshot,
		req.RequestTime,
		req.Status,
		req.ActionNotes,
		req.UnlockUntil,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "idx_edit_requests_one_pending" {
		return fmt.Errorf("%w: %s", models.ErrDuplicateRequest, req.RegistrationNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to create edit request: %w", err)
	}

	return nil
}

// GetByID retrieves a request, returning nil when it does not exist
func (r *EditRequestRepository) GetByID(ctx context.Context, requestID string) (*models.EditAccessRequest, error) {
	query := `SELECT ` + editRequestColumns + ` FROM edit_requests WHERE request_id = $1`

	req, err := scanEditRequest(r.db.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edit request: %w", err)
	}

	return req, nil
}

// List retrieves requests newest first, optionally filtered by stored status
func (r *EditRequestRepository) List(ctx context.Context, status string) ([]models.EditAccessRequest, error) {
	if status == "" {
		return r.query(ctx, `SELECT `+editRequestColumns+` FROM edit_requests ORDER BY request_time DESC`)
	}
	return r.query(ctx, `SELECT `+editRequestColumns+` FROM edit_requests WHERE status = $1 ORDER BY request_time DESC`, status)
}

// ListByFaculty retrieves every request filed by a faculty member
func (r *EditRequestRepository) ListByFaculty(ctx context.Context, facultyEmail string) ([]models.EditAccessRequest, error) {
	query := `SELECT ` + editRequestColumns + ` FROM edit_requests WHERE LOWER(faculty_email) = $1 ORDER BY request_time DESC`
	return r.query(ctx, query, normalizeEmail(facultyEmail))
}

// TransitionFromPending moves a Pending request to status in a single conditional write
func (r *EditRequestRepository) TransitionFromPending(ctx context.Context, requestID, status, note string, unlockUntil *time.Time) (bool, error) {
	query := `
		UPDATE edit_requests
		SET unlock_until = $1, action_notes = ` + appendNote("$2") + `, status = $3
		WHERE request_id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, unlockUntil, note, status, requestID, models.RequestStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update edit request: %w", err)
	}
	return applied(result)
}

// RelockApproved closes every Approved grant for the pair
func (r *EditRequestRepository) RelockApproved(ctx context.Context, facultyEmail, regd string, unlockUntil time.Time, note string) (int64, error) {
	query := `
		UPDATE edit_requests
		SET unlock_until = $1, action_notes = ` + appendNote("$2") + `, status = $3
		WHERE LOWER(faculty_email) = $4 AND registration_number = $5 AND status = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		unlockUntil, note, models.RequestStatusCompleted,
		normalizeEmail(facultyEmail), regd, models.RequestStatusApproved,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to relock edit requests: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEditRequest(row rowScanner) (*models.EditAccessRequest, error) {
	req := &models.EditAccessRequest{}
	err := row.Scan(
		&req.RequestID,
		&req.FacultyEmail,
		&req.RegistrationNumber,
		&req.StudentName,
		&req.PaperCode,
		&req.CurrentMarksSnapshot,
		&req.RequestTime,
		&req.Status,
		&req.ActionNotes,
		&req.UnlockUntil,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *EditRequestRepository) query(ctx context.Context, query string, args ...any) ([]models.EditAccessRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get edit requests: %w", err)
	}
	defer rows.Close()

	var requests []models.EditAccessRequest
	for rows.Next() {
		req, err := scanEditRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit request: %w", err)
		}
		requests = append(requests, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edit requests: %w", err)
	}

	return requests, nil
}
