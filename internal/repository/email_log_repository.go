package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marks-access/internal/models"
)

// EmailLogRepository handles email activity log database operations
type EmailLogRepository struct {
	db *sql.DB
}

// NewEmailLogRepository creates a new email log repository
func NewEmailLogRepository(db *sql.DB) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

// Create records one notification attempt
func (r *EmailLogRepository) Create(ctx context.Context, entry *models.EmailLog) error {
	query := `
		INSERT INTO email_logs (type, recipient, subject, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		entry.Type,
		entry.Recipient,
		entry.Subject,
		entry.Status,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}

	return nil
}

// CountSuccessfulSince counts delivered notifications at or after since
func (r *EmailLogRepository) CountSuccessfulSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM email_logs WHERE status = $1 AND created_at >= $2`
	if err := r.db.QueryRowContext(ctx, query, models.EmailStatusSuccess, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count email logs: %w", err)
	}
	return count, nil
}

// ListRecent retrieves the newest log entries
func (r *EmailLogRepository) ListRecent(ctx context.Context, limit, offset int) ([]models.EmailLog, error) {
	query := `
		SELECT id, type, recipient, subject, status, created_at
		FROM email_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get email logs: %w", err)
	}
	defer rows.Close()

	var logs []models.EmailLog
	for rows.Next() {
		var entry models.EmailLog
		if err := rows.Scan(
			&entry.ID,
			&entry.Type,
			&entry.Recipient,
			&entry.Subject,
			&entry.Status,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan email log: %w", err)
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating email logs: %w", err)
	}

	return logs, nil
}
