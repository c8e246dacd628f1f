package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// RequiredColumns lists, per table, the columns the services read and write.
var RequiredColumns = map[string][]string{
	"student_papers": {
		"id", "registration_number", "student_name", "paper_code", "paper_title",
		"examiner", "faculty_email", "programme", "semester", "exam", "credits",
		"max_marks", "marks", "verified",
	},
	"edit_requests": {
		"request_id", "faculty_email", "registration_number", "student_name", "paper_code",
		"current_marks_snapshot", "request_time", "status", "action_notes", "unlock_until",
	},
	"faculty_deadlines": {
		"faculty_email", "due_date", "total_students", "students_with_marks", "students_verified",
		"completion_status", "last_reminder_sent", "reminder_count", "completion_confirmed_date", "notes",
	},
	"properties": {"key", "value"},
	"email_logs": {"id", "type", "recipient", "subject", "status", "created_at"},
}

// ValidateSchema fails on the first table/column in required that the
// connected database does not declare.
func ValidateSchema(ctx context.Context, db *sql.DB, required map[string][]string) error {
	tables := make([]string, 0, len(required))
	for table := range required {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		present, err := tableColumns(ctx, db, table)
		if err != nil {
			return err
		}
		if len(present) == 0 {
			return fmt.Errorf("required table %q is missing", table)
		}
		for _, col := range required[table] {
			if !present[col] {
				return fmt.Errorf("required column %q is missing from table %q", col, table)
			}
		}
	}

	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
