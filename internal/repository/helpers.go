package repository

import (
	"database/sql"
	"fmt"
	"strings"
)

// applied reports whether a conditional UPDATE touched a row
func applied(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// appendNote is the SQL expression that appends $n to action_notes with a " | " separator
func appendNote(param string) string {
	return fmt.Sprintf(`CASE WHEN action_notes = '' THEN %[1]s::text ELSE action_notes || ' | ' || %[1]s::text END`, param)
}
