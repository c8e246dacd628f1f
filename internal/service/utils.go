package service

import (
	"strings"
	"time"

	"marks-access/internal/models"
)

// uniqueTrimmed trims each value and drops blanks and repeats, keeping order
func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// findRecord returns the first record for regd, narrowed to paperCode when given
func findRecord(records []models.StudentPaperRecord, regd, paperCode string) *models.StudentPaperRecord {
	for i := range records {
		if records[i].RegistrationNumber != regd {
			continue
		}
		if paperCode != "" && !strings.EqualFold(records[i].PaperCode, paperCode) {
			continue
		}
		return &records[i]
	}
	return nil
}

// findVerifiedRecord returns any verified row of regd, so a student with
// several papers qualifies once one of them is locked
func findVerifiedRecord(records []models.StudentPaperRecord, regd string) *models.StudentPaperRecord {
	for i := range records {
		if records[i].RegistrationNumber == regd && records[i].Verified {
			return &records[i]
		}
	}
	return nil
}

// joinNote mirrors the SQL note append used by the edit request store
func joinNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + " | " + note
}

// dateOf drops the clock part of t, keeping its calendar date
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b
func daysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}
