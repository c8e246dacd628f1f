package testutil

import (
	"database/sql"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"marks-access/internal/models"
)

// Fixture identities
const (
	AdminEmail    = "coe@university.edu"
	AdminPassword = "password123"
	FacultyA      = "prof.a@university.edu"
	FacultyB      = "prof.b@university.edu"
)

// Float returns a pointer to f
func Float(f float64) *float64 {
	return &f
}

// Record builds a fixture row for faculty and student
func Record(facultyEmail, regd, paperCode string, marks *float64, verified bool) models.StudentPaperRecord {
	return models.StudentPaperRecord{
		Programme:          "B.Sc. Physics",
		Campus:             "Main",
		Semester:           "III",
		RegistrationNumber: regd,
		StudentName:        "Student " + regd,
		PaperCode:          paperCode,
		PaperTitle:         "Paper " + paperCode,
		Examiner:           "Examiner " + facultyEmail,
		FacultyEmail:       facultyEmail,
		Exam:               "End Semester",
		Credits:            "4",
		MaxMarks:           Float(100),
		Marks:              marks,
		Verified:           verified,
	}
}

// SampleRecords returns two faculty with a mix of marked, verified and empty rows
func SampleRecords() []models.StudentPaperRecord {
	return []models.StudentPaperRecord{
		Record(FacultyA, "2301001", "PHY201", Float(78), true),
		Record(FacultyA, "2301002", "PHY201", Float(64), true),
		Record(FacultyA, "2301003", "PHY201", Float(55), false),
		Record(FacultyB, "2301004", "CHE105", nil, false),
		Record(FacultyB, "2301005", "CHE105", Float(91.5), false),
	}
}

// AdminPasswordHash returns a bcrypt hash of AdminPassword
func AdminPasswordHash(t *testing.T) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return string(hash)
}

// SeedRecords inserts records into student_papers and returns them with ids
func SeedRecords(t *testing.T, db *sql.DB, records []models.StudentPaperRecord) []models.StudentPaperRecord {
	t.Helper()

	seeded := make([]models.StudentPaperRecord, 0, len(records))
	for _, rec := range records {
		err := db.QueryRow(`
			INSERT INTO student_papers (
				programme, campus, semester, registration_number, student_name, paper_code,
				paper_title, examiner, faculty_email, exam, credits, max_marks, marks, verified
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`, rec.Programme, rec.Campus, rec.Semester, rec.RegistrationNumber, rec.StudentName, rec.PaperCode,
			rec.PaperTitle, rec.Examiner, rec.FacultyEmail, rec.Exam, rec.Credits, rec.MaxMarks, rec.Marks, rec.Verified,
		).Scan(&rec.ID)
		if err != nil {
			t.Fatalf("Failed to seed record %s: %v", rec.RegistrationNumber, err)
		}
		seeded = append(seeded, rec)
	}
	return seeded
}
