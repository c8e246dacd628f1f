package service

import (
	"errors"
	"strings"
	"testing"

	"marks-access/internal/testutil"
)

const importHeader = "\ufeffSl. No.,Programme Name,Campus,Semester,Regd. No.,Student Name,Paper Code,Paper Title,Examiner,Examiner Email,Exam,Credits,Marks (100),Verified,Max Marks\n"

func TestImportCSV(t *testing.T) {
	store := testutil.NewMemoryRecordStore()
	svc := NewImportService(store)

	csv := importHeader +
		"1,B.Sc.,Main,III,2301001,Asha,PHY201,Mechanics,Dr. Rao,Prof.A@University.edu,End Sem,4,78,✅,100\n" +
		"2,B.Sc.,Main,III,2301002,Ravi,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,,,100\n" +
		"3,B.Sc.,Main,III,2301003,Mina,PHY201,Mechanics,Dr. Rao,not-an-email,End Sem,4,50,,100\n" +
		"4,B.Sc.,Main,III,2301004,Kiran,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,,✅,100\n" +
		"5,B.Sc.,Main,III,2301005,Zoya,LAB101,Lab,Dr. Rao,prof.a@university.edu,End Sem,2,55,,50\n" +
		"6,B.Sc.,Main,III,,Nobody,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,10,,100\n"

	result, err := svc.ImportCSV(t.Context(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if result.Imported != 2 || result.Skipped != 4 || len(result.Errors) != 4 {
		t.Fatalf("Unexpected result: %+v", result)
	}

	records, _ := store.ListByFaculty(t.Context(), testutil.FacultyA)
	if len(records) != 2 {
		t.Fatalf("Expected 2 stored records, got %d", len(records))
	}
	first := records[0]
	if !first.Verified || first.Marks == nil || *first.Marks != 78 || first.FacultyEmail != testutil.FacultyA {
		t.Errorf("Unexpected first record: %+v", first)
	}
	if records[1].Marks != nil || records[1].Verified {
		t.Errorf("Blank marks should import as unmarked: %+v", records[1])
	}
}

func TestImportCSVUpsertsOnReimport(t *testing.T) {
	store := testutil.NewMemoryRecordStore()
	svc := NewImportService(store)

	row := "1,B.Sc.,Main,III,2301001,Asha,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,%s,,100\n"
	for _, marks := range []string{"40", "45"} {
		if _, err := svc.ImportCSV(t.Context(), strings.NewReader(importHeader+strings.Replace(row, "%s", marks, 1))); err != nil {
			t.Fatalf("ImportCSV failed: %v", err)
		}
	}

	records, _ := store.ListAll(t.Context())
	if len(records) != 1 || *records[0].Marks != 45 {
		t.Errorf("Expected one upserted record with 45, got %+v", records)
	}
}

func TestImportCSVRejectsNonFiniteMarks(t *testing.T) {
	store := testutil.NewMemoryRecordStore()
	svc := NewImportService(store)

	csv := importHeader +
		"1,B.Sc.,Main,III,2301001,Asha,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,NaN,,100\n" +
		"2,B.Sc.,Main,III,2301002,Ravi,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,+Inf,,100\n" +
		"3,B.Sc.,Main,III,2301003,Mina,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,60,,NaN\n" +
		"4,B.Sc.,Main,III,2301004,Kiran,PHY201,Mechanics,Dr. Rao,prof.a@university.edu,End Sem,4,60,,100\n"

	result, err := svc.ImportCSV(t.Context(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 3 {
		t.Fatalf("Expected only the finite row imported, got %+v", result)
	}
	for _, msg := range result.Errors {
		if !strings.Contains(msg, "not a finite number") {
			t.Errorf("Unexpected row error %q", msg)
		}
	}

	records, _ := store.ListAll(t.Context())
	if len(records) != 1 || records[0].RegistrationNumber != "2301004" {
		t.Errorf("Expected only 2301004 stored, got %+v", records)
	}
}

func TestImportCSVMissingColumn(t *testing.T) {
	svc := NewImportService(testutil.NewMemoryRecordStore())

	_, err := svc.ImportCSV(t.Context(), strings.NewReader("Regd. No.,Student Name,Paper Code,Examiner Email,Marks,Verified\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("Expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "Max Marks") {
		t.Errorf("Error should name the missing column, got %v", err)
	}
}

func TestImportCSVEmptyBody(t *testing.T) {
	svc := NewImportService(testutil.NewMemoryRecordStore())

	if _, err := svc.ImportCSV(t.Context(), strings.NewReader("")); !errors.Is(err, ErrInvalidCSV) {
		t.Fatalf("Expected ErrInvalidCSV, got %v", err)
	}
}
