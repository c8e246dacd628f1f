package email

import (
	"time"

	"marks-access/internal/models"
)

// EditRequestItem is one student line of an edit-access request notification
type EditRequestItem struct {
	RegistrationNumber string
	StudentName        string
	PaperCode          string
}

// SkippedFaculty is a faculty member left out of a bulk OTP send
type SkippedFaculty struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// Reminder carries everything an overdue-deadline message shows
type Reminder struct {
	FacultyEmail  string
	DueDate       time.Time
	DaysPastDue   int
	ReminderCount int
	Stats         models.FacultyStats
	OTP           string
}
