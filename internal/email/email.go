package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marks-access/internal/config"
	"marks-access/internal/models"
)

// ErrQuotaExceeded is returned when the daily send quota is used up
var ErrQuotaExceeded = errors.New("daily email quota exceeded")

// LogStore records notification attempts
type LogStore interface {
	Create(ctx context.Context, entry *models.EmailLog) error
	CountSuccessfulSince(ctx context.Context, since time.Time) (int, error)
	ListRecent(ctx context.Context, limit, offset int) ([]models.EmailLog, error)
}

// Service handles email operations
type Service struct {
	sender     Sender
	logs       LogStore
	config     *config.EmailConfig
	adminEmail string
	now        func() time.Time
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig, adminEmail string, sender Sender, logs LogStore) *Service {
	return &Service{
		sender:     sender,
		logs:       logs,
		config:     cfg,
		adminEmail: adminEmail,
		now:        time.Now,
	}
}

// QuotaReport is the remaining daily quota with a coarse status
type QuotaReport struct {
	Remaining int       `json:"remaining"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// RemainingQuota returns the configured daily quota minus today's successful sends
func (s *Service) RemainingQuota(ctx context.Context) (int, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sent, err := s.logs.CountSuccessfulSince(ctx, midnight)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent emails: %w", err)
	}

	remaining := s.config.DailyQuota - sent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Quota reports the remaining quota as Good, Low or Critical
func (s *Service) Quota(ctx context.Context) (*QuotaReport, error) {
	remaining, err := s.RemainingQuota(ctx)
	if err != nil {
		return nil, err
	}

	status := "Critical"
	switch {
	case remaining >= 25:
		status = "Good"
	case remaining >= 10:
		status = "Low"
	}

	return &QuotaReport{Remaining: remaining, Status: status, CheckedAt: s.now()}, nil
}

// RecentLogs returns the newest email log entries
func (s *Service) RecentLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error) {
	return s.logs.ListRecent(ctx, limit, offset)
}

// deliver enforces the quota, sends, and records the attempt
func (s *Service) deliver(ctx context.Context, emailType, to, subject, body string) error {
	remaining, err := s.RemainingQuota(ctx)
	if err != nil {
		return err
	}

	var sendErr error
	if remaining <= 0 {
		sendErr = ErrQuotaExceeded
	} else {
		sendErr = s.sender.Send(ctx, to, subject, body)
	}

	status := models.EmailStatusSuccess
	if sendErr != nil {
		status = "FAILED: " + sendErr.Error()
		notificationsTotal.WithLabelValues(emailType, "failed").Inc()
		slog.Error("Failed to send email", "type", emailType, "to", to, "error", sendErr)
	} else {
		notificationsTotal.WithLabelValues(emailType, "sent").Inc()
		slog.Info("Email sent successfully", "type", emailType, "to", to)
	}

	logErr := s.logs.Create(ctx, &models.EmailLog{
		Type:      emailType,
		Recipient: to,
		Subject:   subject,
		Status:    status,
		CreatedAt: s.now(),
	})
	if logErr != nil {
		slog.Warn("Failed to record email log", "type", emailType, "to", to, "error", logErr)
	}

	return sendErr
}

// SendOTP sends a faculty member their portal access code
func (s *Service) SendOTP(ctx context.Context, to, otp string) error {
	subject := "Your Marks Portal Access Code"
	body := layout("Marks Portal Access", fmt.Sprintf(`
        <p>Dear Faculty Member,</p>
        <p>Use the following one-time password to sign in to the marks entry portal:</p>
        <div style="text-align: center; margin: 30px 0;">
            <span style="font-size: 28px; letter-spacing: 6px; font-weight: bold; color: #1a5276;">%s</span>
        </div>
        %s
        <p>The code stays valid until a new one is issued to you. Do not share it.</p>
`, esc(otp), s.portalButton()))

	return s.deliver(ctx, models.EmailTypeOTP, to, subject, body)
}

// SendEditRequestNotification tells the administrator about new edit-access requests
func (s *Service) SendEditRequestNotification(ctx context.Context, facultyEmail string, items []EditRequestItem) error {
	if len(items) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Edit Access Request: %d student(s) from %s", len(items), facultyEmail)

	list := ""
	for _, item := range items {
		list += fmt.Sprintf("<li>%s - %s (Paper Code: %s)</li>\n",
			esc(item.RegistrationNumber), esc(item.StudentName), esc(item.PaperCode))
	}

	body := layout("New Edit Access Request", fmt.Sprintf(`
        <p><strong>%s</strong> requested edit access for the following verified records:</p>
        <ul>%s</ul>
        <p>Review the requests in the administration area to approve or disapprove them.</p>
`, esc(facultyEmail), list))

	return s.deliver(ctx, models.EmailTypeEditRequest, s.adminEmail, subject, body)
}

// SendEditApproval tells a faculty member a record is unlocked until the grant expires
func (s *Service) SendEditApproval(ctx context.Context, req *models.EditAccessRequest) error {
	subject := fmt.Sprintf("Edit Access Approved - %s", req.RegistrationNumber)

	until := ""
	if req.UnlockUntil != nil {
		until = req.UnlockUntil.Format("02 Jan 2006 15:04")
	}

	body := layout("Edit Access Approved", fmt.Sprintf(`
        <p>Your request to edit marks for <strong>%s - %s</strong> (Paper Code: %s) has been approved.</p>
        <p>The record is unlocked until <strong>%s</strong>. Verifying the student again locks it immediately.</p>
        %s
`, esc(req.RegistrationNumber), esc(req.StudentName), esc(req.PaperCode), until, s.portalButton()))

	return s.deliver(ctx, models.EmailTypeEditApproval, req.FacultyEmail, subject, body)
}

// SendEditDisapproval tells a faculty member why a request was declined
func (s *Service) SendEditDisapproval(ctx context.Context, req *models.EditAccessRequest, reason string) error {
	subject := fmt.Sprintf("Edit Access Request Declined - %s", req.RegistrationNumber)

	body := layout("Edit Access Request Declined", fmt.Sprintf(`
        <p>Your request to edit marks for <strong>%s - %s</strong> (Paper Code: %s) was not approved.</p>
        <div style="background-color: #fdecea; border-left: 4px solid #c0392b; padding: 15px; margin: 20px 0;">
            <p style="margin: 5px 0;"><strong>Reason:</strong> %s</p>
        </div>
`, esc(req.RegistrationNumber), esc(req.StudentName), esc(req.PaperCode), esc(reason)))

	return s.deliver(ctx, models.EmailTypeEditDisapproval, req.FacultyEmail, subject, body)
}

// SendDeadlineReminder nudges an overdue faculty member, including their access code
func (s *Service) SendDeadlineReminder(ctx context.Context, r Reminder) error {
	subject := fmt.Sprintf("Reminder #%d: Marks Entry Overdue by %d day(s)", r.ReminderCount, r.DaysPastDue)

	body := layout("Marks Entry Deadline Passed", fmt.Sprintf(`
        <p>Dear Faculty Member,</p>
        <p>The deadline for marks entry was <strong>%s</strong>, which is <strong>%d day(s)</strong> ago.</p>
        <table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
            <tr><td style="padding: 6px;">Total students</td><td style="padding: 6px;">%d</td></tr>
            <tr><td style="padding: 6px;">Marks entered</td><td style="padding: 6px;">%d (%d%%)</td></tr>
            <tr><td style="padding: 6px;">Verified</td><td style="padding: 6px;">%d (%d%%)</td></tr>
        </table>
        <p>Your access code: <strong style="letter-spacing: 4px;">%s</strong></p>
        %s
`,
		r.DueDate.Format("02 Jan 2006"), r.DaysPastDue,
		r.Stats.TotalStudents,
		r.Stats.StudentsWithMarks, r.Stats.CompletionPercentage,
		r.Stats.StudentsVerified, r.Stats.VerificationPercentage,
		esc(r.OTP), s.portalButton()))

	return s.deliver(ctx, models.EmailTypeDeadlineReminder, r.FacultyEmail, subject, body)
}

// SendCompletionConfirmation acknowledges a faculty member's completion
func (s *Service) SendCompletionConfirmation(ctx context.Context, to string, stats models.FacultyStats) error {
	subject := "Marks Entry Completion Confirmed"

	body := layout("Completion Confirmed", fmt.Sprintf(`
        <p>Thank you. Your marks entry has been recorded as complete.</p>
        <p>%d student(s), %d with marks, %d verified.</p>
`, stats.TotalStudents, stats.StudentsWithMarks, stats.StudentsVerified))

	return s.deliver(ctx, models.EmailTypeCompletionConfirmed, to, subject, body)
}

// SendAdminCompletionReport sends the paper-wise breakdown once every faculty has finished
func (s *Service) SendAdminCompletionReport(ctx context.Context, report *models.CompletionReport) error {
	subject := fmt.Sprintf("All Marks Verified: %d faculty, %d students", report.FacultyCount, report.TotalStudents)

	rows := ""
	for _, p := range report.Papers {
		rows += fmt.Sprintf(`
            <tr style="border-bottom: 1px solid #eee;">
                <td style="padding: 8px;">%s<br><span style="color: #999; font-size: 12px;">%s</span></td>
                <td style="padding: 8px;">%s / %s</td>
                <td style="padding: 8px;">%s</td>
                <td style="padding: 8px; text-align: center;">%d / %d</td>
                <td style="padding: 8px;">%s</td>
            </tr>`,
			esc(p.PaperCode), esc(p.PaperTitle), esc(p.Programme), esc(p.Semester), esc(p.Exam),
			p.StudentsVerified, p.TotalStudents, esc(joinNames(p.FacultyNames, p.FacultyEmails)))
	}

	body := layout("Assessment Completion Report", fmt.Sprintf(`
        <p>Every faculty member has verified all assigned students.</p>
        <p><strong>%d</strong> faculty, <strong>%d</strong> students, <strong>%d</strong> verified.</p>
        <table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
            <thead>
                <tr style="background-color: #f5f5f5; border-bottom: 2px solid #ddd;">
                    <th style="padding: 8px; text-align: left;">Paper</th>
                    <th style="padding: 8px; text-align: left;">Programme / Semester</th>
                    <th style="padding: 8px; text-align: left;">Exam</th>
                    <th style="padding: 8px; text-align: center;">Verified</th>
                    <th style="padding: 8px; text-align: left;">Faculty</th>
                </tr>
            </thead>
            <tbody>%s</tbody>
        </table>
        <p style="color: #999; font-size: 12px;">Generated %s</p>
`, report.FacultyCount, report.TotalStudents, report.TotalVerified, rows,
		report.GeneratedAt.Format("02 Jan 2006 15:04")))

	return s.deliver(ctx, models.EmailTypeAdminCompletion, s.adminEmail, subject, body)
}

// SendAdminSelectiveAlert tells the administrator which faculty a bulk OTP send
// skipped for lack of a deadline. An empty list sends nothing.
func (s *Service) SendAdminSelectiveAlert(ctx context.Context, skipped []SkippedFaculty, totalFaculty int) error {
	if len(skipped) == 0 {
		return nil
	}

	subject := "Faculty Skipped - Missing Deadlines Alert"

	valid := totalFaculty - len(skipped)
	percent := 0
	if totalFaculty > 0 {
		percent = valid * 100 / totalFaculty
	}

	items := ""
	for _, f := range skipped {
		items += fmt.Sprintf(`
            <li><strong>%s</strong>: %s</li>`, esc(f.Email), esc(f.Reason))
	}

	body := layout("Faculty Skipped: Missing Deadlines", fmt.Sprintf(`
        <p>The last OTP distribution only reached faculty with a deadline set.</p>
        <p><strong>%d</strong> faculty found, <strong>%d</strong> with deadlines (%d%%), <strong>%d</strong> skipped.</p>
        <ul>%s
        </ul>
        <p>Set a deadline for each skipped faculty member, then send their access code individually.</p>
`, totalFaculty, valid, percent, len(skipped), items))

	return s.deliver(ctx, models.EmailTypeAdminSelectiveAlert, s.adminEmail, subject, body)
}

// SendPendingDigest lists edit requests still awaiting a decision; empty lists send nothing
func (s *Service) SendPendingDigest(ctx context.Context, requests []models.EditAccessRequest) error {
	if len(requests) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Daily Summary: %d pending edit access request(s)", len(requests))

	now := s.now()
	rows := ""
	for _, req := range requests {
		waiting := int(now.Sub(req.RequestTime).Hours() / 24)
		rows += fmt.Sprintf(`
            <tr style="border-bottom: 1px solid #eee;">
                <td style="padding: 8px;">%s</td>
                <td style="padding: 8px;">%s - %s</td>
                <td style="padding: 8px;">%s</td>
                <td style="padding: 8px; text-align: center;">%d day(s)</td>
            </tr>`,
			esc(req.FacultyEmail), esc(req.RegistrationNumber), esc(req.StudentName), esc(req.PaperCode), waiting)
	}

	body := layout("Pending Edit Access Requests", fmt.Sprintf(`
        <table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
            <thead>
                <tr style="background-color: #f5f5f5; border-bottom: 2px solid #ddd;">
                    <th style="padding: 8px; text-align: left;">Faculty</th>
                    <th style="padding: 8px; text-align: left;">Student</th>
                    <th style="padding: 8px; text-align: left;">Paper</th>
                    <th style="padding: 8px; text-align: center;">Waiting</th>
                </tr>
            </thead>
            <tbody>%s</tbody>
        </table>
`, rows))

	return s.deliver(ctx, models.EmailTypePendingDigest, s.adminEmail, subject, body)
}

func (s *Service) portalButton() string {
	return fmt.Sprintf(`
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #1a5276; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Open Marks Portal</a>
        </div>`, esc(s.config.PortalURL))
}
