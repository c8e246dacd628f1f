package handlers

import (
	"net/http"

	"marks-access/internal/auth"
	"marks-access/internal/middleware"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Auth     *AuthHandler
	Faculty  *FacultyHandler
	Admin    *AdminHandler
	Deadline *DeadlineHandler
	Report   *ReportHandler
	Audit    *AuditHandler
}

// RegisterRoutes mounts the API under /api/v1
func RegisterRoutes(mux *http.ServeMux, h Handlers, authMw *middleware.AuthMiddleware, auditMw *middleware.AuditMiddleware) {
	faculty := func(fn http.HandlerFunc) http.Handler {
		return authMw.Authenticate(middleware.RequireRole(auth.RoleFaculty)(fn))
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return authMw.Authenticate(middleware.RequireRole(auth.RoleAdmin)(fn))
	}
	// audited admin actions
	action := func(name, resource string, fn http.HandlerFunc) http.Handler {
		return authMw.Authenticate(middleware.RequireRole(auth.RoleAdmin)(auditMw.Log(name, resource)(fn)))
	}

	// Public endpoints
	mux.HandleFunc("POST "+AuthAPIBasePath+"/otp/verify", h.Auth.VerifyOTP)
	mux.HandleFunc("POST "+AuthAPIBasePath+"/admin/login", h.Auth.AdminLogin)

	// Faculty portal
	mux.Handle("GET "+FacultyBasePath+"/papers", faculty(h.Faculty.ListPapers))
	mux.Handle("POST "+FacultyBasePath+"/marks", faculty(h.Faculty.SaveMarks))
	mux.Handle("POST "+FacultyBasePath+"/verify", faculty(h.Faculty.Verify))
	mux.Handle("POST "+FacultyBasePath+"/edit-requests", faculty(h.Faculty.SubmitEditRequests))
	mux.Handle("GET "+FacultyBasePath+"/deadline", faculty(h.Faculty.GetDeadline))
	mux.Handle("POST "+FacultyBasePath+"/deadline/confirm", faculty(h.Faculty.ConfirmCompletion))

	// Access codes
	mux.Handle("POST "+AdminBasePath+"/otp/send-all", action(AuditActionOTPSendAll, "otp", h.Admin.SendAllOTPs))
	mux.Handle("POST "+AdminBasePath+"/otp/send", action(AuditActionOTPSend, "otp", h.Admin.SendOTP))

	// Edit-request queue
	mux.Handle("GET "+AdminBasePath+"/edit-requests", admin(h.Admin.ListEditRequests))
	mux.Handle("POST "+AdminBasePath+"/edit-requests/approve-all", action(AuditActionEditApproveAll, "edit_request", h.Admin.ApproveAllEditRequests))
	mux.Handle("POST "+AdminBasePath+"/edit-requests/{id}/approve", action(AuditActionEditApprove, "edit_request", h.Admin.ApproveEditRequest))
	mux.Handle("POST "+AdminBasePath+"/edit-requests/{id}/disapprove", action(AuditActionEditDisapprove, "edit_request", h.Admin.DisapproveEditRequest))

	// Deadlines
	mux.Handle("GET "+AdminBasePath+"/deadlines", admin(h.Deadline.ListDeadlines))
	mux.Handle("PUT "+AdminBasePath+"/deadlines", action(AuditActionDeadlineSet, "deadline", h.Deadline.SetDeadline))
	mux.Handle("POST "+AdminBasePath+"/deadlines/poll", action(AuditActionDeadlinePoll, "deadline", h.Deadline.Poll))
	mux.Handle("POST "+AdminBasePath+"/deadlines/remind", action(AuditActionDeadlineRemind, "deadline", h.Deadline.SendReminder))

	// Completion, reports and records
	mux.Handle("POST "+AdminBasePath+"/completion/reset", action(AuditActionCompletionReset, "completion", h.Report.ResetCompletion))
	mux.Handle("GET "+AdminBasePath+"/reports/completion", admin(h.Report.CompletionReport))
	mux.Handle("GET "+AdminBasePath+"/email/quota", admin(h.Report.EmailQuota))
	mux.Handle("GET "+AdminBasePath+"/email/logs", admin(h.Report.EmailLogs))
	mux.Handle("POST "+AdminBasePath+"/records/import", action(AuditActionRecordsImport, "records", h.Report.ImportRecords))
	mux.Handle("GET "+AdminBasePath+"/audit-logs", admin(h.Audit.ListAuditLogs))
}
