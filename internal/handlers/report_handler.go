package handlers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"marks-access/internal/email"
	"marks-access/internal/models"
	"marks-access/internal/service"
)

// maxImportBytes bounds an uploaded main sheet
const maxImportBytes = 10 << 20

// EmailReporter exposes the notifier's quota and activity log
type EmailReporter interface {
	Quota(ctx context.Context) (*email.QuotaReport, error)
	RecentLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error)
}

// ReportHandler serves completion reports, email activity and record import
type ReportHandler struct {
	completion *service.CompletionService
	importer   *service.ImportService
	email      EmailReporter
}

// NewReportHandler creates a new report handler
func NewReportHandler(completion *service.CompletionService, importer *service.ImportService, email EmailReporter) *ReportHandler {
	return &ReportHandler{
		completion: completion,
		importer:   importer,
		email:      email,
	}
}

// CompletionReport returns the paper-wise completion breakdown
// @Summary Completion report
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CompletionReport
// @Router /admin/reports/completion [get]
func (h *ReportHandler) CompletionReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.completion.Report(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "", report)
}

// ResetCompletion clears the completion notification flags
// @Summary Reset completion notification
// @Description Lets the next poll notify the admin again for an unchanged completion state
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} outcome
// @Router /admin/completion/reset [post]
func (h *ReportHandler) ResetCompletion(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.completion.Reset(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, fmt.Sprintf("Cleared %d completion flag(s)", cleared), map[string]int{"cleared": cleared})
}

// EmailQuota reports the remaining daily email quota
// @Summary Email quota
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} email.QuotaReport
// @Router /admin/email/quota [get]
func (h *ReportHandler) EmailQuota(w http.ResponseWriter, r *http.Request) {
	report, err := h.email.Quota(r.Context())
	if err != nil {
		respondWithServiceError(w, r, fmt.Errorf("%w: %v", service.ErrStoreUnavailable, err))
		return
	}
	respondOK(w, "", report)
}

// EmailLogs lists recent notification attempts
// @Summary Email activity log
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset"
// @Success 200 {array} models.EmailLog
// @Router /admin/email/logs [get]
func (h *ReportHandler) EmailLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r, 50)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	limit = min(max(limit, 1), 500)
	offset = max(offset, 0)

	logs, err := h.email.RecentLogs(r.Context(), limit, offset)
	if err != nil {
		respondWithServiceError(w, r, fmt.Errorf("%w: %v", service.ErrStoreUnavailable, err))
		return
	}
	respondOK(w, "", logs)
}

// ImportRecords upserts records from a main-sheet CSV export
// @Summary Import records
// @Description Accepts text/csv as the body or a multipart upload in field "file"
// @Tags Admin
// @Accept text/csv
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.ImportResult
// @Failure 400 {object} outcome "Missing header"
// @Router /admin/records/import [post]
func (h *ReportHandler) ImportRecords(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "multipart field \"file\" is required")
			return
		}
		defer file.Close()
		src = file
	}

	result, err := h.importer.ImportCSV(r.Context(), src)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, fmt.Sprintf("Imported %d row(s), skipped %d", result.Imported, result.Skipped), result)
}
