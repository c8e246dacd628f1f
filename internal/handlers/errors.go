package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"marks-access/internal/service"
)

// statusFor classifies a service error into an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, service.CodeInvalidEmail
	case errors.Is(err, service.ErrInvalidRegd):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, service.ErrInvalidMarks):
		return http.StatusBadRequest, CodeInvalidMarks
	case errors.Is(err, service.ErrMarksRequired):
		return http.StatusBadRequest, CodeMarksRequired
	case errors.Is(err, service.ErrReasonRequired):
		return http.StatusBadRequest, CodeReasonRequired
	case errors.Is(err, service.ErrInvalidDate):
		return http.StatusBadRequest, CodeInvalidDate
	case errors.Is(err, service.ErrMissingColumn):
		return http.StatusBadRequest, CodeMissingColumn
	case errors.Is(err, service.ErrInvalidCSV):
		return http.StatusBadRequest, CodeInvalidCSV
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden, CodeNotOwned
	case errors.Is(err, service.ErrRecordLocked):
		return http.StatusLocked, CodeRecordLocked
	case errors.Is(err, service.ErrInvalidStatus):
		return http.StatusConflict, CodeInvalidStatus
	case errors.Is(err, service.ErrStatusChanged):
		return http.StatusConflict, CodeStatusChanged
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusTooManyRequests, CodeQuotaExceeded
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondWithServiceError answers with the classified status. Internal
// failures are logged and their detail withheld.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "code", code, "error", err)
		if status == http.StatusInternalServerError {
			message = ErrMsgInternal
		}
	}
	respondWithError(w, status, code, message)
}

// submitStatus maps an edit-request submission code to an HTTP status
func submitStatus(code string) int {
	switch code {
	case "":
		return http.StatusCreated
	case service.CodeAllDuplicate:
		return http.StatusConflict
	case service.CodeProcessingFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
