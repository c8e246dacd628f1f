package handlers

import (
	"net/http"

	"marks-access/internal/service"
)

// AuditHandler handles audit log requests
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ListAuditLogs lists admin actions, newest first
// @Summary List audit logs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Items per page" default(50)
// @Param offset query int false "Offset"
// @Success 200 {array} models.AuditLog
// @Failure 400 {object} outcome "Invalid parameters"
// @Router /admin/audit-logs [get]
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r, 50)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "", logs)
}
