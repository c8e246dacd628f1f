package handlers

import (
	"net/http"

	"marks-access/internal/service"
)

// AdminHandler serves OTP distribution and the edit-request queue
type AdminHandler struct {
	otp    *service.OTPService
	access *service.EditAccessService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(otp *service.OTPService, access *service.EditAccessService) *AdminHandler {
	return &AdminHandler{otp: otp, access: access}
}

// SendOTPRequest names one faculty member
type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// DisapproveRequest carries the mandatory reason
type DisapproveRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// SendAllOTPs issues fresh codes to every faculty member with a deadline and mails them
// @Summary Distribute access codes
// @Description Replaces every existing code. Faculty without a deadline are skipped and reported to the administrator. Fails when the daily email quota cannot cover the remaining faculty.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.OTPDistribution
// @Failure 429 {object} outcome "Email quota exceeded"
// @Router /admin/otp/send-all [post]
func (h *AdminHandler) SendAllOTPs(w http.ResponseWriter, r *http.Request) {
	out, err := h.otp.SendAll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

// SendOTP issues and mails a code to one faculty member
// @Summary Send one access code
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SendOTPRequest true "Faculty email"
// @Success 200 {object} service.OTPSendResult
// @Failure 404 {object} outcome "No records for this faculty"
// @Router /admin/otp/send [post]
func (h *AdminHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.otp.SendIndividual(r.Context(), req.Email)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

// ListEditRequests lists requests, optionally filtered by status
// @Summary List edit requests
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Pending, Approved, Expired, Disapproved or Completed"
// @Success 200 {array} service.EditRequestView
// @Router /admin/edit-requests [get]
func (h *AdminHandler) ListEditRequests(w http.ResponseWriter, r *http.Request) {
	views, err := h.access.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "", views)
}

// ApproveEditRequest opens the unlock window of a Pending request
// @Summary Approve edit request
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Success 200 {object} service.DecisionResult
// @Failure 404 {object} outcome
// @Failure 409 {object} outcome "Request is not Pending"
// @Router /admin/edit-requests/{id}/approve [post]
func (h *AdminHandler) ApproveEditRequest(w http.ResponseWriter, r *http.Request) {
	result, err := h.access.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// DisapproveEditRequest declines a Pending request
// @Summary Disapprove edit request
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param request body DisapproveRequest true "Reason"
// @Success 200 {object} service.DecisionResult
// @Router /admin/edit-requests/{id}/disapprove [post]
func (h *AdminHandler) DisapproveEditRequest(w http.ResponseWriter, r *http.Request) {
	var req DisapproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.access.Disapprove(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// ApproveAllEditRequests approves every Pending request
// @Summary Approve all pending requests
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.BulkDecisionOutcome
// @Router /admin/edit-requests/approve-all [post]
func (h *AdminHandler) ApproveAllEditRequests(w http.ResponseWriter, r *http.Request) {
	out, err := h.access.ApproveAll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}
