package handlers

import (
	"net/http"
	"time"

	"marks-access/internal/service"
)

// DeadlineHandler serves admin deadline management
type DeadlineHandler struct {
	deadlines *service.DeadlineService
}

// NewDeadlineHandler creates a new deadline handler
func NewDeadlineHandler(deadlines *service.DeadlineService) *DeadlineHandler {
	return &DeadlineHandler{deadlines: deadlines}
}

// SetDeadlineRequest sets a faculty's due date (YYYY-MM-DD)
type SetDeadlineRequest struct {
	FacultyEmail string `json:"faculty_email" validate:"required,email"`
	DueDate      string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Notes        string `json:"notes"`
}

// RemindRequest names the faculty to remind
type RemindRequest struct {
	FacultyEmail string `json:"faculty_email" validate:"required,email"`
}

// ListDeadlines returns every faculty deadline
// @Summary List deadlines
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.DeadlineView
// @Router /admin/deadlines [get]
func (h *DeadlineHandler) ListDeadlines(w http.ResponseWriter, r *http.Request) {
	views, err := h.deadlines.ListDeadlines(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "", views)
}

// SetDeadline creates or resets a faculty's deadline
// @Summary Set deadline
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SetDeadlineRequest true "Deadline"
// @Success 200 {object} service.DeadlineView
// @Router /admin/deadlines [put]
func (h *DeadlineHandler) SetDeadline(w http.ResponseWriter, r *http.Request) {
	var req SetDeadlineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	due, err := time.Parse(time.DateOnly, req.DueDate)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidDate, "due_date must be YYYY-MM-DD")
		return
	}

	view, err := h.deadlines.SetDeadline(r.Context(), req.FacultyEmail, due, req.Notes)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "Deadline set", view)
}

// Poll runs the deadline sweep immediately
// @Summary Run deadline poll
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.PollSummary
// @Router /admin/deadlines/poll [post]
func (h *DeadlineHandler) Poll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deadlines.Poll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "Poll completed", summary)
}

// SendReminder mails an overdue reminder now
// @Summary Send deadline reminder
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RemindRequest true "Faculty"
// @Success 200 {object} service.ReminderResult
// @Router /admin/deadlines/remind [post]
func (h *DeadlineHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	var req RemindRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.deadlines.SendReminder(r.Context(), req.FacultyEmail, service.ReminderOptions{})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, result.Message, result)
}
