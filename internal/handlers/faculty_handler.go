package handlers

import (
	"net/http"

	"marks-access/internal/middleware"
	"marks-access/internal/service"
)

// FacultyHandler serves the faculty portal
type FacultyHandler struct {
	marks     *service.MarksService
	access    *service.EditAccessService
	deadlines *service.DeadlineService
}

// NewFacultyHandler creates a new faculty handler
func NewFacultyHandler(marks *service.MarksService, access *service.EditAccessService, deadlines *service.DeadlineService) *FacultyHandler {
	return &FacultyHandler{
		marks:     marks,
		access:    access,
		deadlines: deadlines,
	}
}

// SaveMarksRequest saves a single entry or, when Entries is set, a batch.
// Batch entries are checked one by one and fail individually.
type SaveMarksRequest struct {
	RegistrationNumber string              `json:"registration_number"`
	PaperCode          string              `json:"paper_code"`
	Marks              *float64            `json:"marks"`
	Entries            []service.MarkEntry `json:"entries"`
}

// VerifyRequest verifies one student or, when Students is set, a batch
type VerifyRequest struct {
	RegistrationNumber string               `json:"registration_number"`
	PaperCode          string               `json:"paper_code"`
	Students           []service.StudentRef `json:"students"`
}

// EditRequestSubmission asks for edit access to verified records
type EditRequestSubmission struct {
	RegistrationNumbers []string `json:"registration_numbers"`
}

// callerEmail returns the authenticated email or answers 401
func callerEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := middleware.GetUserEmail(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, CodeUnauthorized, ErrMsgUnauthorized)
	}
	return email, ok
}

// ListPapers returns the caller's students with lock annotations
// @Summary List assigned papers
// @Tags Faculty
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.PaperListing
// @Router /faculty/papers [get]
func (h *FacultyHandler) ListPapers(w http.ResponseWriter, r *http.Request) {
	email, ok := callerEmail(w, r)
	if !ok {
		return
	}

	listing, err := h.marks.ListPapers(r.Context(), email)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "", listing)
}

// SaveMarks saves marks for one student or a batch
// @Summary Save marks
// @Description Verified records can only be changed inside an approved edit window
// @Tags Faculty
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SaveMarksRequest true "Single entry or entries"
// @Success 200 {object} service.BatchOutcome
// @Failure 400 {object} outcome
// @Failure 423 {object} outcome "Record verified and locked"
// @Router /faculty/marks [post]
func (h *FacultyHandler) SaveMarks(w http.ResponseWriter, r *http.Request) {
	email, ok := callerEmail(w, r)
	if !ok {
		return
	}

	var req SaveMarksRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Entries) > 0 {
		respondWithJSON(w, http.StatusOK, h.marks.SaveBulk(r.Context(), email, req.Entries))
		return
	}
	if req.RegistrationNumber == "" || req.Marks == nil {
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, "registration_number and marks are required")
		return
	}

	rec, err := h.marks.Save(r.Context(), email, service.MarkEntry{
		StudentRef: service.StudentRef{RegistrationNumber: req.RegistrationNumber, PaperCode: req.PaperCode},
		Marks:      req.Marks,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "Marks saved", rec)
}

// Verify locks marks for one student or a batch
// @Summary Verify marks
// @Tags Faculty
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body VerifyRequest true "Single student or students"
// @Success 200 {object} service.BatchOutcome
// @Router /faculty/verify [post]
func (h *FacultyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	email, ok := callerEmail(w, r)
	if !ok {
		return
	}

	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Students) > 0 {
		respondWithJSON(w, http.StatusOK, h.marks.VerifyBulk(r.Context(), email, req.Students))
		return
	}
	if req.RegistrationNumber == "" {
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, "registration_number is required")
		return
	}

	result, err := h.marks.Verify(r.Context(), email, service.StudentRef{
		RegistrationNumber: req.RegistrationNumber,
		PaperCode:          req.PaperCode,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, result.Message, result)
}

// SubmitEditRequests files edit-access requests for verified students
// @Summary Request edit access
// @Tags Faculty
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EditRequestSubmission true "Registration numbers"
// @Success 201 {object} service.SubmitOutcome
// @Failure 400 {object} service.SubmitOutcome
// @Failure 409 {object} service.SubmitOutcome "Every student already has an active request"
// @Router /faculty/edit-requests [post]
func (h *FacultyHandler) SubmitEditRequests(w http.ResponseWriter, r *http.Request) {
	email, ok := callerEmail(w, r)
	if !ok {
		return
	}

	var req EditRequestSubmission
	if !decodeJSON(w, r, &req) {
		return
	}

	out := h.access.Submit(r.Context(), email, req.RegistrationNumbers)
	respondWithJSON(w, submitStatus(out.Code), out)
}

// GetDeadline returns the caller's deadline and progress
// @Summary Get own deadline
// @Tags Faculty
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.DeadlineView
// @Failure 404 {object} outcome
// @Router /faculty/deadline [get]
func (h *FacultyHandler) GetDeadline(w http.ResponseWriter, r *http.Request) {
	email, ok := callerEmail(w, r)
	if !ok {
		return
	}

	view, err := h.deadlines.GetDeadline(r.Context(), email)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondOK(w, "", view)
}

// ConfirmCompletion confirms the caller finished marking
// @Summary Confirm completion
// @Tags Faculty
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.ConfirmOutcome
// @Router /faculty/deadline/confirm [post]
func (h *FacultyHandler) ConfirmCompletion(w http.ResponseWriter, r *http.Request) {
	email, ok := callerEmail(w, r)
	if !ok {
		return
	}

	out, err := h.deadlines.ConfirmCompletion(r.Context(), email)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	message := "Completion confirmed"
	if out.AlreadyConfirmed {
		message = "Completion was already confirmed"
	}
	respondOK(w, message, out)
}
