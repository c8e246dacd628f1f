package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"marks-access/internal/auth"
	"marks-access/internal/config"
	"marks-access/internal/models"
	"marks-access/pkg/validator"
)

// OTPVerifier checks a faculty access code
type OTPVerifier interface {
	Verify(ctx context.Context, email, code string) bool
}

// AuditLogger records security-relevant actions
type AuditLogger interface {
	Log(ctx context.Context, entry *models.AuditLog)
}

// AuthHandler handles portal login for faculty and the admin
type AuthHandler struct {
	otp         OTPVerifier
	authService *auth.Service
	admin       config.AdminConfig
	audit       AuditLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(otp OTPVerifier, authService *auth.Service, admin config.AdminConfig, audit AuditLogger) *AuthHandler {
	return &AuthHandler{
		otp:         otp,
		authService: authService,
		admin:       admin,
		audit:       audit,
	}
}

// OTPLoginRequest represents a faculty login with an emailed code
type OTPLoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// AdminLoginRequest represents an admin password login
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries a portal session token
type TokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

// VerifyOTP exchanges a faculty email and access code for a session token
// @Summary Faculty login
// @Description Verify the emailed access code and return a faculty session token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body OTPLoginRequest true "Email and code"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} outcome "Invalid request"
// @Failure 401 {object} outcome "Wrong code"
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := validator.SanitizeEmail(req.Email)
	if !h.otp.Verify(r.Context(), email, req.OTP) {
		slog.Warn("Faculty login rejected", "email", email)
		respondWithError(w, http.StatusUnauthorized, CodeInvalidOTP, ErrMsgInvalidCredentials)
		return
	}

	h.issueToken(w, email, auth.RoleFaculty)
}

// AdminLogin checks the admin password and returns an admin session token
// @Summary Admin login
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AdminLoginRequest true "Admin credentials"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} outcome "Invalid credentials"
// @Router /auth/admin/login [post]
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := validator.SanitizeEmail(req.Email)
	// compare the hash even for a wrong email so both rejections cost the same
	passwordErr := h.authService.VerifyPassword(h.admin.PasswordHash, req.Password)
	if email != h.admin.Email || passwordErr != nil {
		h.audit.Log(r.Context(), &models.AuditLog{
			ActorEmail: email,
			Action:     AuditActionAdminLoginFailure,
			Resource:   "auth",
			IPAddress:  r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
		respondWithError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password")
		return
	}

	h.audit.Log(r.Context(), &models.AuditLog{
		ActorEmail: email,
		Action:     AuditActionAdminLogin,
		Resource:   "auth",
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	h.issueToken(w, email, auth.RoleAdmin)
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, email, role string) {
	token, expiresAt, err := h.authService.GenerateToken(email, role)
	if err != nil {
		slog.Error("Failed to generate token", "email", email, "role", role, "error", err)
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to generate token")
		return
	}

	slog.Info("Portal login", "email", email, "role", role)
	respondWithJSON(w, http.StatusOK, TokenResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		Email:     email,
		Role:      role,
	})
}
