package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"marks-access/internal/models"
)

// AuditLogger is the subset of the audit service the middleware needs
type AuditLogger interface {
	Log(ctx context.Context, entry *models.AuditLog)
}

// AuditMiddleware records admin actions
type AuditMiddleware struct {
	audit AuditLogger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(audit AuditLogger) *AuditMiddleware {
	return &AuditMiddleware{audit: audit}
}

// Log records action on resource once the wrapped handler answered below 400
func (m *AuditMiddleware) Log(action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Request-ID")
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", correlationID)

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)
			if wrapped.statusCode >= http.StatusBadRequest {
				return
			}

			email, _ := GetUserEmail(r)
			details := "request_id=" + correlationID
			if id := r.PathValue("id"); id != "" {
				details += " id=" + id
			}
			m.audit.Log(r.Context(), &models.AuditLog{
				ActorEmail: email,
				Action:     action,
				Resource:   resource,
				Details:    details,
				IPAddress:  getIP(r),
				UserAgent:  r.UserAgent(),
			})
		})
	}
}
