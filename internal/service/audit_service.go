package service

import (
	"context"
	"log/slog"

	"marks-access/internal/models"
)

// AuditService handles audit logging
type AuditService struct {
	store AuditStore
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Log records an administrator action. Failures are logged and never fail the action.
func (s *AuditService) Log(ctx context.Context, entry *models.AuditLog) {
	if err := s.store.Create(ctx, entry); err != nil {
		slog.Warn("Failed to write audit log", "action", entry.Action, "actor", entry.ActorEmail, "error", err)
	}
}

// List returns audit entries newest first
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}
