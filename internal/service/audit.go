package service

import (
	"context"

	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/security"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditService writes the append-only audit trail. Writes are best effort:
// a failed audit insert is logged and never fails the operation it describes.
type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Record stores a single audit entry with secret-looking details masked.
func (s *AuditService) Record(ctx context.Context, userID *uuid.UUID, action, resource string, details map[string]any, meta RequestMeta) {
	if s == nil || s.store == nil {
		return
	}
	entry := models.AuditLog{
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   security.MaskSensitive(details),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.InsertAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
