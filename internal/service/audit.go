package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditMetaKey struct{}

// AuditMeta carries request details into audit entries written by services.
type AuditMeta struct {
	IPAddress string
	UserAgent string
}

// WithAuditMeta attaches request details to ctx.
func WithAuditMeta(ctx context.Context, meta AuditMeta) context.Context {
	return context.WithValue(ctx, auditMetaKey{}, meta)
}

// AuditMetaFromContext returns the request details attached by WithAuditMeta.
func AuditMetaFromContext(ctx context.Context) (AuditMeta, bool) {
	meta, ok := ctx.Value(auditMetaKey{}).(AuditMeta)
	return meta, ok
}

func auditMetaFrom(ctx context.Context) AuditMeta {
	if meta, ok := AuditMetaFromContext(ctx); ok {
		return meta
	}
	return AuditMeta{IPAddress: "system", UserAgent: "admin-api"}
}

// emitAudit persists log and only warns on failure.
func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	meta := auditMetaFrom(ctx)
	if log.IPAddress == "" {
		log.IPAddress = meta.IPAddress
	}
	if log.UserAgent == "" {
		log.UserAgent = meta.UserAgent
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
