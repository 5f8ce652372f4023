package logging

import (
	"context"

	"ledgerql/internal/core"

	"go.uber.org/zap"
)

// AuditRecorder writes one log line per mutation attempt.
type AuditRecorder struct {
	logger *zap.Logger
}

var _ core.AuditRecorder = (*AuditRecorder)(nil)

// NewAuditRecorder logs audit entries through l.
func NewAuditRecorder(l *zap.Logger) *AuditRecorder {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditRecorder{logger: l}
}

// Record implements core.AuditRecorder. Failed mutations are logged at warn.
func (a *AuditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", string(entry.Status)),
		zap.Time("at", entry.At),
	}
	if entry.EntityID != "" {
		fields = append(fields, zap.String("entity_id", entry.EntityID))
	}
	if entry.Problem != "" {
		fields = append(fields, zap.String("problem", entry.Problem))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}
	if entry.Status == core.AuditStatusError {
		a.logger.Warn("mutation audit", fields...)
		return
	}
	a.logger.Info("mutation audit", fields...)
}
