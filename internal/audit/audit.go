// Package audit appends WhatsApp message attempts to the audit trail.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/LeventeLantos/order-confirm/internal/logger"
	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/repo"
)

// Logger writes one row per attempt. A failed write is reported on the
// operational log and otherwise ignored, so callers never fail or retry
// because of it.
type Logger struct {
	logs repo.WhatsAppLogRepository
	log  *zap.Logger
}

func New(logs repo.WhatsAppLogRepository, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{logs: logs, log: log}
}

// Append reports whether the row was stored.
func (l *Logger) Append(ctx context.Context, entry *model.WhatsAppLog) bool {
	if err := l.logs.Insert(ctx, entry); err != nil {
		fields := []zap.Field{
			zap.Error(err),
			zap.String("direction", string(entry.Direction)),
			zap.String("phone", entry.PhoneE164),
			zap.String("template", entry.TemplateName),
			zap.String("wa_message_id", entry.WAMessageID),
		}
		if entry.OrderID != nil {
			fields = append(fields, zap.String("order_id", entry.OrderID.String()))
		}
		logger.For(ctx, l.log).Error("failed to write whatsapp audit log", fields...)
		return false
	}
	return true
}
