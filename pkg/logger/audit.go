package logger

import (
	"context"
	"log/slog"

	"github.com/jmercer-dev/authgate/internal/models"
)

// AuditLogger emits classified security events to the structured log.
// It is the audit trail for authentication activity; the correlator is a
// separate consumer of the same events.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent logs one classified event, with any suspicious-activity
// findings the correlator attached.
func (al *AuditLogger) LogSecurityEvent(event *models.SecurityEvent, findings []string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.String("timestamp", event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", SanitizedUsername(event.Username)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.LimitType != "" && event.LimitType != models.LimitTypeNone {
		attrs = append(attrs, slog.String("limit_type", string(event.LimitType)))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	if len(findings) > 0 {
		attrs = append(attrs, slog.Any("findings", findings))
	}

	level := slog.LevelInfo
	switch {
	case len(findings) > 0 || event.Severity == models.SeverityHigh:
		level = slog.LevelError
	case event.Severity == models.SeverityMedium:
		level = slog.LevelWarn
	}

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAccountAction logs administrative account actions (e.g. manual unlock)
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
