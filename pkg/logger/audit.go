package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents one concluded login attempt
type AuditEvent struct {
	EventType string // "login", "step_up", "logout"
	Status    string // audit status written alongside the database record
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
	Decision  string
	Score     *float64
	Reason    string
}

// AuditLogger emits structured audit lines mirroring the login_logs table,
// so log aggregation can alert without a database query
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAttempt logs one concluded login or step-up attempt
func (al *AuditLogger) LogAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.String("status", event.Status),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Decision != "" {
		attrs = append(attrs, slog.String("risk_decision", event.Decision))
	}
	if event.Score != nil {
		attrs = append(attrs, slog.Float64("risk_score", *event.Score))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("risk_reason", event.Reason))
	}

	level := slog.LevelInfo
	if event.Status != "valid" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAccountAction logs non-attempt account events such as remember-me
// session resumption
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
