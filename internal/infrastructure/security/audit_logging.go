package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
)

// AuditEntry is an immutable record of a security-relevant occurrence.
// Entries are never mutated after creation.
type AuditEntry struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	Risk      RiskLevel              `json:"risk_level"`
	Details   map[string]interface{} `json:"details,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	IP        string                 `json:"ip,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// AuditFilters narrows an audit trail query. Zero values match everything.
type AuditFilters struct {
	EventType EventType `json:"event_type,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Risk      RiskLevel `json:"risk_level,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// AuditStore is the persistence collaborator for audit entries. A store may
// be backed by process memory or a shared cache; the logger treats it as
// best-effort and never lets a store failure surface to its callers.
type AuditStore interface {
	Insert(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filters AuditFilters) ([]AuditEntry, error)
}

// AuditLogger formats and durably records structured security events.
// Persistence failures degrade to process logging so a security decision is
// never blocked or failed by an unavailable store.
type AuditLogger struct {
	logger       *zap.Logger
	store        AuditStore
	storeTimeout time.Duration
	defaultLimit int
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *zap.Logger, store AuditStore, cfg config.AuditConfig) *AuditLogger {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 100
	}
	return &AuditLogger{
		logger:       logger,
		store:        store,
		storeTimeout: timeout,
		defaultLimit: limit,
	}
}

// LogSecurityEvent builds an audit entry and persists it. UserAgent and
// SessionID are lifted from details when present. Returns the recorded entry.
func (a *AuditLogger) LogSecurityEvent(ctx context.Context, eventType EventType, risk RiskLevel, details map[string]interface{}, userID, ip string) AuditEntry {
	if !risk.Valid() {
		risk = RiskLow
	}

	entry := AuditEntry{
		ID:        uuid.New().String(),
		EventType: eventType,
		Risk:      risk,
		Details:   copyDetails(details),
		UserID:    userID,
		IP:        ip,
		Timestamp: time.Now(),
	}

	if ua, ok := entry.Details["user_agent"].(string); ok {
		entry.UserAgent = ua
	}
	if sid, ok := entry.Details["session_id"].(string); ok {
		entry.SessionID = sid
	}

	a.logEntry(entry)
	a.persist(ctx, entry)

	return entry
}

// LogAuthEvent logs an authentication event. Failure-class events default to
// MEDIUM risk, everything else to LOW.
func (a *AuditLogger) LogAuthEvent(ctx context.Context, eventType EventType, userID, ip string, details map[string]interface{}) AuditEntry {
	risk := RiskLow
	if failureEvents[eventType] {
		risk = RiskMedium
	}
	return a.LogSecurityEvent(ctx, eventType, risk, details, userID, ip)
}

// LogDataEvent logs a data access or mutation event at LOW risk with the
// resource coordinates merged into details.
func (a *AuditLogger) LogDataEvent(ctx context.Context, eventType EventType, userID, resourceType, resourceID string, details map[string]interface{}) AuditEntry {
	merged := copyDetails(details)
	if merged == nil {
		merged = make(map[string]interface{}, 2)
	}
	merged["resource_type"] = resourceType
	merged["resource_id"] = resourceID
	return a.LogSecurityEvent(ctx, eventType, RiskLow, merged, userID, "")
}

// LogSystemEvent logs a system-level event. Error-class events default to
// HIGH risk, everything else to LOW.
func (a *AuditLogger) LogSystemEvent(ctx context.Context, eventType EventType, details map[string]interface{}) AuditEntry {
	risk := RiskLow
	if errorEvents[eventType] {
		risk = RiskHigh
	}
	return a.LogSecurityEvent(ctx, eventType, risk, details, "", "")
}

// AuditLogs queries the store, newest first. An unavailable store degrades
// to an empty result rather than an error.
func (a *AuditLogger) AuditLogs(ctx context.Context, filters AuditFilters) []AuditEntry {
	if a.store == nil {
		return []AuditEntry{}
	}

	if filters.Limit <= 0 {
		filters.Limit = a.defaultLimit
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()

	entries, err := a.store.Query(queryCtx, filters)
	if err != nil {
		a.logger.Error("Audit store query failed, returning empty result",
			zap.Error(err))
		return []AuditEntry{}
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries
}

// logEntry writes the entry to the process log at a severity matching its
// risk level.
func (a *AuditLogger) logEntry(entry AuditEntry) {
	fields := []zap.Field{
		zap.String("audit_id", entry.ID),
		zap.String("event_type", string(entry.EventType)),
		zap.String("risk", string(entry.Risk)),
		zap.Time("timestamp", entry.Timestamp),
	}
	if entry.UserID != "" {
		fields = append(fields, zap.String("user_id", entry.UserID))
	}
	if entry.IP != "" {
		fields = append(fields, zap.String("ip", entry.IP))
	}
	if len(entry.Details) > 0 {
		fields = append(fields, zap.Any("details", entry.Details))
	}

	switch entry.Risk {
	case RiskCritical:
		a.logger.Error("Critical audit event", fields...)
	case RiskHigh:
		a.logger.Warn("High risk audit event", fields...)
	case RiskMedium:
		a.logger.Info("Medium risk audit event", fields...)
	default:
		a.logger.Debug("Audit event", fields...)
	}
}

// persist writes the entry through the store. Failures are swallowed after
// local logging: losing a security decision because the audit store is down
// is worse than logging twice.
func (a *AuditLogger) persist(ctx context.Context, entry AuditEntry) {
	if a.store == nil {
		return
	}

	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.storeTimeout)
	defer cancel()

	if err := a.store.Insert(insertCtx, entry); err != nil {
		a.logger.Error("Failed to persist audit entry, event retained in process log only",
			zap.String("audit_id", entry.ID),
			zap.String("event_type", string(entry.EventType)),
			zap.Error(err))
	}
}

func copyDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
