// Package monitoring aggregates security event counts over a fixed window
// and raises alerts when per-risk-level thresholds are exceeded.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
	"github.com/sentinelsec/sentinel/internal/infrastructure/security"
)

// SecurityMetrics is a point-in-time snapshot of the monitoring state.
// BlockedIPs and LockedAccounts are derived at call time, never cached.
type SecurityMetrics struct {
	EventCounts    map[string]int `json:"event_counts"`
	BlockedIPs     int            `json:"blocked_ips"`
	LockedAccounts int            `json:"locked_accounts"`
	LastReset      time.Time      `json:"last_reset"`
}

// SecurityMonitor tallies events by "RISK:EVENT_TYPE" within a fixed window
// and raises an alert on every call where the running count meets or exceeds
// the risk level's threshold. The alert is deliberately level-triggered, not
// edge-triggered: once the threshold is reached, each further event inside
// the window re-raises it. Tune the thresholds, not the triggering mode, to
// control alert volume.
type SecurityMonitor struct {
	logger     *zap.Logger
	audit      *security.AuditLogger
	bruteForce *security.BruteForceProtection
	ips        *security.IPManager

	windowSize time.Duration
	thresholds map[security.RiskLevel]int

	mu          sync.Mutex
	counts      map[string]int
	windowStart time.Time

	eventsTotal *prometheus.CounterVec
	alertsTotal *prometheus.CounterVec
}

// NewSecurityMonitor creates a security monitor. A nil registerer falls back
// to the default prometheus registry.
func NewSecurityMonitor(
	cfg config.MonitoringConfig,
	audit *security.AuditLogger,
	bruteForce *security.BruteForceProtection,
	ips *security.IPManager,
	logger *zap.Logger,
	reg prometheus.Registerer,
) *SecurityMonitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	windowSize := cfg.AlertWindow
	if windowSize <= 0 {
		windowSize = 5 * time.Minute
	}

	return &SecurityMonitor{
		logger:     logger,
		audit:      audit,
		bruteForce: bruteForce,
		ips:        ips,
		windowSize: windowSize,
		thresholds: map[security.RiskLevel]int{
			security.RiskCritical: defaultThreshold(cfg.CriticalThreshold, 1),
			security.RiskHigh:     defaultThreshold(cfg.HighThreshold, 5),
			security.RiskMedium:   defaultThreshold(cfg.MediumThreshold, 10),
			security.RiskLow:      defaultThreshold(cfg.LowThreshold, 50),
		},
		counts:      make(map[string]int),
		windowStart: time.Now(),

		eventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Total number of security events observed by the monitor",
		}, []string{"event_type", "risk"}),

		alertsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "security_alerts_triggered_total",
			Help: "Total number of alert threshold breaches",
		}, []string{"risk"}),
	}
}

// MonitorEvent records one event occurrence. The counter map is atomically
// cleared when the window has elapsed, then the count for the event's
// "RISK:EVENT_TYPE" key is incremented and compared against the risk level's
// threshold.
func (sm *SecurityMonitor) MonitorEvent(ctx context.Context, eventType security.EventType, risk security.RiskLevel, details map[string]interface{}) {
	if !risk.Valid() {
		risk = security.RiskLow
	}

	now := time.Now()

	sm.mu.Lock()
	if now.Sub(sm.windowStart) > sm.windowSize {
		sm.counts = make(map[string]int)
		sm.windowStart = now
	}
	key := string(risk) + ":" + string(eventType)
	sm.counts[key]++
	count := sm.counts[key]
	windowStart := sm.windowStart
	sm.mu.Unlock()

	sm.eventsTotal.WithLabelValues(string(eventType), string(risk)).Inc()

	threshold := sm.thresholds[risk]
	if count >= threshold {
		sm.raiseAlert(ctx, eventType, risk, count, threshold, windowStart, details)
	}
}

// SecurityMetrics returns a snapshot of the current window plus live blocked
// and locked counts from the collaborating components.
func (sm *SecurityMonitor) SecurityMetrics(ctx context.Context) SecurityMetrics {
	sm.mu.Lock()
	counts := make(map[string]int, len(sm.counts))
	for k, v := range sm.counts {
		counts[k] = v
	}
	lastReset := sm.windowStart
	sm.mu.Unlock()

	metrics := SecurityMetrics{
		EventCounts: counts,
		LastReset:   lastReset,
	}
	if sm.ips != nil {
		metrics.BlockedIPs = len(sm.ips.BlockedIPs())
	}
	if sm.bruteForce != nil {
		metrics.LockedAccounts = sm.bruteForce.Stats().LockedAccounts
	}
	return metrics
}

// raiseAlert pages through the process log at the highest severity and
// records a system-level audit event.
func (sm *SecurityMonitor) raiseAlert(ctx context.Context, eventType security.EventType, risk security.RiskLevel, count, threshold int, windowStart time.Time, details map[string]interface{}) {
	sm.logger.Error("Security alert triggered",
		zap.String("event_type", string(eventType)),
		zap.String("risk", string(risk)),
		zap.Int("count", count),
		zap.Int("threshold", threshold),
		zap.Time("window_start", windowStart),
	)

	sm.alertsTotal.WithLabelValues(string(risk)).Inc()

	if sm.audit != nil {
		alertDetails := map[string]interface{}{
			"alert_event_type": string(eventType),
			"alert_risk":       string(risk),
			"count":            count,
			"threshold":        threshold,
			"window_start":     windowStart,
		}
		for k, v := range details {
			alertDetails[k] = v
		}
		sm.audit.LogSystemEvent(ctx, security.EventSecurityAlert, alertDetails)
	}
}

func defaultThreshold(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
