package security

import (
	"context"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
)

// SecurityOverview aggregates recent audit activity with live block and lock
// state for dashboard consumption.
type SecurityOverview struct {
	TotalEvents      int               `json:"total_events"`
	CriticalEvents   int               `json:"critical_events"`
	BlockedIPs       int               `json:"blocked_ips"`
	LockedAccounts   int               `json:"locked_accounts"`
	RecentEvents     []AuditEntry      `json:"recent_events"`
	RiskDistribution map[RiskLevel]int `json:"risk_distribution"`
}

// SecurityDashboard is the read-only reporting facade over the audit trail,
// brute-force state, and IP sets. It performs no mutation.
type SecurityDashboard struct {
	audit         *AuditLogger
	bruteForce    *BruteForceProtection
	ips           *IPManager
	overviewLimit int
}

// NewSecurityDashboard creates the reporting facade.
func NewSecurityDashboard(cfg config.AuditConfig, audit *AuditLogger, bruteForce *BruteForceProtection, ips *IPManager) *SecurityDashboard {
	limit := cfg.OverviewLimit
	if limit <= 0 {
		limit = 1000
	}
	return &SecurityDashboard{
		audit:         audit,
		bruteForce:    bruteForce,
		ips:           ips,
		overviewLimit: limit,
	}
}

// SecurityOverview tallies up to the configured number of recent audit
// entries by risk level and attaches the ten most recent for display.
func (d *SecurityDashboard) SecurityOverview(ctx context.Context) SecurityOverview {
	overview := SecurityOverview{
		RecentEvents: []AuditEntry{},
		RiskDistribution: map[RiskLevel]int{
			RiskLow:      0,
			RiskMedium:   0,
			RiskHigh:     0,
			RiskCritical: 0,
		},
	}

	entries := d.audit.AuditLogs(ctx, AuditFilters{Limit: d.overviewLimit})
	overview.TotalEvents = len(entries)
	for _, entry := range entries {
		overview.RiskDistribution[entry.Risk]++
		if entry.Risk == RiskCritical {
			overview.CriticalEvents++
		}
	}

	// Entries come back newest-first, so the display slice is a prefix.
	recent := entries
	if len(recent) > 10 {
		recent = recent[:10]
	}
	overview.RecentEvents = append(overview.RecentEvents, recent...)

	if d.ips != nil {
		overview.BlockedIPs = len(d.ips.BlockedIPs())
	}
	if d.bruteForce != nil {
		overview.LockedAccounts = d.bruteForce.Stats().LockedAccounts
	}

	return overview
}

// BruteForceStats exposes the in-memory brute-force aggregation.
func (d *SecurityDashboard) BruteForceStats() BruteForceStats {
	if d.bruteForce == nil {
		return BruteForceStats{TopOffenders: []OffenderStat{}}
	}
	return d.bruteForce.Stats()
}
