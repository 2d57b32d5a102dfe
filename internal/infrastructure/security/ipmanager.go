package security

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/pkg/errors"
)

// blockEntry holds the state of a blocked address, including the expiry
// timer when the block was created with a duration.
type blockEntry struct {
	reason    string
	blockedAt time.Time
	expiry    *time.Timer
}

// IPManager maintains block and allow sets of network addresses and emits an
// audit event on every mutation. Whitelisting is advisory: it overrides a
// block at the call site, the sets are not mutually exclusive internally.
type IPManager struct {
	audit  *AuditLogger
	logger *zap.Logger

	mu          sync.RWMutex
	blocked     map[string]*blockEntry
	whitelisted map[string]struct{}
}

// NewIPManager creates a new IP manager.
func NewIPManager(audit *AuditLogger, logger *zap.Logger) *IPManager {
	return &IPManager{
		audit:       audit,
		logger:      logger,
		blocked:     make(map[string]*blockEntry),
		whitelisted: make(map[string]struct{}),
	}
}

// BlockIP adds the address to the block set. A positive expiry schedules an
// automatic unblock after it elapses; re-blocking resets any pending expiry.
// Blocking an already-blocked address refreshes reason and expiry without
// error.
func (m *IPManager) BlockIP(ctx context.Context, ip, reason string, expiry time.Duration) error {
	if net.ParseIP(ip) == nil {
		return errors.NewInvalidIPAddressError(ip)
	}

	m.mu.Lock()
	if existing, ok := m.blocked[ip]; ok && existing.expiry != nil {
		existing.expiry.Stop()
	}

	entry := &blockEntry{reason: reason, blockedAt: time.Now()}
	if expiry > 0 {
		entry.expiry = time.AfterFunc(expiry, func() {
			m.expireBlock(ip, entry)
		})
	}
	m.blocked[ip] = entry
	m.mu.Unlock()

	details := map[string]interface{}{
		"ip":     ip,
		"reason": reason,
	}
	if expiry > 0 {
		details["duration"] = expiry.String()
	}
	if m.audit != nil {
		m.audit.LogSecurityEvent(ctx, EventIPBlocked, RiskHigh, details, "", ip)
	}
	return nil
}

// expireBlock removes an auto-expiring block when its timer fires. The
// identity check keeps a stale timer from tearing down a block that replaced
// the one it was armed for.
func (m *IPManager) expireBlock(ip string, armed *blockEntry) {
	m.mu.Lock()
	current, ok := m.blocked[ip]
	if !ok || current != armed {
		m.mu.Unlock()
		return
	}
	delete(m.blocked, ip)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("IP block expired", zap.String("ip", ip))
	}
	if m.audit != nil {
		m.audit.LogSecurityEvent(context.Background(), EventIPUnblocked, RiskMedium, map[string]interface{}{
			"ip":     ip,
			"reason": "block_expired",
		}, "", ip)
	}
}

// UnblockIP removes the address from the block set, cancelling any pending
// expiry. Unblocking an address that is not blocked is a no-op.
func (m *IPManager) UnblockIP(ctx context.Context, ip, reason string) error {
	if net.ParseIP(ip) == nil {
		return errors.NewInvalidIPAddressError(ip)
	}

	m.mu.Lock()
	entry, ok := m.blocked[ip]
	if ok {
		if entry.expiry != nil {
			entry.expiry.Stop()
		}
		delete(m.blocked, ip)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if m.audit != nil {
		m.audit.LogSecurityEvent(ctx, EventIPUnblocked, RiskMedium, map[string]interface{}{
			"ip":     ip,
			"reason": reason,
		}, "", ip)
	}
	return nil
}

// WhitelistIP adds the address to the allow set.
func (m *IPManager) WhitelistIP(ctx context.Context, ip string) error {
	if net.ParseIP(ip) == nil {
		return errors.NewInvalidIPAddressError(ip)
	}

	m.mu.Lock()
	m.whitelisted[ip] = struct{}{}
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.LogSecurityEvent(ctx, EventAccessGranted, RiskLow, map[string]interface{}{
			"ip":     ip,
			"action": "WHITELISTED",
		}, "", ip)
	}
	return nil
}

// IsBlocked reports block-set membership.
func (m *IPManager) IsBlocked(ip string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocked[ip]
	return ok
}

// IsWhitelisted reports allow-set membership.
func (m *IPManager) IsWhitelisted(ip string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.whitelisted[ip]
	return ok
}

// BlockedIPs returns a sorted snapshot of the block set. Callers cannot
// mutate internal state through the result.
func (m *IPManager) BlockedIPs() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.blocked))
	for ip := range m.blocked {
		out = append(out, ip)
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out
}

// WhitelistedIPs returns a sorted snapshot of the allow set.
func (m *IPManager) WhitelistedIPs() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.whitelisted))
	for ip := range m.whitelisted {
		out = append(out, ip)
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out
}
