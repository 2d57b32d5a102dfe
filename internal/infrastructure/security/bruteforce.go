package security

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
	"github.com/sentinelsec/sentinel/pkg/errors"
)

// AttemptResult reports the outcome of a recorded failed attempt.
type AttemptResult struct {
	Locked            bool          `json:"locked"`
	RemainingAttempts int           `json:"remaining_attempts"`
	LockoutDuration   time.Duration `json:"lockout_duration,omitempty"`
	Delay             time.Duration `json:"delay"`
}

// OffenderStat is a single row in the top-offender aggregation.
type OffenderStat struct {
	Identifier string `json:"identifier"`
	Attempts   int    `json:"attempts"`
}

// BruteForceStats aggregates the in-memory protection state.
type BruteForceStats struct {
	TotalAttempts  int            `json:"total_attempts"`
	LockedAccounts int            `json:"locked_accounts"`
	TopOffenders   []OffenderStat `json:"top_offenders"`
}

// BruteForceProtection tracks per-identifier failure counters over a reset
// window, computes lockouts and progressive delays, and emits audit events on
// lock transitions. Identifiers are opaque; callers decide whether they key
// by IP, account id, or a composite.
type BruteForceProtection struct {
	cfg    config.BruteForceConfig
	store  AttemptStore
	audit  *AuditLogger
	logger *zap.Logger

	// mu serializes every read-modify-write sequence so two concurrent
	// failures for the same identifier cannot both miss the lockout
	// transition.
	mu  sync.Mutex
	seq uint64

	stopOnce sync.Once
	done     chan struct{}
}

// NewBruteForceProtection creates the protection service. A nil store falls
// back to the in-memory implementation.
func NewBruteForceProtection(cfg config.BruteForceConfig, store AttemptStore, audit *AuditLogger, logger *zap.Logger) *BruteForceProtection {
	if store == nil {
		store = NewMemoryAttemptStore()
	}
	return &BruteForceProtection{
		cfg:    cfg,
		store:  store,
		audit:  audit,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// IsLocked reports whether the identifier is inside an active lockout. Stale
// records are evicted as a side effect. The read never invents a lock state:
// a missing record is simply not locked.
func (b *BruteForceProtection) IsLocked(identifier string) bool {
	if strings.TrimSpace(identifier) == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.store.Get(identifier)
	if !ok {
		return false
	}

	now := time.Now()
	if record.Locked(now) {
		return true
	}
	if record.Stale(now, b.cfg.ResetWindow) {
		b.store.Delete(identifier)
	}
	return false
}

// RecordFailedAttempt increments the failure counter for the identifier and
// returns the resulting lock state and suggested delay. Attempts during an
// active lockout still increment the counter but never extend LockedUntil;
// the expiry is fixed at the moment the lockout triggered.
func (b *BruteForceProtection) RecordFailedAttempt(ctx context.Context, identifier string) (AttemptResult, error) {
	if strings.TrimSpace(identifier) == "" {
		return AttemptResult{}, errors.NewInvalidIdentifierError()
	}

	b.mu.Lock()

	now := time.Now()
	record, ok := b.store.Get(identifier)
	if !ok || record.Stale(now, b.cfg.ResetWindow) {
		b.seq++
		record = AttemptRecord{Seq: b.seq}
	}

	record.Attempts++
	record.LastAttemptAt = now
	record.CurrentDelay = b.delayFor(record.Attempts)

	result := AttemptResult{Delay: record.CurrentDelay}
	lockTriggered := false

	if record.Attempts >= b.cfg.MaxAttempts {
		if !record.Locked(now) {
			record.LockedUntil = now.Add(b.cfg.LockoutDuration)
			lockTriggered = true
		}
		result.Locked = true
		result.RemainingAttempts = 0
		result.LockoutDuration = b.cfg.LockoutDuration
	} else {
		result.RemainingAttempts = b.cfg.MaxAttempts - record.Attempts
	}

	b.store.Set(identifier, record)
	attempts := record.Attempts
	lockedUntil := record.LockedUntil
	b.mu.Unlock()

	// Audit outside the mutex: persistence must never hold up the
	// request path for other identifiers.
	if lockTriggered && b.audit != nil {
		b.audit.LogSecurityEvent(ctx, EventAccountLocked, RiskHigh, map[string]interface{}{
			"identifier":   identifier,
			"attempts":     attempts,
			"locked_until": lockedUntil,
		}, "", "")
	}

	return result, nil
}

// RecordSuccessfulAttempt clears all tracked state for the identifier,
// regardless of prior attempt count or lock state.
func (b *BruteForceProtection) RecordSuccessfulAttempt(identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return errors.NewInvalidIdentifierError()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.Delete(identifier)
	return nil
}

// AttemptCount returns the current failure count, 0 for unknown identifiers.
func (b *BruteForceProtection) AttemptCount(identifier string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.store.Get(identifier)
	if !ok {
		return 0
	}
	return record.Attempts
}

// Unlock clears the lockout and resets the counter on an existing record.
// Unknown identifiers are a no-op.
func (b *BruteForceProtection) Unlock(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return errors.NewInvalidIdentifierError()
	}

	b.mu.Lock()
	record, ok := b.store.Get(identifier)
	if !ok {
		b.mu.Unlock()
		return nil
	}

	record.Attempts = 0
	record.LockedUntil = time.Time{}
	record.CurrentDelay = 0
	record.LastAttemptAt = time.Now()
	b.store.Set(identifier, record)
	b.mu.Unlock()

	if b.audit != nil {
		b.audit.LogSecurityEvent(ctx, EventAccountUnlocked, RiskMedium, map[string]interface{}{
			"identifier": identifier,
		}, "", "")
	}
	return nil
}

// Cleanup evicts records whose last activity predates the reset window and
// returns the number removed. It runs on a timer to bound memory but can be
// invoked directly.
func (b *BruteForceProtection) Cleanup() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.store.Sweep(time.Now().Add(-b.cfg.ResetWindow))
	if removed > 0 && b.logger != nil {
		b.logger.Debug("Swept stale attempt records", zap.Int("removed", removed))
	}
	return removed
}

// Start launches the periodic cleanup sweep. It returns immediately; the
// sweep runs until Stop is called.
func (b *BruteForceProtection) Start() {
	interval := b.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Cleanup()
			case <-b.done:
				return
			}
		}
	}()
}

// Stop terminates the periodic cleanup sweep.
func (b *BruteForceProtection) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Stats aggregates attempt counts, active locks, and the ten identifiers with
// the highest attempt counts, ties broken by insertion order.
func (b *BruteForceProtection) Stats() BruteForceStats {
	b.mu.Lock()
	snapshot := b.store.Snapshot()
	b.mu.Unlock()

	now := time.Now()
	stats := BruteForceStats{TopOffenders: []OffenderStat{}}

	type offender struct {
		id  string
		rec AttemptRecord
	}
	offenders := make([]offender, 0, len(snapshot))

	for id, record := range snapshot {
		stats.TotalAttempts += record.Attempts
		if record.Locked(now) {
			stats.LockedAccounts++
		}
		offenders = append(offenders, offender{id: id, rec: record})
	}

	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].rec.Attempts != offenders[j].rec.Attempts {
			return offenders[i].rec.Attempts > offenders[j].rec.Attempts
		}
		return offenders[i].rec.Seq < offenders[j].rec.Seq
	})

	for i, o := range offenders {
		if i == 10 {
			break
		}
		stats.TopOffenders = append(stats.TopOffenders, OffenderStat{
			Identifier: o.id,
			Attempts:   o.rec.Attempts,
		})
	}

	return stats
}

// delayFor computes the suggested wait after the given attempt count:
// min(baseDelay * 2^(attempts-1), maxDelay) with progressive delay enabled,
// otherwise a flat baseDelay.
func (b *BruteForceProtection) delayFor(attempts int) time.Duration {
	if !b.cfg.ProgressiveDelay || attempts <= 1 {
		return b.cfg.BaseDelay
	}

	delay := b.cfg.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= b.cfg.MaxDelay {
			return b.cfg.MaxDelay
		}
	}
	return delay
}
