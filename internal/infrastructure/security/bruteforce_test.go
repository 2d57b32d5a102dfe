package security

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
)

// BruteForceProtectionTestSuite provides a test suite for BruteForceProtection
type BruteForceProtectionTestSuite struct {
	suite.Suite
	cfg        config.BruteForceConfig
	store      AttemptStore
	auditStore *captureStore
	protection *BruteForceProtection
}

func (suite *BruteForceProtectionTestSuite) SetupTest() {
	suite.cfg = config.BruteForceConfig{
		MaxAttempts:      5,
		LockoutDuration:  15 * time.Minute,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		ResetWindow:      time.Hour,
		ProgressiveDelay: true,
		CleanupInterval:  5 * time.Minute,
	}
	suite.store = NewMemoryAttemptStore()
	suite.auditStore = &captureStore{}
	audit := NewAuditLogger(zap.NewNop(), suite.auditStore, config.AuditConfig{DefaultLimit: 100})
	suite.protection = NewBruteForceProtection(suite.cfg, suite.store, audit, zap.NewNop())
}

func (suite *BruteForceProtectionTestSuite) recordFailures(identifier string, n int) AttemptResult {
	var result AttemptResult
	for i := 0; i < n; i++ {
		var err error
		result, err = suite.protection.RecordFailedAttempt(context.Background(), identifier)
		require.NoError(suite.T(), err)
	}
	return result
}

func (suite *BruteForceProtectionTestSuite) TestRecordFailedAttempt() {
	suite.Run("BelowThreshold_ShouldReportRemainingAttempts", func() {
		result := suite.recordFailures("user-a", 3)

		assert.False(suite.T(), result.Locked)
		assert.Equal(suite.T(), 2, result.RemainingAttempts)
		assert.False(suite.T(), suite.protection.IsLocked("user-a"))
	})

	suite.Run("AtThreshold_ShouldLockWithZeroRemaining", func() {
		result := suite.recordFailures("user-b", 5)

		assert.True(suite.T(), result.Locked)
		assert.Equal(suite.T(), 0, result.RemainingAttempts)
		assert.Equal(suite.T(), suite.cfg.LockoutDuration, result.LockoutDuration)
		assert.True(suite.T(), suite.protection.IsLocked("user-b"))
	})

	suite.Run("EmptyIdentifier_ShouldReturnValidationError", func() {
		_, err := suite.protection.RecordFailedAttempt(context.Background(), "   ")
		assert.Error(suite.T(), err)
	})

	suite.Run("LockTransition_ShouldEmitSingleAccountLockedEvent", func() {
		suite.recordFailures("198.51.100.7", 6)

		var forIdentifier []AuditEntry
		for _, entry := range suite.auditStore.byType(EventAccountLocked) {
			if entry.Details["identifier"] == "198.51.100.7" {
				forIdentifier = append(forIdentifier, entry)
			}
		}
		require.Len(suite.T(), forIdentifier, 1)
		assert.Equal(suite.T(), RiskHigh, forIdentifier[0].Risk)
	})
}

func (suite *BruteForceProtectionTestSuite) TestProgressiveDelay() {
	suite.Run("Delay_ShouldDoublePerAttemptUpToCap", func() {
		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second, // capped
			30 * time.Second,
		}
		for i, want := range expected {
			result, err := suite.protection.RecordFailedAttempt(context.Background(), "delay-user")
			require.NoError(suite.T(), err)
			assert.Equal(suite.T(), want, result.Delay, "attempt %d", i+1)
		}
	})

	suite.Run("ProgressiveDisabled_ShouldAlwaysUseBaseDelay", func() {
		cfg := suite.cfg
		cfg.ProgressiveDelay = false
		flat := NewBruteForceProtection(cfg, nil, nil, zap.NewNop())

		for i := 0; i < 4; i++ {
			result, err := flat.RecordFailedAttempt(context.Background(), "flat-user")
			require.NoError(suite.T(), err)
			assert.Equal(suite.T(), cfg.BaseDelay, result.Delay)
		}
	})
}

func (suite *BruteForceProtectionTestSuite) TestLockoutExpiry() {
	suite.Run("FailureDuringLockout_ShouldNotExtendLockedUntil", func() {
		suite.recordFailures("user-c", 5)

		record, ok := suite.store.Get("user-c")
		require.True(suite.T(), ok)
		lockedUntil := record.LockedUntil

		suite.recordFailures("user-c", 1)

		record, ok = suite.store.Get("user-c")
		require.True(suite.T(), ok)
		assert.Equal(suite.T(), 6, record.Attempts)
		assert.Equal(suite.T(), lockedUntil, record.LockedUntil)
	})

	suite.Run("ExpiredLockout_ShouldRelockOnNextFailure", func() {
		cfg := suite.cfg
		cfg.MaxAttempts = 2
		cfg.LockoutDuration = 30 * time.Millisecond
		protection := NewBruteForceProtection(cfg, nil, nil, zap.NewNop())

		_, err := protection.RecordFailedAttempt(context.Background(), "user-d")
		require.NoError(suite.T(), err)
		result, err := protection.RecordFailedAttempt(context.Background(), "user-d")
		require.NoError(suite.T(), err)
		require.True(suite.T(), result.Locked)

		time.Sleep(60 * time.Millisecond)
		assert.False(suite.T(), protection.IsLocked("user-d"))

		result, err = protection.RecordFailedAttempt(context.Background(), "user-d")
		require.NoError(suite.T(), err)
		assert.True(suite.T(), result.Locked)
		assert.True(suite.T(), protection.IsLocked("user-d"))
	})
}

func (suite *BruteForceProtectionTestSuite) TestConcurrentFailures() {
	suite.Run("SameIdentifier_ShouldCountEveryAttemptAndLockOnce", func() {
		const attempts = 50

		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				_, err := suite.protection.RecordFailedAttempt(context.Background(), "contended")
				assert.NoError(suite.T(), err)
			}()
		}
		wg.Wait()

		// No update may be lost and the lock transition fires exactly once.
		assert.True(suite.T(), suite.protection.IsLocked("contended"))
		assert.Equal(suite.T(), attempts, suite.protection.AttemptCount("contended"))

		locked := suite.auditStore.byType(EventAccountLocked)
		require.Len(suite.T(), locked, 1)
		assert.Equal(suite.T(), "contended", locked[0].Details["identifier"])
	})
}

func (suite *BruteForceProtectionTestSuite) TestRecordSuccessfulAttempt() {
	suite.Run("Success_ShouldClearCounterAndLock", func() {
		suite.recordFailures("user-e", 5)
		require.True(suite.T(), suite.protection.IsLocked("user-e"))

		require.NoError(suite.T(), suite.protection.RecordSuccessfulAttempt("user-e"))

		assert.False(suite.T(), suite.protection.IsLocked("user-e"))
		assert.Equal(suite.T(), 0, suite.protection.AttemptCount("user-e"))

		result := suite.recordFailures("user-e", 1)
		assert.Equal(suite.T(), suite.cfg.BaseDelay, result.Delay)
		assert.Equal(suite.T(), 4, result.RemainingAttempts)
	})

	suite.Run("UnknownIdentifier_ShouldBeNoOp", func() {
		assert.NoError(suite.T(), suite.protection.RecordSuccessfulAttempt("never-seen"))
	})
}

func (suite *BruteForceProtectionTestSuite) TestUnlock() {
	suite.Run("LockedIdentifier_ShouldBeReleasedAndAudited", func() {
		suite.recordFailures("user-f", 5)
		require.True(suite.T(), suite.protection.IsLocked("user-f"))

		require.NoError(suite.T(), suite.protection.Unlock(context.Background(), "user-f"))

		assert.False(suite.T(), suite.protection.IsLocked("user-f"))
		assert.Equal(suite.T(), 0, suite.protection.AttemptCount("user-f"))

		unlocked := suite.auditStore.byType(EventAccountUnlocked)
		require.Len(suite.T(), unlocked, 1)
		assert.Equal(suite.T(), RiskMedium, unlocked[0].Risk)
	})

	suite.Run("UnknownIdentifier_ShouldNotEmitEvent", func() {
		before := len(suite.auditStore.byType(EventAccountUnlocked))
		require.NoError(suite.T(), suite.protection.Unlock(context.Background(), "never-seen"))
		assert.Len(suite.T(), suite.auditStore.byType(EventAccountUnlocked), before)
	})
}

func (suite *BruteForceProtectionTestSuite) TestCleanup() {
	suite.Run("StaleRecords_ShouldBeSwept", func() {
		cfg := suite.cfg
		cfg.ResetWindow = 20 * time.Millisecond
		cfg.LockoutDuration = 10 * time.Millisecond
		protection := NewBruteForceProtection(cfg, nil, nil, zap.NewNop())

		_, err := protection.RecordFailedAttempt(context.Background(), "stale-user")
		require.NoError(suite.T(), err)

		time.Sleep(40 * time.Millisecond)

		assert.Equal(suite.T(), 1, protection.Cleanup())
		assert.Equal(suite.T(), 0, protection.AttemptCount("stale-user"))
	})

	suite.Run("FreshRecords_ShouldSurviveSweep", func() {
		suite.recordFailures("fresh-user", 2)

		assert.Equal(suite.T(), 0, suite.protection.Cleanup())
		assert.Equal(suite.T(), 2, suite.protection.AttemptCount("fresh-user"))
	})

	suite.Run("StaleRecord_ShouldResetCounterOnNextFailure", func() {
		cfg := suite.cfg
		cfg.ResetWindow = 20 * time.Millisecond
		protection := NewBruteForceProtection(cfg, nil, nil, zap.NewNop())

		_, err := protection.RecordFailedAttempt(context.Background(), "window-user")
		require.NoError(suite.T(), err)
		_, err = protection.RecordFailedAttempt(context.Background(), "window-user")
		require.NoError(suite.T(), err)

		time.Sleep(40 * time.Millisecond)

		result, err := protection.RecordFailedAttempt(context.Background(), "window-user")
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), cfg.MaxAttempts-1, result.RemainingAttempts)
		assert.Equal(suite.T(), cfg.BaseDelay, result.Delay)
	})
}

func (suite *BruteForceProtectionTestSuite) TestStats() {
	fail := func(p *BruteForceProtection, identifier string, n int) {
		for i := 0; i < n; i++ {
			_, err := p.RecordFailedAttempt(context.Background(), identifier)
			require.NoError(suite.T(), err)
		}
	}

	suite.Run("Aggregation_ShouldCountAttemptsAndLocks", func() {
		protection := NewBruteForceProtection(suite.cfg, nil, nil, zap.NewNop())
		fail(protection, "heavy", 5)
		fail(protection, "light", 2)

		stats := protection.Stats()
		assert.Equal(suite.T(), 7, stats.TotalAttempts)
		assert.Equal(suite.T(), 1, stats.LockedAccounts)
		require.Len(suite.T(), stats.TopOffenders, 2)
		assert.Equal(suite.T(), "heavy", stats.TopOffenders[0].Identifier)
		assert.Equal(suite.T(), 5, stats.TopOffenders[0].Attempts)
	})

	suite.Run("TopOffenders_ShouldBeCappedAtTen", func() {
		protection := NewBruteForceProtection(suite.cfg, nil, nil, zap.NewNop())
		for i := 0; i < 15; i++ {
			fail(protection, fmt.Sprintf("offender-%02d", i), i+1)
		}

		stats := protection.Stats()
		require.Len(suite.T(), stats.TopOffenders, 10)
		assert.Equal(suite.T(), "offender-14", stats.TopOffenders[0].Identifier)
		assert.Equal(suite.T(), 15, stats.TopOffenders[0].Attempts)
	})

	suite.Run("TiedAttempts_ShouldPreserveInsertionOrder", func() {
		protection := NewBruteForceProtection(suite.cfg, nil, nil, zap.NewNop())
		fail(protection, "first", 3)
		fail(protection, "second", 3)

		stats := protection.Stats()
		require.Len(suite.T(), stats.TopOffenders, 2)
		assert.Equal(suite.T(), "first", stats.TopOffenders[0].Identifier)
		assert.Equal(suite.T(), "second", stats.TopOffenders[1].Identifier)
	})

	suite.Run("EmptyState_ShouldReturnEmptySlice", func() {
		protection := NewBruteForceProtection(suite.cfg, nil, nil, zap.NewNop())

		stats := protection.Stats()
		assert.Equal(suite.T(), 0, stats.TotalAttempts)
		assert.NotNil(suite.T(), stats.TopOffenders)
		assert.Empty(suite.T(), stats.TopOffenders)
	})
}

func (suite *BruteForceProtectionTestSuite) TestStartStop() {
	suite.Run("PeriodicSweep_ShouldEvictStaleRecords", func() {
		cfg := suite.cfg
		cfg.ResetWindow = 10 * time.Millisecond
		cfg.CleanupInterval = 20 * time.Millisecond
		protection := NewBruteForceProtection(cfg, nil, nil, zap.NewNop())

		_, err := protection.RecordFailedAttempt(context.Background(), "sweep-user")
		require.NoError(suite.T(), err)

		protection.Start()
		defer protection.Stop()

		assert.Eventually(suite.T(), func() bool {
			return protection.AttemptCount("sweep-user") == 0
		}, time.Second, 10*time.Millisecond)
	})

	suite.Run("Stop_ShouldBeIdempotent", func() {
		protection := NewBruteForceProtection(suite.cfg, nil, nil, zap.NewNop())
		protection.Start()
		protection.Stop()
		assert.NotPanics(suite.T(), func() { protection.Stop() })
	})
}

func TestBruteForceProtectionTestSuite(t *testing.T) {
	suite.Run(t, new(BruteForceProtectionTestSuite))
}
