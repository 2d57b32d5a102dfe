package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
)

// SecurityDashboardTestSuite provides a test suite for SecurityDashboard
type SecurityDashboardTestSuite struct {
	suite.Suite
	auditStore *captureStore
	audit      *AuditLogger
	protection *BruteForceProtection
	ips        *IPManager
	dashboard  *SecurityDashboard
}

func (suite *SecurityDashboardTestSuite) SetupTest() {
	suite.auditStore = &captureStore{}
	suite.audit = NewAuditLogger(zap.NewNop(), suite.auditStore, config.AuditConfig{DefaultLimit: 100})
	suite.protection = NewBruteForceProtection(config.BruteForceConfig{
		MaxAttempts:      5,
		LockoutDuration:  15 * time.Minute,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		ResetWindow:      time.Hour,
		ProgressiveDelay: true,
	}, nil, suite.audit, zap.NewNop())
	suite.ips = NewIPManager(suite.audit, zap.NewNop())
	suite.dashboard = NewSecurityDashboard(config.AuditConfig{OverviewLimit: 1000}, suite.audit, suite.protection, suite.ips)
}

func (suite *SecurityDashboardTestSuite) TestSecurityOverview() {
	suite.Run("EmptyState_ShouldReturnZeroedOverview", func() {
		overview := suite.dashboard.SecurityOverview(context.Background())

		assert.Equal(suite.T(), 0, overview.TotalEvents)
		assert.Equal(suite.T(), 0, overview.CriticalEvents)
		assert.Equal(suite.T(), 0, overview.BlockedIPs)
		assert.Equal(suite.T(), 0, overview.LockedAccounts)
		assert.NotNil(suite.T(), overview.RecentEvents)
		assert.Empty(suite.T(), overview.RecentEvents)
		assert.Equal(suite.T(), 0, overview.RiskDistribution[RiskCritical])
	})

	suite.Run("MixedActivity_ShouldTallyRiskDistribution", func() {
		ctx := context.Background()
		suite.audit.LogSecurityEvent(ctx, EventLoginFailure, RiskMedium, nil, "user-1", "")
		suite.audit.LogSecurityEvent(ctx, EventSuspiciousActivity, RiskCritical, nil, "", "203.0.113.4")
		suite.audit.LogSecurityEvent(ctx, EventLoginSuccess, RiskLow, nil, "user-2", "")

		overview := suite.dashboard.SecurityOverview(ctx)

		assert.Equal(suite.T(), 3, overview.TotalEvents)
		assert.Equal(suite.T(), 1, overview.CriticalEvents)
		assert.Equal(suite.T(), 1, overview.RiskDistribution[RiskLow])
		assert.Equal(suite.T(), 1, overview.RiskDistribution[RiskMedium])
		assert.Equal(suite.T(), 0, overview.RiskDistribution[RiskHigh])
		assert.Equal(suite.T(), 1, overview.RiskDistribution[RiskCritical])
	})

	suite.Run("LiveState_ShouldReflectBlocksAndLocks", func() {
		ctx := context.Background()
		require.NoError(suite.T(), suite.ips.BlockIP(ctx, "203.0.113.8", "scanner", 0))
		for i := 0; i < 5; i++ {
			_, err := suite.protection.RecordFailedAttempt(ctx, "victim")
			require.NoError(suite.T(), err)
		}

		overview := suite.dashboard.SecurityOverview(ctx)

		assert.Equal(suite.T(), 1, overview.BlockedIPs)
		assert.Equal(suite.T(), 1, overview.LockedAccounts)
	})

	suite.Run("ManyEvents_ShouldCapRecentAtTenNewestFirst", func() {
		ctx := context.Background()
		for i := 0; i < 25; i++ {
			suite.audit.LogSecurityEvent(ctx, EventSecurityScan, RiskLow, map[string]interface{}{"seq": i}, "", "")
		}

		overview := suite.dashboard.SecurityOverview(ctx)

		assert.GreaterOrEqual(suite.T(), overview.TotalEvents, 25)
		require.Len(suite.T(), overview.RecentEvents, 10)
		assert.Equal(suite.T(), 24, overview.RecentEvents[0].Details["seq"])
	})
}

func (suite *SecurityDashboardTestSuite) TestBruteForceStats() {
	suite.Run("Delegation_ShouldSurfaceProtectionAggregates", func() {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := suite.protection.RecordFailedAttempt(ctx, "offender")
			require.NoError(suite.T(), err)
		}

		stats := suite.dashboard.BruteForceStats()
		assert.Equal(suite.T(), 3, stats.TotalAttempts)
		require.Len(suite.T(), stats.TopOffenders, 1)
		assert.Equal(suite.T(), "offender", stats.TopOffenders[0].Identifier)
	})

	suite.Run("NilProtection_ShouldReturnEmptyStats", func() {
		dashboard := NewSecurityDashboard(config.AuditConfig{}, suite.audit, nil, nil)

		stats := dashboard.BruteForceStats()
		assert.Equal(suite.T(), 0, stats.TotalAttempts)
		assert.NotNil(suite.T(), stats.TopOffenders)
	})
}

func TestSecurityDashboardTestSuite(t *testing.T) {
	suite.Run(t, new(SecurityDashboardTestSuite))
}
