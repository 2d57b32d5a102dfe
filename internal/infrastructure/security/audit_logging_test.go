package security

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
)

// captureStore is an AuditStore double shared by the package tests. It can
// be told to fail either operation to exercise the degraded paths.
type captureStore struct {
	mu         sync.Mutex
	entries    []AuditEntry
	failInsert bool
	failQuery  bool
}

func (s *captureStore) Insert(ctx context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return fmt.Errorf("store unavailable")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureStore) Query(ctx context.Context, filters AuditFilters) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failQuery {
		return nil, fmt.Errorf("store unavailable")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	out := make([]AuditEntry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.entries[i]
		if filters.EventType != "" && entry.EventType != filters.EventType {
			continue
		}
		if filters.UserID != "" && entry.UserID != filters.UserID {
			continue
		}
		if filters.Risk != "" && entry.Risk != filters.Risk {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *captureStore) byType(eventType EventType) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEntry
	for _, entry := range s.entries {
		if entry.EventType == eventType {
			out = append(out, entry)
		}
	}
	return out
}

func (s *captureStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// AuditLoggerTestSuite provides a test suite for AuditLogger
type AuditLoggerTestSuite struct {
	suite.Suite
	store  *captureStore
	logger *AuditLogger
}

func (suite *AuditLoggerTestSuite) SetupTest() {
	suite.store = &captureStore{}
	suite.logger = NewAuditLogger(zap.NewNop(), suite.store, config.AuditConfig{DefaultLimit: 100})
}

func (suite *AuditLoggerTestSuite) TestLogSecurityEvent() {
	suite.Run("ValidEvent_ShouldPersistEntry", func() {
		entry := suite.logger.LogSecurityEvent(context.Background(), EventLoginFailure, RiskMedium, map[string]interface{}{
			"attempt": 3,
		}, "user-1", "198.51.100.7")

		require.Equal(suite.T(), 1, suite.store.count())
		assert.NotEmpty(suite.T(), entry.ID)
		assert.Equal(suite.T(), EventLoginFailure, entry.EventType)
		assert.Equal(suite.T(), RiskMedium, entry.Risk)
		assert.Equal(suite.T(), "user-1", entry.UserID)
		assert.Equal(suite.T(), "198.51.100.7", entry.IP)
		assert.False(suite.T(), entry.Timestamp.IsZero())
	})

	suite.Run("UserAgentAndSession_ShouldBeLiftedFromDetails", func() {
		entry := suite.logger.LogSecurityEvent(context.Background(), EventLoginSuccess, RiskLow, map[string]interface{}{
			"user_agent": "curl/8.0",
			"session_id": "sess-42",
		}, "user-1", "")

		assert.Equal(suite.T(), "curl/8.0", entry.UserAgent)
		assert.Equal(suite.T(), "sess-42", entry.SessionID)
	})

	suite.Run("InvalidRisk_ShouldDefaultToLow", func() {
		entry := suite.logger.LogSecurityEvent(context.Background(), EventSecurityScan, RiskLevel("BOGUS"), nil, "", "")
		assert.Equal(suite.T(), RiskLow, entry.Risk)
	})

	suite.Run("DetailsMap_ShouldBeCopied", func() {
		details := map[string]interface{}{"key": "before"}
		entry := suite.logger.LogSecurityEvent(context.Background(), EventSecurityScan, RiskLow, details, "", "")

		details["key"] = "after"
		assert.Equal(suite.T(), "before", entry.Details["key"])
	})
}

func (suite *AuditLoggerTestSuite) TestConvenienceWrappers() {
	suite.Run("AuthFailureEvent_ShouldDefaultToMediumRisk", func() {
		entry := suite.logger.LogAuthEvent(context.Background(), EventLoginFailure, "user-1", "10.0.0.1", nil)
		assert.Equal(suite.T(), RiskMedium, entry.Risk)
	})

	suite.Run("AuthSuccessEvent_ShouldDefaultToLowRisk", func() {
		entry := suite.logger.LogAuthEvent(context.Background(), EventLoginSuccess, "user-1", "10.0.0.1", nil)
		assert.Equal(suite.T(), RiskLow, entry.Risk)
	})

	suite.Run("DataEvent_ShouldMergeResourceCoordinates", func() {
		entry := suite.logger.LogDataEvent(context.Background(), EventDataDeleted, "user-1", "task", "task-9", nil)
		assert.Equal(suite.T(), RiskLow, entry.Risk)
		assert.Equal(suite.T(), "task", entry.Details["resource_type"])
		assert.Equal(suite.T(), "task-9", entry.Details["resource_id"])
	})

	suite.Run("SystemErrorEvent_ShouldDefaultToHighRisk", func() {
		entry := suite.logger.LogSystemEvent(context.Background(), EventSystemError, nil)
		assert.Equal(suite.T(), RiskHigh, entry.Risk)
	})

	suite.Run("SystemInfoEvent_ShouldDefaultToLowRisk", func() {
		entry := suite.logger.LogSystemEvent(context.Background(), EventConfigChange, nil)
		assert.Equal(suite.T(), RiskLow, entry.Risk)
	})
}

func (suite *AuditLoggerTestSuite) TestDegradedStore() {
	suite.Run("InsertFailure_ShouldNotPropagate", func() {
		suite.store.failInsert = true

		assert.NotPanics(suite.T(), func() {
			suite.logger.LogSecurityEvent(context.Background(), EventLoginFailure, RiskMedium, nil, "", "")
		})
		assert.Equal(suite.T(), 0, suite.store.count())
	})

	suite.Run("QueryFailure_ShouldReturnEmptySlice", func() {
		suite.store.failQuery = true

		entries := suite.logger.AuditLogs(context.Background(), AuditFilters{})
		assert.NotNil(suite.T(), entries)
		assert.Empty(suite.T(), entries)
	})

	suite.Run("NilStore_ShouldStillLogWithoutPanic", func() {
		nilStoreLogger := NewAuditLogger(zap.NewNop(), nil, config.AuditConfig{})

		assert.NotPanics(suite.T(), func() {
			nilStoreLogger.LogSecurityEvent(context.Background(), EventLoginFailure, RiskMedium, nil, "", "")
		})
		assert.Empty(suite.T(), nilStoreLogger.AuditLogs(context.Background(), AuditFilters{}))
	})
}

func (suite *AuditLoggerTestSuite) TestAuditLogs() {
	suite.Run("Query_ShouldReturnNewestFirstWithDefaultLimit", func() {
		for i := 0; i < 5; i++ {
			suite.logger.LogAuthEvent(context.Background(), EventLoginFailure, fmt.Sprintf("user-%d", i), "", nil)
		}

		entries := suite.logger.AuditLogs(context.Background(), AuditFilters{})
		require.Len(suite.T(), entries, 5)
		assert.Equal(suite.T(), "user-4", entries[0].UserID)
		assert.Equal(suite.T(), "user-0", entries[4].UserID)
	})

	suite.Run("FilterByUser_ShouldNarrowResults", func() {
		suite.logger.LogAuthEvent(context.Background(), EventLoginFailure, "alice", "", nil)
		suite.logger.LogAuthEvent(context.Background(), EventLoginFailure, "bob", "", nil)

		entries := suite.logger.AuditLogs(context.Background(), AuditFilters{UserID: "alice"})
		require.Len(suite.T(), entries, 1)
		assert.Equal(suite.T(), "alice", entries[0].UserID)
	})
}

func TestAuditLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(AuditLoggerTestSuite))
}
