// Package redis provides Redis-backed persistence implementations for
// deployments where security state must be shared across instances.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/security"
	"github.com/sentinelsec/sentinel/pkg/errors"
)

const (
	auditEventKeyPrefix = "audit:event:"
	auditIndexKey       = "audit:events"
	auditRiskKeyPrefix  = "audit:risk:"

	// queryFetchCap bounds how many index members a filtered query will
	// inspect before giving up on filling the limit.
	queryFetchCap = 5000
)

// AuditStore persists audit entries in Redis: one JSON payload per entry
// with a retention TTL, plus a timestamp-scored index for range queries and
// a secondary index for HIGH/CRITICAL entries.
type AuditStore struct {
	client    *redis.Client
	logger    *zap.Logger
	retention time.Duration
}

// NewAuditStore creates a Redis-backed audit store. A non-positive retention
// defaults to 90 days.
func NewAuditStore(client *redis.Client, logger *zap.Logger, retention time.Duration) *AuditStore {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &AuditStore{client: client, logger: logger, retention: retention}
}

// Insert writes the entry payload and index members in one pipeline, then
// trims index members older than the retention horizon.
func (s *AuditStore) Insert(ctx context.Context, entry security.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.NewStoreError("marshal audit entry", err)
	}

	score := float64(entry.Timestamp.UnixNano())
	member := redis.Z{Score: score, Member: entry.ID}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, auditEventKeyPrefix+entry.ID, payload, s.retention)
	pipe.ZAdd(ctx, auditIndexKey, member)
	if entry.Risk == security.RiskHigh || entry.Risk == security.RiskCritical {
		riskKey := auditRiskKeyPrefix + string(entry.Risk)
		pipe.ZAdd(ctx, riskKey, member)
		pipe.Expire(ctx, riskKey, s.retention)
	}

	horizon := time.Now().Add(-s.retention).UnixNano()
	pipe.ZRemRangeByScore(ctx, auditIndexKey, "0", strconv.FormatInt(horizon, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStoreError("insert audit entry", err)
	}
	return nil
}

// Query walks the timestamp index newest-first, loads candidate payloads,
// and applies the remaining filters client-side until the limit is filled.
func (s *AuditStore) Query(ctx context.Context, filters security.AuditFilters) ([]security.AuditEntry, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	min, max := "-inf", "+inf"
	if !filters.Start.IsZero() {
		min = strconv.FormatInt(filters.Start.UnixNano(), 10)
	}
	if !filters.End.IsZero() {
		max = strconv.FormatInt(filters.End.UnixNano(), 10)
	}

	fetch := int64(limit)
	if filters.EventType != "" || filters.UserID != "" || filters.Risk != "" {
		// Filters thin out the candidate set, so over-fetch.
		fetch = queryFetchCap
	}

	ids, err := s.client.ZRevRangeByScore(ctx, auditIndexKey, &redis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: fetch,
	}).Result()
	if err != nil {
		return nil, errors.NewStoreError("query audit index", err)
	}
	if len(ids) == 0 {
		return []security.AuditEntry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = auditEventKeyPrefix + id
	}

	payloads, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.NewStoreError("load audit entries", err)
	}

	out := make([]security.AuditEntry, 0, limit)
	for _, payload := range payloads {
		if len(out) >= limit {
			break
		}

		raw, ok := payload.(string)
		if !ok {
			// Payload expired ahead of its index member; skip it.
			continue
		}

		var entry security.AuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.logger.Warn("Skipping undecodable audit payload", zap.Error(err))
			continue
		}

		if matchesFilters(entry, filters) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Ping verifies connectivity, used by lifecycle health checks.
func (s *AuditStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("audit store ping: %w", err)
	}
	return nil
}

func matchesFilters(entry security.AuditEntry, filters security.AuditFilters) bool {
	if filters.EventType != "" && entry.EventType != filters.EventType {
		return false
	}
	if filters.UserID != "" && entry.UserID != filters.UserID {
		return false
	}
	if filters.Risk != "" && entry.Risk != filters.Risk {
		return false
	}
	return true
}
