// Package memory provides process-local persistence implementations,
// primarily for single-node deployments and tests.
package memory

import (
	"context"
	"sync"

	"github.com/sentinelsec/sentinel/internal/infrastructure/security"
)

// defaultCapacity bounds the in-memory audit trail; the oldest entries are
// dropped once it is exceeded.
const defaultCapacity = 10000

// AuditStore is an in-memory security.AuditStore. Entries are held
// oldest-first and served newest-first.
type AuditStore struct {
	mu       sync.RWMutex
	entries  []security.AuditEntry
	capacity int
}

// NewAuditStore creates an in-memory audit store. A non-positive capacity
// uses the default.
func NewAuditStore(capacity int) *AuditStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &AuditStore{capacity: capacity}
}

// Insert appends the entry, evicting the oldest once capacity is exceeded.
func (s *AuditStore) Insert(ctx context.Context, entry security.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	return nil
}

// Query returns matching entries newest-first, up to filters.Limit.
func (s *AuditStore) Query(ctx context.Context, filters security.AuditFilters) ([]security.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]security.AuditEntry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if matches(s.entries[i], filters) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matches(entry security.AuditEntry, filters security.AuditFilters) bool {
	if filters.EventType != "" && entry.EventType != filters.EventType {
		return false
	}
	if filters.UserID != "" && entry.UserID != filters.UserID {
		return false
	}
	if filters.Risk != "" && entry.Risk != filters.Risk {
		return false
	}
	if !filters.Start.IsZero() && entry.Timestamp.Before(filters.Start) {
		return false
	}
	if !filters.End.IsZero() && entry.Timestamp.After(filters.End) {
		return false
	}
	return true
}
