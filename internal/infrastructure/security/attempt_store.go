package security

import (
	"sync"
	"time"
)

// AttemptRecord tracks failed-attempt state for a single identifier. A record
// is created lazily on the first failure and removed on success or when the
// reset window elapses with no activity.
type AttemptRecord struct {
	Attempts      int           `json:"attempts"`
	LastAttemptAt time.Time     `json:"last_attempt_at"`
	LockedUntil   time.Time     `json:"locked_until,omitempty"`
	CurrentDelay  time.Duration `json:"current_delay"`

	// Seq preserves insertion order for deterministic tie-breaking in
	// top-offender aggregation.
	Seq uint64 `json:"-"`
}

// Locked reports whether the record carries an unexpired lockout.
func (r AttemptRecord) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && r.LockedUntil.After(now)
}

// Stale reports whether the record has seen no activity for the given window
// and carries no active lock.
func (r AttemptRecord) Stale(now time.Time, window time.Duration) bool {
	return !r.Locked(now) && now.Sub(r.LastAttemptAt) > window
}

// AttemptStore abstracts attempt-record storage so a single-process map and a
// distributed cache are interchangeable without touching the protection
// logic. Implementations only need per-operation safety; the protection layer
// serializes read-modify-write sequences itself.
type AttemptStore interface {
	Get(identifier string) (AttemptRecord, bool)
	Set(identifier string, record AttemptRecord)
	Delete(identifier string)
	Snapshot() map[string]AttemptRecord
	Sweep(olderThan time.Time) int
}

// memoryAttemptStore is the process-local AttemptStore. Correct lockout
// behavior across multiple instances requires a shared store behind the same
// interface instead.
type memoryAttemptStore struct {
	mu      sync.RWMutex
	records map[string]AttemptRecord
}

// NewMemoryAttemptStore creates an in-memory attempt store.
func NewMemoryAttemptStore() AttemptStore {
	return &memoryAttemptStore{records: make(map[string]AttemptRecord)}
}

func (s *memoryAttemptStore) Get(identifier string) (AttemptRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[identifier]
	return record, ok
}

func (s *memoryAttemptStore) Set(identifier string, record AttemptRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identifier] = record
}

func (s *memoryAttemptStore) Delete(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
}

func (s *memoryAttemptStore) Snapshot() map[string]AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]AttemptRecord, len(s.records))
	for id, record := range s.records {
		out[id] = record
	}
	return out
}

func (s *memoryAttemptStore) Sweep(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if record.LastAttemptAt.Before(olderThan) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}
