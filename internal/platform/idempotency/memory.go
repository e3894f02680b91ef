package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process memory. It suits tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.entries[id]; ok {
		if claim, decided, err := decide(existing, fingerprint, now); decided || err != nil {
			return claim, err
		}
	}
	entry := freshEntry(key, fingerprint, now, ttl)
	s.entries[id] = entry
	return Claim{State: ClaimAcquired, Entry: entry}, nil
}

func (s *MemoryStore) Complete(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(entry.Key)
	if existing, ok := s.entries[id]; ok && existing.Fingerprint != entry.Fingerprint {
		return ErrKeyReused
	}
	entry.Completed = true
	entry.Body = append([]byte(nil), entry.Body...)
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, documentID(key))
	return nil
}
