package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. It backs local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.expired(now) {
		record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
		s.records[id] = record
		return StateNew, record, nil
	}
	if record.Fingerprint != fingerprint {
		return 0, Record{}, ErrFingerprintMismatch
	}
	if record.Completed {
		return StateCompleted, record, nil
	}
	return StatePending, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	record.Completed = true
	record.ResponseStatus = resp.Status
	record.ResponseHeader = replayableHeader(resp.Header)
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, documentID(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
