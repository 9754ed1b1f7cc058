// Copyright (c) 2025 Justin Cranford
//
//

package ceremony

import (
	"context"
	"sync"
	"time"

	"mpoauthn/internal/apperr"
)

// MemoryStore is an in-memory keyed map implementation of Store, used in
// tests and single-process deployments. Production deployments should use
// RedisStore instead so ceremony state survives a process restart and is
// shared across replicas.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, kind Kind, payload []byte, ttl time.Duration) (string, error) {
	requestID, err := NewRequestID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[requestID]; exists {
		return "", apperr.ErrCeremonyConflict
	}

	now := s.now()
	s.records[requestID] = &Record{
		RequestID: requestID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	return requestID, nil
}

func (s *MemoryStore) Take(_ context.Context, requestID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[requestID]
	if !exists {
		return nil, nil
	}

	delete(s.records, requestID)

	if s.now().After(record.ExpiresAt) {
		return nil, nil
	}

	return record, nil
}
