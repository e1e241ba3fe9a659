package idempotency

import (
	"context"
	"sync"
	"time"
)

// Response is the captured result of the first request carrying a key.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Store reserves keys and remembers completed responses.
//
// Reserve returns (nil, true) when the caller now owns the key, (resp, false)
// when a completed response exists, and (nil, false) while another request
// holding the key is still in flight.
type Store interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (*Response, bool, error)
	Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	resp      *Response
	expiresAt time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (*Response, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return e.resp, false, nil
	}
	s.entries[key] = memoryEntry{expiresAt: now.Add(ttl)}
	return nil, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{resp: &resp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
