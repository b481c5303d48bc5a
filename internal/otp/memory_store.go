package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded, process-local Store. Entries past their
// retention are pruned on every Save, so abandoned codes do not accumulate.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, entry Entry, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for email, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, email)
		}
	}
	s.entries[entry.Email] = memoryEntry{entry: entry, expiresAt: now.Add(retention)}
	return nil
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, email, code string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.entries, email)
		return Entry{}, ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(e.entry.Code), []byte(code)) != 1 {
		return Entry{}, ErrMismatch
	}
	delete(s.entries, email)
	return e.entry, nil
}

// Len returns the number of retained entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
