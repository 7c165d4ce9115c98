package download

import (
	"context"
	"sync"
	"time"

	"sigedoc/pkg/platform/sentinel"
	"sigedoc/pkg/requestcontext"
)

type memoryEntry struct {
	grant     Grant
	expiresAt time.Time
}

// MemoryStore is the single-node fallback token store. Expired entries are
// dropped lazily on Take.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(ctx context.Context, token string, grant Grant, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryEntry{
		grant:     grant,
		expiresAt: requestcontext.Now(ctx).Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, token string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return Grant{}, sentinel.ErrNotFound
	}
	delete(s.entries, token)
	if requestcontext.Now(ctx).After(entry.expiresAt) {
		return Grant{}, sentinel.ErrNotFound
	}
	return entry.grant, nil
}
