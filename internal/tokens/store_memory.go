package tokens

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	hash      string
	updatedAt time.Time
}

// MemoryStore keeps hashes in process memory. Local development only: every
// restart logs everybody out.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) SaveRefreshHash(ctx context.Context, identity, hash string) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identity] = memoryEntry{hash: hash, updatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) LoadRefreshHash(ctx context.Context, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[identity]
	if !ok || entry.hash == "" {
		return "", ErrNotFound
	}
	return entry.hash, nil
}

func (s *MemoryStore) SwapRefreshHash(ctx context.Context, identity, expected, next string) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[identity]
	if !ok {
		return ErrNotFound
	}
	if entry.hash != expected {
		return ErrHashMismatch
	}
	s.entries[identity] = memoryEntry{hash: next, updatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) ClearRefreshHash(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}
