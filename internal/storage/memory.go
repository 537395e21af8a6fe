package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
)

// MemoryStorage is an in-memory Store backed by a map.
// It uses a Clock for expiry and for NowMillis, enabling virtual-time
// testing of every algorithm.
// Thread-safe for concurrent use.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]memItem
	clock clock.Clock

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

type memItem struct {
	value     []byte
	expiresAt time.Time // zero value means no expiration
}

// NewMemoryStorage creates an in-memory store using the given clock.
// A nil clock means wall-clock time.
func NewMemoryStorage(c clock.Clock) *MemoryStorage {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &MemoryStorage{
		items: make(map[string]memItem),
		clock: c,
	}
}

// NewMemoryStorageWithCleanup is NewMemoryStorage plus a background loop
// that evicts expired items every interval until Close.
func NewMemoryStorageWithCleanup(c clock.Clock, interval time.Duration) (*MemoryStorage, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cleanup_interval must be positive, got %s", interval)
	}
	s := NewMemoryStorage(c)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.cleanupLoop(interval)
	return s, nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return Entry{}, false, nil
	}

	e := Entry{}
	if !item.expiresAt.IsZero() {
		remaining := item.expiresAt.Sub(s.clock.Now())
		if remaining <= 0 {
			return Entry{}, false, nil
		}
		e.TTL = remaining
		e.HasTTL = true
	}
	// Return a copy to prevent mutation.
	e.Value = make([]byte, len(item.value))
	copy(e.Value, item.value)
	return e, true, nil
}

func (s *MemoryStorage) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := memItem{
		value: make([]byte, len(value)),
	}
	copy(item.value, value)

	switch {
	case ttl == KeepTTL:
		if old, ok := s.items[key]; ok && (old.expiresAt.IsZero() || old.expiresAt.After(s.clock.Now())) {
			item.expiresAt = old.expiresAt
		}
	case ttl > 0:
		item.expiresAt = s.clock.Now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStorage) NowMillis(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return s.clock.Now().UnixMilli(), nil
}

// Delete removes a key. The engines never call it; it exists for tooling.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Cleanup removes all expired items.
func (s *MemoryStorage) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, item := range s.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(s.items, key)
		}
	}
}

// Len returns the number of items (including expired ones not yet cleaned up).
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStorage) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		close(s.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Close stops background cleanup, if running. It is idempotent.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		if s.stopCh == nil {
			return
		}
		close(s.stopCh)
		<-s.doneCh
	})
	return nil
}
