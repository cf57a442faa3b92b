package memory

import (
	"context"
	"sync"
)

// InMemoryStore is an in-process DurableStore for local/dev use and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]Turn)}
}

func (s *InMemoryStore) Append(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.Confirmed = true
	for _, existing := range s.turns[turn.SessionID] {
		if existing.Sequence == turn.Sequence {
			return turn, nil
		}
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return turn, nil
}

func (s *InMemoryStore) MaxSequence(_ context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, t := range s.turns[sessionID] {
		if t.Sequence > max {
			max = t.Sequence
		}
	}
	return max, nil
}

func (s *InMemoryStore) QueryRecent(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[sessionID]
	if limit <= 0 || len(arr) == 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) QueryPage(_ context.Context, sessionID string, beforeSequence int64, pageSize int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pageSize <= 0 {
		return nil, nil
	}
	arr := s.turns[sessionID]
	out := make([]Turn, 0, pageSize)
	for i := len(arr) - 1; i >= 0 && len(out) < pageSize; i-- {
		if beforeSequence > 0 && arr[i].Sequence >= beforeSequence {
			continue
		}
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) DeleteLast(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.turns[sessionID]
	if len(arr) == 0 {
		return nil
	}
	s.turns[sessionID] = arr[:len(arr)-1]
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// InMemoryCache is an in-process HotCache, newest turn first like the
// Redis list it stands in for.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]Turn
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string][]Turn)}
}

func (c *InMemoryCache) Push(_ context.Context, turn Turn) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[turn.SessionID] = append([]Turn{turn}, c.entries[turn.SessionID]...)
	return int64(len(c.entries[turn.SessionID])), nil
}

func (c *InMemoryCache) ReadWindow(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	arr := c.entries[sessionID]
	if limit <= 0 || len(arr) == 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

func (c *InMemoryCache) EvictOldest(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	arr := c.entries[sessionID]
	if len(arr) == 0 {
		return nil
	}
	c.entries[sessionID] = arr[:len(arr)-1]
	return nil
}

func (c *InMemoryCache) DropNewest(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	arr := c.entries[sessionID]
	if len(arr) == 0 {
		return nil
	}
	c.entries[sessionID] = arr[1:]
	return nil
}

func (c *InMemoryCache) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}

func (c *InMemoryCache) Len(sessionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[sessionID])
}

func (c *InMemoryCache) Close() error { return nil }
