package limiter

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements CounterStore on top of go-cache. Atomicity comes
// from the cache's own locking: Add is an atomic set-if-absent (expired
// entries count as absent) and IncrementInt64 is an atomic fetch-and-add.
// The only gap is an entry expiring between the two calls, which the retry
// loop closes.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore returns a store that janitors expired counters every minute.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (s *MemoryStore) Hit(key string, window time.Duration) (int64, time.Duration, error) {
	for attempt := 0; attempt < 3; attempt++ {
		if err := s.c.Add(key, int64(1), window); err == nil {
			// Fresh window, this request is the first hit.
			return 1, window, nil
		}
		n, err := s.c.IncrementInt64(key, 1)
		if err != nil {
			// Entry expired between Add and Increment; take another pass.
			continue
		}
		_, exp, ok := s.c.GetWithExpiration(key)
		if !ok {
			continue
		}
		return n, time.Until(exp), nil
	}
	return 0, 0, ErrContention
}

func (s *MemoryStore) Peek(key string) (int64, time.Duration) {
	v, exp, ok := s.c.GetWithExpiration(key)
	if !ok {
		return 0, 0
	}
	n, ok := v.(int64)
	if !ok {
		return 0, 0
	}
	return n, time.Until(exp)
}

func (s *MemoryStore) Reset(key string) {
	s.c.Delete(key)
}
