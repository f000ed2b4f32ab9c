package clock

import (
	"sync"
	"time"
)

// Store holds one vector clock per tracked key. All operations are
// thread-safe and return copies so callers can never mutate shared state.
type Store struct {
	mu     sync.RWMutex
	clocks map[string]VectorClock
	stamps map[string]time.Time
}

// NewStore creates an empty per-key clock store.
func NewStore() *Store {
	return &Store{
		clocks: make(map[string]VectorClock),
		stamps: make(map[string]time.Time),
	}
}

// Init ensures a clock exists for the key without incrementing anything.
func (s *Store) Init(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clocks[key]; !exists {
		s.clocks[key] = New()
		s.stamps[key] = time.Now()
	}
}

// Merge increments the source's counter in the key's clock by 1 and stamps
// the clock. The clock is created on first use. Returns a copy of the
// resulting clock.
func (s *Store) Merge(key, sourceID string) VectorClock {
	s.mu.Lock()
	defer s.mu.Unlock()

	vc, exists := s.clocks[key]
	if !exists {
		vc = New()
		s.clocks[key] = vc
	}
	vc.Increment(sourceID)
	s.stamps[key] = time.Now()

	return vc.Copy()
}

// Apply merges a remote clock into the key's clock (component-wise max)
// without incrementing any counter. Returns a copy of the result.
func (s *Store) Apply(key string, remote VectorClock) VectorClock {
	s.mu.Lock()
	defer s.mu.Unlock()

	vc, exists := s.clocks[key]
	if !exists {
		vc = New()
		s.clocks[key] = vc
	}
	vc.Merge(remote)
	s.stamps[key] = time.Now()

	return vc.Copy()
}

// Get returns a copy of the key's clock, or nil if the key is untracked.
func (s *Store) Get(key string) VectorClock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vc, exists := s.clocks[key]
	if !exists {
		return nil
	}
	return vc.Copy()
}

// UpdatedAt returns the time the key's clock last changed.
func (s *Store) UpdatedAt(key string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.stamps[key]
	return t, exists
}

// Compare compares the key's clock against another clock. An untracked key
// compares as an empty clock.
func (s *Store) Compare(key string, other VectorClock) Ordering {
	vc := s.Get(key)
	if vc == nil {
		vc = New()
	}
	return vc.Compare(other)
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clocks)
}
