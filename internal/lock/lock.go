package lock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotHeld is returned when releasing a key that carries no live lock.
var ErrNotHeld = errors.New("lock not held")

// AlreadyLockedError reports a failed acquisition, carrying the current
// holder and expiry so callers can back off and retry.
type AlreadyLockedError struct {
	Key    string
	Holder string
	Expiry time.Time
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("key %s locked by %s until %s", e.Key, e.Holder, e.Expiry.Format(time.RFC3339))
}

// NotHolderError reports a release attempt by an actor that does not hold
// the lock.
type NotHolderError struct {
	Key    string
	Actor  string
	Holder string
}

func (e *NotHolderError) Error() string {
	return fmt.Sprintf("actor %s does not hold lock on %s (holder: %s)", e.Actor, e.Key, e.Holder)
}

// Lease is a time-bounded exclusive claim on a key.
type Lease struct {
	Key      string
	Holder   string
	Expiry   time.Time
	Acquired time.Time
}

// Expired reports whether the lease's expiry has passed.
func (l *Lease) Expired() bool {
	return time.Now().After(l.Expiry)
}

// Manager grants and releases per-key exclusive leases. Expiry is lazy:
// a lease is only checked when a lock operation touches its key, so an
// expired lease lingers until the next access.
type Manager struct {
	mu         sync.RWMutex
	leases     map[string]*Lease
	defaultTTL time.Duration
}

// NewManager creates a lease manager with the given default TTL, applied
// when Acquire is called with a non-positive timeout.
func NewManager(defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &Manager{
		leases:     make(map[string]*Lease),
		defaultTTL: defaultTTL,
	}
}

// Acquire grants an exclusive lease on key to actorID for ttl.
// An unheld or expired key is granted immediately. The current holder may
// re-acquire to extend its lease. A different live holder fails with
// *AlreadyLockedError. Returns the granted expiry.
func (m *Manager) Acquire(key, actorID string, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, held := m.leases[key]
	if held && !existing.Expired() && existing.Holder != actorID {
		return time.Time{}, &AlreadyLockedError{
			Key:    key,
			Holder: existing.Holder,
			Expiry: existing.Expiry,
		}
	}

	expiry := now.Add(ttl)
	if held && existing.Holder == actorID && !existing.Expired() {
		// Renewal keeps the original acquisition time.
		existing.Expiry = expiry
		return expiry, nil
	}

	m.leases[key] = &Lease{
		Key:      key,
		Holder:   actorID,
		Expiry:   expiry,
		Acquired: now,
	}
	return expiry, nil
}

// Release clears the lease on key if actorID is the live holder.
// Returns *NotHolderError when a different live holder exists, and
// ErrNotHeld when no live lease remains.
func (m *Manager) Release(key, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, held := m.leases[key]
	if !held {
		return ErrNotHeld
	}
	if existing.Expired() {
		// Logically gone already; reclaim the slot.
		delete(m.leases, key)
		if existing.Holder == actorID {
			return nil
		}
		return ErrNotHeld
	}
	if existing.Holder != actorID {
		return &NotHolderError{Key: key, Actor: actorID, Holder: existing.Holder}
	}

	delete(m.leases, key)
	return nil
}

// Holder returns the live holder and expiry for key. ok is false when the
// key is unheld or the lease has expired.
func (m *Manager) Holder(key string) (holder string, expiry time.Time, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, held := m.leases[key]
	if !held || existing.Expired() {
		return "", time.Time{}, false
	}
	return existing.Holder, existing.Expiry, true
}

// Snapshot returns a copy of all live leases for enumeration. Expired
// leases encountered during the walk are skipped but not reclaimed.
func (m *Manager) Snapshot() []Lease {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Lease, 0, len(m.leases))
	for _, l := range m.leases {
		if l.Expired() {
			continue
		}
		out = append(out, *l)
	}
	return out
}

// Len returns the number of tracked leases, expired entries included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leases)
}
