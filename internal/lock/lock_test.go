package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AcquireRelease(t *testing.T) {
	m := NewManager(30 * time.Second)

	expiry, err := m.Acquire("k1", "actorA", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, expiry.After(time.Now()))

	holder, _, ok := m.Holder("k1")
	require.True(t, ok)
	assert.Equal(t, "actorA", holder)

	require.NoError(t, m.Release("k1", "actorA"))

	_, _, ok = m.Holder("k1")
	assert.False(t, ok)
}

func TestManager_ContentionFailsWithHolder(t *testing.T) {
	m := NewManager(30 * time.Second)

	_, err := m.Acquire("k1", "actorA", 5*time.Second)
	require.NoError(t, err)

	_, err = m.Acquire("k1", "actorB", 5*time.Second)
	require.Error(t, err)

	var locked *AlreadyLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "actorA", locked.Holder)
	assert.Equal(t, "k1", locked.Key)
	assert.True(t, locked.Expiry.After(time.Now()))

	// After release the other actor succeeds.
	require.NoError(t, m.Release("k1", "actorA"))
	_, err = m.Acquire("k1", "actorB", 5*time.Second)
	assert.NoError(t, err)
}

func TestManager_Renewal(t *testing.T) {
	m := NewManager(30 * time.Second)

	first, err := m.Acquire("k1", "actorA", 50*time.Millisecond)
	require.NoError(t, err)

	second, err := m.Acquire("k1", "actorA", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, second.After(first), "renewal must extend the expiry")
}

func TestManager_ExpiredLockTakeover(t *testing.T) {
	m := NewManager(30 * time.Second)

	_, err := m.Acquire("k1", "actorA", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Expired lease is granted to a new actor on next access.
	_, err = m.Acquire("k1", "actorB", 5*time.Second)
	require.NoError(t, err)

	holder, _, ok := m.Holder("k1")
	require.True(t, ok)
	assert.Equal(t, "actorB", holder)
}

func TestManager_ReleaseByNonHolder(t *testing.T) {
	m := NewManager(30 * time.Second)

	_, err := m.Acquire("k1", "actorA", 5*time.Second)
	require.NoError(t, err)

	err = m.Release("k1", "actorB")
	var notHolder *NotHolderError
	require.ErrorAs(t, err, &notHolder)
	assert.Equal(t, "actorA", notHolder.Holder)
}

func TestManager_ReleaseUnheld(t *testing.T) {
	m := NewManager(30 * time.Second)
	assert.ErrorIs(t, m.Release("k1", "actorA"), ErrNotHeld)
}

func TestManager_ReleaseExpiredOwnLock(t *testing.T) {
	m := NewManager(30 * time.Second)

	_, err := m.Acquire("k1", "actorA", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// The lease is logically gone; releasing it is still a success for
	// the old holder and reclaims the slot.
	assert.NoError(t, m.Release("k1", "actorA"))
	assert.Equal(t, 0, m.Len())
}

func TestManager_DefaultTTL(t *testing.T) {
	m := NewManager(time.Second)

	expiry, err := m.Acquire("k1", "actorA", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Second), expiry, 200*time.Millisecond)
}

func TestManager_SnapshotSkipsExpired(t *testing.T) {
	m := NewManager(30 * time.Second)

	_, err := m.Acquire("k1", "actorA", 10*time.Millisecond)
	require.NoError(t, err)
	_, err = m.Acquire("k2", "actorB", 5*time.Second)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "k2", snap[0].Key)
}
