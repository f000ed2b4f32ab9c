package it

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coherence/internal/config"
	"coherence/internal/lock"
	"coherence/internal/registry"
	"coherence/internal/resolve"
	"coherence/internal/storage"
)

func TestSmoke_UpdateDetectResolve(t *testing.T) {
	h := NewHarness(t, nil, "replica-1", "replica-2")

	// The origin writes through the engine; the replicas hold stale
	// divergent versions of the same key.
	require.NoError(t, h.Engine.RecordUpdate("cart", "origin", []byte("latest"), registry.UpdateMeta{
		Timestamp: time.Unix(300, 0),
	}))
	require.NoError(t, h.Sources["replica-1"].Append("cart", resolve.VersionTag{
		SourceID: "replica-1", Version: 1, Timestamp: time.Unix(100, 0), Data: []byte("stale-a"),
	}))
	require.NoError(t, h.Sources["replica-2"].Append("cart", resolve.VersionTag{
		SourceID: "replica-2", Version: 1, Timestamp: time.Unix(200, 0), Data: []byte("stale-b"),
	}))

	_, err := h.Engine.CheckConsistency("cart")
	require.NoError(t, err)

	// Default strategy is timestamp with auto-resolve: the conflict opens
	// and closes without manual intervention.
	h.WaitUntil(t, 3*time.Second, func() bool {
		return h.Engine.Metrics().ConflictsResolved >= 1
	})
	h.WaitState(t, "cart", registry.StateConsistent, 3*time.Second)

	detected := h.EventsOfType(registry.EventConflictDetected)
	require.NotEmpty(t, detected)
	assert.Equal(t, "cart", detected[0].Key)
	require.NotEmpty(t, h.EventsOfType(registry.EventConflictResolved))

	history := h.Engine.History()
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Resolution.Winner)
	assert.Equal(t, "origin", history[0].Resolution.Winner.SourceID)
	assert.Len(t, history[0].Conflict.Versions, 3)

	// The engine's own store collapsed to the winner.
	versions, err := h.Store.Versions("cart")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, []byte("latest"), versions[0].Data)
}

func TestSmoke_ManualResolutionFlow(t *testing.T) {
	h := NewHarness(t, func(cfg *config.Config) {
		cfg.AutoResolveConflicts = false
	})

	require.NoError(t, h.Engine.RecordUpdate("doc", "node-a", []byte("a"), registry.UpdateMeta{
		Timestamp: time.Unix(100, 0),
	}))
	require.NoError(t, h.Engine.RecordUpdate("doc", "node-b", []byte("b"), registry.UpdateMeta{
		Timestamp: time.Unix(200, 0),
	}))

	_, err := h.Engine.CheckConsistency("doc")
	require.NoError(t, err)
	h.WaitState(t, "doc", registry.StateConflict, 3*time.Second)

	conflicts := h.Engine.GetConflicts(registry.ConflictFilter{Keys: []string{"doc"}})
	require.Len(t, conflicts, 1)

	res, err := h.Engine.ResolveConflict("doc", resolve.Merge)
	require.NoError(t, err)
	assert.Len(t, res.Merged, 2)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "node-b", res.Winner.SourceID)

	h.WaitState(t, "doc", registry.StateConsistent, 3*time.Second)
	assert.Empty(t, h.Engine.GetConflicts(registry.ConflictFilter{}))
}

func TestSmoke_LockContentionAndExpiry(t *testing.T) {
	h := NewHarness(t, nil)

	_, err := h.Engine.LockData("inventory", "writer-1", 60*time.Millisecond)
	require.NoError(t, err)

	_, err = h.Engine.LockData("inventory", "writer-2", time.Minute)
	var locked *lock.AlreadyLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "writer-1", locked.Holder)

	// Expiry is lazy: once the lease lapses, the next acquire takes over.
	time.Sleep(80 * time.Millisecond)
	_, err = h.Engine.LockData("inventory", "writer-2", time.Minute)
	require.NoError(t, err)

	info, err := h.Engine.GetConsistencyState("inventory")
	require.NoError(t, err)
	assert.Equal(t, "writer-2", info.LockHolder)

	require.NoError(t, h.Engine.UnlockData("inventory", "writer-2"))
	assert.Len(t, h.EventsOfType(registry.EventDataLocked), 2)
	assert.Len(t, h.EventsOfType(registry.EventDataUnlocked), 1)
}

func TestSmoke_BadgerPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ReconciliationInterval = 25 * time.Millisecond

	store, err := storage.NewBadgerStore(dir)
	require.NoError(t, err)

	engine, err := registry.New(cfg, registry.WithVersionStore(store))
	require.NoError(t, err)
	engine.Start()

	require.NoError(t, engine.RecordUpdate("orders", "node-a", []byte("persisted"), registry.UpdateMeta{}))
	engine.Stop()
	require.NoError(t, store.Close())

	// A fresh engine over the same directory sees the old versions.
	reopened, err := storage.NewBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	engine2, err := registry.New(cfg, registry.WithVersionStore(reopened))
	require.NoError(t, err)
	engine2.Start()
	defer engine2.Stop()

	versions, err := reopened.Versions("orders")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, []byte("persisted"), versions[0].Data)

	// Divergence against the persisted version is still detected.
	require.NoError(t, engine2.RecordUpdate("orders", "node-b", []byte("fresh"), registry.UpdateMeta{}))
	_, err = engine2.CheckConsistency("orders")
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if engine2.Metrics().ConflictsDetected >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, engine2.Metrics().ConflictsDetected, uint64(1))
}

func TestSmoke_StrongKeyLifecycle(t *testing.T) {
	h := NewHarness(t, nil)

	require.NoError(t, h.Engine.RegisterData("balance", registry.Options{Level: registry.Strong}))
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Engine.RecordUpdate("balance", "ledger", []byte{byte(i)}, registry.UpdateMeta{}))
		h.WaitState(t, "balance", registry.StateConsistent, 3*time.Second)
	}

	s := h.Engine.Metrics()
	assert.GreaterOrEqual(t, s.ReconciliationsCompleted, uint64(1))
	assert.Equal(t, uint64(0), s.ConflictsDetected)
	assert.Greater(t, s.AvgReconcileDuration, time.Duration(0))

	info, err := h.Engine.GetConsistencyState("balance")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), info.Version)
	assert.Equal(t, uint64(5), info.Clock["ledger"])
}
