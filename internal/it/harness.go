// Package it holds integration tests that exercise the engine end to end:
// a Badger-backed version store, multiple version sources, conflict
// detection and resolution, locks, and events, all in one process.
package it

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coherence/internal/config"
	"coherence/internal/registry"
	"coherence/internal/storage"
)

// Harness wires a full engine: a Badger version store for the engine's own
// versions plus named in-memory stores acting as remote version sources.
type Harness struct {
	Engine  *registry.Registry
	Store   storage.VersionStore
	Sources map[string]*storage.MemoryStore

	events struct {
		mu   sync.Mutex
		list []registry.Event
	}
}

// NewHarness builds and starts an engine over a fresh Badger store in a
// test temp dir. sourceNames become extra version sources consulted by the
// default detector.
func NewHarness(t *testing.T, mutate func(*config.Config), sourceNames ...string) *Harness {
	t.Helper()

	cfg := config.Default()
	cfg.ReconciliationInterval = 25 * time.Millisecond
	cfg.ReconciliationTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &Harness{
		Store:   store,
		Sources: make(map[string]*storage.MemoryStore, len(sourceNames)),
	}

	opts := []registry.Option{registry.WithVersionStore(store)}
	for _, name := range sourceNames {
		src := storage.NewMemoryStore()
		h.Sources[name] = src
		opts = append(opts, registry.WithSource(name, src))
	}

	engine, err := registry.New(cfg, opts...)
	require.NoError(t, err)
	h.Engine = engine

	engine.AddListener(registry.ListenerFunc(func(e registry.Event) {
		h.events.mu.Lock()
		defer h.events.mu.Unlock()
		h.events.list = append(h.events.list, e)
	}))

	engine.Start()
	t.Cleanup(engine.Stop)
	return h
}

// Events returns a copy of all events observed so far.
func (h *Harness) Events() []registry.Event {
	h.events.mu.Lock()
	defer h.events.mu.Unlock()

	out := make([]registry.Event, len(h.events.list))
	copy(out, h.events.list)
	return out
}

// EventsOfType returns the observed events of the given type, in order.
func (h *Harness) EventsOfType(t registry.EventType) []registry.Event {
	var out []registry.Event
	for _, e := range h.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// WaitState blocks until key reaches the wanted state or the deadline
// passes.
func (h *Harness) WaitState(t *testing.T, key string, want registry.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		info, err := h.Engine.GetConsistencyState(key)
		if err == nil && info.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	info, err := h.Engine.GetConsistencyState(key)
	t.Fatalf("key %s never reached %s (last: %+v err=%v)", key, want, info.State, err)
}

// WaitUntil blocks until cond holds or the deadline passes.
func (h *Harness) WaitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
