package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"coherence/internal/clock"
	"coherence/internal/config"
	"coherence/internal/gather"
	"coherence/internal/lock"
	"coherence/internal/resolve"
	"coherence/internal/sched"
	"coherence/internal/storage"
)

// localSource names the engine's own version store in multi-source fanouts.
const localSource = "local"

// Detector fetches the known versions of a key for conflict detection.
// The default detector reads the engine's version store, fanning out across
// all configured sources when more than one is present.
type Detector func(ctx context.Context, key string) ([]resolve.VersionTag, error)

// Option customizes a Registry.
type Option func(*Registry)

// WithVersionStore replaces the default in-memory version store.
func WithVersionStore(s storage.VersionStore) Option {
	return func(r *Registry) { r.store = s }
}

// WithSource adds a named read-only version source consulted by the
// default detector alongside the engine's own store.
func WithSource(name string, s storage.VersionStore) Option {
	return func(r *Registry) { r.sources[name] = s }
}

// WithDetector replaces the default conflict detector.
func WithDetector(d Detector) Option {
	return func(r *Registry) { r.detector = d }
}

// WithPrometheus registers the engine's collectors on reg instead of a
// private registry.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.promReg = reg }
}

// Registry is the consistency coordination engine. It owns all per-key
// state: records, vector clocks, open conflicts, locks, and the
// reconciliation queue. No other component mutates a record directly.
type Registry struct {
	mu sync.RWMutex

	cfg             config.Config
	defaultLevel    Level
	defaultStrategy resolve.Strategy

	records   map[string]*record
	conflicts map[string]*Conflict
	history   []ResolvedConflict

	clocks   *clock.Store
	locks    *lock.Manager
	store    storage.VersionStore
	sources  map[string]storage.VersionStore
	detector Detector
	sched    *sched.Scheduler
	events   *emitter
	metrics  *metrics
	promReg  prometheus.Registerer

	started    bool
	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

// New creates an engine from cfg. The configuration is validated and its
// default level/strategy parsed up front.
func New(cfg config.Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, err := ParseLevel(cfg.DefaultLevel)
	if err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:             cfg,
		defaultLevel:    level,
		defaultStrategy: strategy,
		records:         make(map[string]*record),
		conflicts:       make(map[string]*Conflict),
		clocks:          clock.NewStore(),
		locks:           lock.NewManager(cfg.LockTimeout),
		store:           storage.NewMemoryStore(),
		sources:         make(map[string]storage.VersionStore),
		events:          newEmitter(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.promReg == nil {
		r.promReg = prometheus.NewRegistry()
	}
	r.metrics = newMetrics(r.promReg)

	if r.detector == nil {
		r.detector = r.defaultDetector
	}

	r.sched = sched.New(cfg.ReconciliationInterval, cfg.ReconciliationTimeout,
		cfg.MaxConcurrentReconciliations, r.reconcile)
	r.sched.SetOnDone(r.onReconcileDone)

	return r, nil
}

// Start launches the scheduler and the due-work tick loop.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true

	ctx, cancel := context.WithCancel(context.Background())
	r.loopCancel = cancel

	r.sched.Start()
	r.loopWG.Add(1)
	go func() {
		defer r.loopWG.Done()
		ticker := time.NewTicker(r.cfg.ReconciliationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.enqueueDue()
			}
		}
	}()
}

// Stop halts the tick loop and the scheduler, waiting for in-flight
// reconciliations to finalize. Tracked state survives for a later Start.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel := r.loopCancel
	r.mu.Unlock()

	cancel()
	r.loopWG.Wait()
	r.sched.Stop()
}

func (r *Registry) isStarted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// RegisterData tracks a key with the given options. Registering an
// existing key with identical options is a no-op; conflicting options fail
// with ErrAlreadyRegistered.
func (r *Registry) RegisterData(key string, opts Options) error {
	if !r.isStarted() {
		return ErrNotInitialized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.records[key]; exists {
		if existing.sameOptions(opts) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}

	r.records[key] = newRecord(key, opts)
	if r.cfg.VectorClockEnabled {
		r.clocks.Init(key)
	}
	return nil
}

// RecordUpdate records a write to key from sourceID. The key is implicitly
// registered with engine defaults when untracked. The record's version and
// vector clock always advance; the consistency level decides whether
// reconciliation happens now, cascades to dependencies, or waits for the
// periodic tick. Reconciliation failures are never returned here.
func (r *Registry) RecordUpdate(key, sourceID string, data []byte, meta UpdateMeta) error {
	if !r.isStarted() {
		return ErrNotInitialized
	}

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	r.mu.Lock()
	rec := r.ensureRecord(key)
	rec.version++
	rec.lastModified = ts
	version := rec.version
	level := rec.level
	isQuantum := rec.isQuantum
	deps := rec.depList()
	r.mu.Unlock()

	if r.cfg.VectorClockEnabled {
		r.observeClock(key, sourceID, meta.Clock)
	}

	tag := resolve.VersionTag{SourceID: sourceID, Version: version, Timestamp: ts, Data: data}
	if err := r.store.Append(key, tag); err != nil {
		return fmt.Errorf("append version for %s: %w", key, err)
	}

	switch level {
	case Strong:
		// Same scheduler cycle as the update, without blocking the caller.
		r.sched.Enqueue(key, true)
		r.sched.Kick()
	case Quantum:
		if isQuantum {
			r.handleEntanglement(key, deps)
		}
		r.propagateCausal(key, deps)
	case Causal:
		r.propagateCausal(key, deps)
	case Hybrid:
		if len(deps) > 0 {
			r.propagateCausal(key, deps)
		}
	case Eventual:
		// Periodic tick picks it up.
	}
	return nil
}

// observeClock advances the key's clock for sourceID and folds in the
// sender's clock when causal ordering is enabled. A sender clock concurrent
// with ours is a causal ordering violation: observed, never fatal.
func (r *Registry) observeClock(key, sourceID string, remote map[string]uint64) {
	if r.cfg.CausalOrderingEnabled && len(remote) > 0 {
		local := r.clocks.Get(key)
		if local != nil && local.IsConcurrent(clock.VectorClock(remote)) {
			r.metrics.violationDetected()
			r.events.emit(Event{
				Type: EventConsistencyViolation,
				Key:  key,
				Payload: map[string]any{
					"sourceId":    sourceID,
					"localClock":  local.String(),
					"remoteClock": clock.VectorClock(remote).String(),
				},
			})
		}
	}

	r.clocks.Merge(key, sourceID)
	if r.cfg.CausalOrderingEnabled && len(remote) > 0 {
		r.clocks.Apply(key, clock.VectorClock(remote))
	}
}

// handleEntanglement reconciles a quantum key and its entangled
// dependencies eagerly: divergence on one side implies divergence on all.
func (r *Registry) handleEntanglement(key string, deps []string) {
	r.sched.Enqueue(key, true)
	for _, dep := range deps {
		r.sched.Enqueue(dep, true)
	}
	r.sched.Kick()
}

// propagateCausal enqueues the key and its dependencies at normal priority.
func (r *Registry) propagateCausal(key string, deps []string) {
	if !r.cfg.CausalOrderingEnabled {
		return
	}
	r.sched.Enqueue(key, false)
	for _, dep := range deps {
		r.sched.Enqueue(dep, false)
	}
}

// CheckConsistency forces a high-priority reconciliation of key and
// returns an advisory completion estimate based on queue position.
func (r *Registry) CheckConsistency(key string) (time.Time, error) {
	if !r.isStarted() {
		return time.Time{}, ErrNotInitialized
	}

	r.mu.RLock()
	_, exists := r.records[key]
	r.mu.RUnlock()
	if !exists {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	r.sched.Enqueue(key, true)
	r.sched.Kick()

	pos := r.sched.Position(key)
	if pos < 0 {
		pos = 0 // already running
	}
	step := r.metrics.avgDuration()
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	return time.Now().Add(time.Duration(pos+1) * step), nil
}

// GetConsistencyState returns a read-only snapshot of a tracked key.
func (r *Registry) GetConsistencyState(key string) (Info, error) {
	r.mu.RLock()
	rec, exists := r.records[key]
	if !exists {
		r.mu.RUnlock()
		return Info{}, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	info := Info{
		Key:          rec.key,
		Level:        rec.level,
		Strategy:     rec.strategy,
		IsQuantum:    rec.isQuantum,
		Dependencies: rec.depList(),
		State:        rec.state,
		Version:      rec.version,
		LastModified: rec.lastModified,
		LastCheck:    rec.lastCheck,
	}
	r.mu.RUnlock()

	if vc := r.clocks.Get(key); vc != nil {
		info.Clock = map[string]uint64(vc)
	}
	if holder, expiry, held := r.locks.Holder(key); held {
		info.LockHolder = holder
		info.LockExpiry = expiry
	}
	return info, nil
}

// GetConflicts returns copies of the open conflicts matching filter,
// ordered by detection time.
func (r *Registry) GetConflicts(filter ConflictFilter) []Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conflict, 0, len(r.conflicts))
	for _, c := range r.conflicts {
		if filter.matches(c) {
			out = append(out, c.copy())
		}
	}
	sortConflicts(out)
	return out
}

// History returns a copy of the resolved-conflict history, oldest first.
func (r *Registry) History() []ResolvedConflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ResolvedConflict, len(r.history))
	copy(out, r.history)
	return out
}

// Metrics aggregates engine counters and current queue state.
func (r *Registry) Metrics() Snapshot {
	var s Snapshot
	r.metrics.fill(&s)

	r.mu.RLock()
	s.TrackedKeys = len(r.records)
	s.OpenConflicts = len(r.conflicts)
	r.mu.RUnlock()

	s.QueueDepth = r.sched.QueueLen()
	s.ActiveReconciliations = r.sched.Active()
	return s
}

// LockData grants actorID an exclusive lease on key. The key is implicitly
// registered when untracked. Contention fails with *lock.AlreadyLockedError
// carrying the holder and expiry for backoff.
func (r *Registry) LockData(key, actorID string, ttl time.Duration) (time.Time, error) {
	if !r.isStarted() {
		return time.Time{}, ErrNotInitialized
	}

	r.mu.Lock()
	r.ensureRecord(key)
	r.mu.Unlock()

	expiry, err := r.locks.Acquire(key, actorID, ttl)
	if err != nil {
		return time.Time{}, err
	}

	r.events.emit(Event{
		Type: EventDataLocked,
		Key:  key,
		Payload: map[string]any{
			"actorId": actorID,
			"expiry":  expiry,
		},
	})
	return expiry, nil
}

// UnlockData releases actorID's lease on key.
func (r *Registry) UnlockData(key, actorID string) error {
	if !r.isStarted() {
		return ErrNotInitialized
	}

	if err := r.locks.Release(key, actorID); err != nil {
		return err
	}

	r.events.emit(Event{
		Type:    EventDataUnlocked,
		Key:     key,
		Payload: map[string]any{"actorId": actorID},
	})
	return nil
}

// Locks enumerates the live leases.
func (r *Registry) Locks() []lock.Lease {
	return r.locks.Snapshot()
}

// AddListener subscribes a listener and returns its id for removal.
func (r *Registry) AddListener(l Listener) int {
	return r.events.add(l)
}

// RemoveListener unsubscribes the listener with the given id.
func (r *Registry) RemoveListener(id int) {
	r.events.remove(id)
}

// ensureRecord returns the record for key, creating it with engine
// defaults when absent. Caller holds the write lock.
func (r *Registry) ensureRecord(key string) *record {
	rec, exists := r.records[key]
	if exists {
		return rec
	}

	rec = newRecord(key, Options{Level: r.defaultLevel, Strategy: r.defaultStrategy})
	r.records[key] = rec
	if r.cfg.VectorClockEnabled {
		r.clocks.Init(key)
	}
	return rec
}

func newRecord(key string, opts Options) *record {
	deps := make(map[string]struct{}, len(opts.Dependencies))
	for _, dep := range opts.Dependencies {
		deps[dep] = struct{}{}
	}
	return &record{
		key:       key,
		level:     opts.Level,
		strategy:  opts.Strategy,
		custom:    opts.CustomResolver,
		isQuantum: opts.IsQuantum,
		deps:      deps,
		state:     StateUnknown,
	}
}

// enqueueDue queues keys whose last check is older than the tick interval.
func (r *Registry) enqueueDue() {
	cutoff := time.Now().Add(-r.cfg.ReconciliationInterval)

	r.mu.RLock()
	due := make([]string, 0)
	for key, rec := range r.records {
		if rec.state == StateReconciling {
			continue
		}
		if rec.lastCheck.Before(cutoff) {
			due = append(due, key)
		}
	}
	r.mu.RUnlock()

	for _, key := range due {
		r.sched.Enqueue(key, false)
	}
}

// defaultDetector reads the engine's version store, fanning out across all
// configured sources when extra sources are present.
func (r *Registry) defaultDetector(ctx context.Context, key string) ([]resolve.VersionTag, error) {
	if len(r.sources) == 0 {
		return r.store.Versions(key)
	}

	names := make([]string, 0, len(r.sources)+1)
	names = append(names, localSource)
	for name := range r.sources {
		names = append(names, name)
	}

	result := gather.Collect(ctx, names, r.cfg.RequiredSources, func(fctx context.Context, name string) ([]resolve.VersionTag, error) {
		if name == localSource {
			return r.store.Versions(key)
		}
		return r.sources[name].Versions(key)
	})
	if !result.Success {
		return nil, fmt.Errorf("version collection for %s failed: %s", key, result.ErrorMessage)
	}
	return result.Versions, nil
}
