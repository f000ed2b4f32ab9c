package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"coherence/internal/resolve"
	"coherence/internal/sched"
)

// reconcile is the scheduler's RunFunc: it gathers the key's known
// versions, decides whether they agree, and lands the record in
// CONSISTENT or CONFLICT. State transitions are never left dangling; the
// onReconcileDone hook repairs RECONCILING on failure paths.
func (r *Registry) reconcile(ctx context.Context, key string) error {
	r.mu.Lock()
	rec, exists := r.records[key]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	rec.state = StateReconciling
	rec.lastCheck = time.Now()
	r.mu.Unlock()

	r.events.emit(Event{Type: EventReconciliationStarted, Key: key})

	versions, err := r.detector(ctx, key)
	if err != nil {
		return fmt.Errorf("collect versions for %s: %w", key, err)
	}
	if ctx.Err() != nil {
		// The run was finalized as timed out while the detector lingered.
		// The finalized outcome owns the record state; committing a result
		// here would race it.
		return ctx.Err()
	}

	distinct := resolve.Distinct(versions)
	if len(distinct) > 1 {
		if r.cfg.ConflictDetectionEnabled {
			return r.handleDivergence(key, distinct)
		}
		// Detection disabled: divergence is observed but never becomes a
		// conflict, and the key settles as consistent.
		r.metrics.violationDetected()
		r.events.emit(Event{
			Type: EventConsistencyViolation,
			Key:  key,
			Payload: map[string]any{
				"divergentVersions": len(distinct),
				"detectionEnabled":  false,
			},
		})
	}

	r.mu.Lock()
	rec.state = StateConsistent
	r.mu.Unlock()
	return nil
}

// handleDivergence opens a conflict for key, or re-lands on the existing
// one. At most one conflict stays open per key; new divergence observed
// while one is open does not spawn another.
func (r *Registry) handleDivergence(key string, versions []resolve.VersionTag) error {
	sorted := make([]resolve.VersionTag, len(versions))
	copy(sorted, versions)
	resolve.SortByTimestamp(sorted)

	r.mu.Lock()
	rec := r.records[key]
	if _, open := r.conflicts[key]; open {
		rec.state = StateConflict
		r.mu.Unlock()
		return nil
	}

	c := &Conflict{
		ID:         uuid.NewString(),
		Key:        key,
		Versions:   sorted,
		DetectedAt: time.Now(),
		Reason:     fmt.Sprintf("%d divergent versions across sources", len(sorted)),
	}
	r.conflicts[key] = c
	rec.state = StateConflict
	strategy := rec.strategy
	custom := rec.custom
	conflictID := c.ID
	r.mu.Unlock()

	r.metrics.conflictDetected()
	r.events.emit(Event{
		Type: EventConflictDetected,
		Key:  key,
		Payload: map[string]any{
			"conflictId": conflictID,
			"versions":   len(sorted),
			"reason":     c.Reason,
		},
	})

	if !r.cfg.AutoResolveConflicts {
		return nil
	}
	if strategy == resolve.Custom && custom == nil {
		// Nothing to auto-resolve with; the conflict stays open for a
		// manual ResolveConflict call.
		return nil
	}

	res, err := resolve.Resolve(strategy, sorted, custom)
	if err != nil {
		log.Printf("[registry] auto-resolve failed for key=%s: %v", key, err)
		return nil
	}
	if err := r.applyResolution(key, res); err != nil {
		log.Printf("[registry] apply resolution failed for key=%s: %v", key, err)
	}
	return nil
}

// ResolveConflict resolves the open conflict on key with the given
// strategy, independent of the key's registered strategy. The resolved
// conflict moves to history and the key returns to CONSISTENT.
func (r *Registry) ResolveConflict(key string, strategy resolve.Strategy) (resolve.Resolution, error) {
	if !r.isStarted() {
		return resolve.Resolution{}, ErrNotInitialized
	}

	r.mu.RLock()
	c, open := r.conflicts[key]
	if !open {
		r.mu.RUnlock()
		return resolve.Resolution{}, fmt.Errorf("%w: %s", ErrNoConflict, key)
	}
	versions := make([]resolve.VersionTag, len(c.Versions))
	copy(versions, c.Versions)
	var custom resolve.CustomFunc
	if rec, exists := r.records[key]; exists {
		custom = rec.custom
	}
	r.mu.RUnlock()

	res, err := resolve.Resolve(strategy, versions, custom)
	if err != nil {
		return resolve.Resolution{}, err
	}
	if err := r.applyResolution(key, res); err != nil {
		return resolve.Resolution{}, err
	}
	return res, nil
}

// applyResolution closes the open conflict on key, records it in history,
// collapses the stored versions to the winner, and returns the key to
// CONSISTENT. Fails with ErrNoConflict when the conflict was already
// closed, e.g. by a racing auto-resolve.
func (r *Registry) applyResolution(key string, res resolve.Resolution) error {
	r.mu.Lock()
	c, open := r.conflicts[key]
	if !open {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoConflict, key)
	}
	delete(r.conflicts, key)

	if rec, exists := r.records[key]; exists {
		rec.state = StateConsistent
	}

	entry := ResolvedConflict{
		Conflict:   c.copy(),
		Resolution: res,
		ResolvedAt: time.Now(),
	}
	r.history = append(r.history, entry)
	if max := r.cfg.HistoryLength; max > 0 && len(r.history) > max {
		r.history = r.history[len(r.history)-max:]
	}
	conflictID := c.ID
	r.mu.Unlock()

	if res.Winner != nil {
		if err := r.store.Reset(key, *res.Winner); err != nil {
			log.Printf("[registry] version store reset failed for key=%s: %v", key, err)
		}
	}

	r.metrics.conflictResolved()
	r.events.emit(Event{
		Type: EventConflictResolved,
		Key:  key,
		Payload: map[string]any{
			"conflictId": conflictID,
			"strategy":   res.Strategy.String(),
		},
	})
	return nil
}

// onReconcileDone is the scheduler's completion hook. It updates metrics,
// emits the completion event, and repairs a record stranded in
// RECONCILING by a failed or timed-out run.
func (r *Registry) onReconcileDone(key string, err error, elapsed time.Duration) {
	if err == nil {
		r.metrics.reconciliationCompleted(elapsed)
		r.events.emit(Event{
			Type: EventReconciliationCompleted,
			Key:  key,
			Payload: map[string]any{
				"success":    true,
				"durationMs": elapsed.Milliseconds(),
			},
		})
		return
	}

	timedOut := errors.Is(err, sched.ErrTimeout)
	r.metrics.reconciliationFailed(timedOut)

	r.mu.Lock()
	if rec, exists := r.records[key]; exists && rec.state == StateReconciling {
		if _, open := r.conflicts[key]; open {
			rec.state = StateConflict
		} else {
			rec.state = StateUnknown
		}
	}
	r.mu.Unlock()

	reason := "error"
	if timedOut {
		reason = "timeout"
	}
	log.Printf("[registry] reconciliation failed for key=%s (%s): %v", key, reason, err)
	r.events.emit(Event{
		Type: EventReconciliationCompleted,
		Key:  key,
		Payload: map[string]any{
			"success":    false,
			"reason":     reason,
			"error":      err.Error(),
			"durationMs": elapsed.Milliseconds(),
		},
	})
}

// sortConflicts orders conflicts by detection time, then key for
// deterministic ties.
func sortConflicts(cs []Conflict) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].DetectedAt.Equal(cs[j].DetectedAt) {
			return cs[i].Key < cs[j].Key
		}
		return cs[i].DetectedAt.Before(cs[j].DetectedAt)
	})
}
