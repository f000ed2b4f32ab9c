package clock

import (
	"fmt"
	"sort"
	"strings"
)

// VectorClock maps a source identifier to a monotonically increasing counter.
// Thread-safety is the caller's responsibility; the registry guards clocks
// through the per-key Store.
type VectorClock map[string]uint64

// New creates a new empty vector clock.
func New() VectorClock {
	return make(VectorClock)
}

// Increment bumps the counter for the given source ID.
// A missing source is initialized to 1.
func (vc VectorClock) Increment(sourceID string) {
	vc[sourceID]++
}

// Get returns the counter for the given source ID, or 0 if not present.
func (vc VectorClock) Get(sourceID string) uint64 {
	return vc[sourceID]
}

// Set sets the counter for the given source ID.
func (vc VectorClock) Set(sourceID string, value uint64) {
	vc[sourceID] = value
}

// Merge folds another vector clock into this one, taking the component-wise
// maximum. Counters never decrease.
func (vc VectorClock) Merge(other VectorClock) {
	for sourceID, counter := range other {
		if vc[sourceID] < counter {
			vc[sourceID] = counter
		}
	}
}

// Copy creates a deep copy of the vector clock.
func (vc VectorClock) Copy() VectorClock {
	dup := New()
	for k, v := range vc {
		dup[k] = v
	}
	return dup
}

// Ordering represents the causal relationship between two vector clocks.
type Ordering int

const (
	// Before indicates this clock happened before the other.
	Before Ordering = iota
	// After indicates this clock happened after the other.
	After
	// Concurrent indicates neither clock dominates the other.
	Concurrent
	// Equal indicates the clocks are identical.
	Equal
)

// String returns the string representation of an Ordering.
func (o Ordering) String() string {
	switch o {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	case Concurrent:
		return "CONCURRENT"
	case Equal:
		return "EQUAL"
	default:
		return "UNKNOWN"
	}
}

// Compare determines the causal relationship between two clocks:
//   - Equal: all counters match
//   - Before: every counter <= the other's, at least one strictly less
//   - After: every counter >= the other's, at least one strictly greater
//   - Concurrent: some counters greater, some less (no causal order)
func (vc VectorClock) Compare(other VectorClock) Ordering {
	if vc.Equal(other) {
		return Equal
	}

	sources := make(map[string]struct{}, len(vc)+len(other))
	for sourceID := range vc {
		sources[sourceID] = struct{}{}
	}
	for sourceID := range other {
		sources[sourceID] = struct{}{}
	}

	var less, greater bool
	for sourceID := range sources {
		a := vc[sourceID]
		b := other[sourceID]
		if a < b {
			less = true
		} else if a > b {
			greater = true
		}
	}

	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	default:
		return Concurrent
	}
}

// Equal reports whether two vector clocks carry identical counters.
// A missing entry and a zero entry are treated the same.
func (vc VectorClock) Equal(other VectorClock) bool {
	for sourceID, counter := range vc {
		if other[sourceID] != counter {
			return false
		}
	}
	for sourceID, counter := range other {
		if vc[sourceID] != counter {
			return false
		}
	}
	return true
}

// Dominates returns true if this clock happened after the other.
func (vc VectorClock) Dominates(other VectorClock) bool {
	return vc.Compare(other) == After
}

// IsConcurrent returns true if this clock is concurrent with the other.
func (vc VectorClock) IsConcurrent(other VectorClock) bool {
	return vc.Compare(other) == Concurrent
}

// String returns a deterministic string representation, sorted by source ID.
func (vc VectorClock) String() string {
	if len(vc) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(vc))
	for k := range vc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, vc[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
