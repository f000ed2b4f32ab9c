package registry

import (
	"fmt"
	"time"

	"coherence/internal/resolve"
)

// Level governs how aggressively a key is reconciled.
type Level int

const (
	// Eventual keys rely on the periodic reconciliation tick.
	Eventual Level = iota
	// Strong keys reconcile in the same scheduler cycle as the update.
	Strong
	// Causal keys propagate reconciliation pressure to their dependencies.
	Causal
	// Quantum keys additionally reconcile entangled dependencies eagerly.
	Quantum
	// Hybrid keys behave causally when they have dependencies, eventually
	// otherwise.
	Hybrid
)

// String returns the string representation of a Level.
func (l Level) String() string {
	switch l {
	case Eventual:
		return "EVENTUAL"
	case Strong:
		return "STRONG"
	case Causal:
		return "CAUSAL"
	case Quantum:
		return "QUANTUM"
	case Hybrid:
		return "HYBRID"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "eventual":
		return Eventual, nil
	case "strong":
		return Strong, nil
	case "causal":
		return Causal, nil
	case "quantum":
		return Quantum, nil
	case "hybrid":
		return Hybrid, nil
	default:
		return Eventual, fmt.Errorf("unknown consistency level: %q", s)
	}
}

// ParseStrategy maps a config string to a resolution strategy.
func ParseStrategy(s string) (resolve.Strategy, error) {
	switch s {
	case "timestamp":
		return resolve.Timestamp, nil
	case "version":
		return resolve.Version, nil
	case "merge":
		return resolve.Merge, nil
	case "custom":
		return resolve.Custom, nil
	default:
		return resolve.Timestamp, fmt.Errorf("unknown resolution strategy: %q", s)
	}
}

// State is the consistency state of a tracked key.
type State int

const (
	// StateUnknown means the key has never completed a reconciliation.
	StateUnknown State = iota
	// StateConsistent means the last reconciliation found agreement.
	StateConsistent
	// StateReconciling means a reconciliation run is in flight.
	StateReconciling
	// StateConflict means an open conflict awaits resolution.
	StateConflict
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateConsistent:
		return "CONSISTENT"
	case StateReconciling:
		return "RECONCILING"
	case StateConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

// Options configure a tracked key at registration.
type Options struct {
	Level          Level
	Strategy       resolve.Strategy
	CustomResolver resolve.CustomFunc
	IsQuantum      bool
	Dependencies   []string
}

// UpdateMeta carries optional metadata on a recorded update. A zero value
// is valid: the engine stamps its own time and advances its own clock.
type UpdateMeta struct {
	// Timestamp is the update's logical time; zero means time.Now().
	Timestamp time.Time
	// Clock is the sender's vector clock, merged into the key's clock when
	// causal ordering is enabled.
	Clock map[string]uint64
}

// record is a tracked key's mutable state. Guarded by the registry mutex.
type record struct {
	key          string
	level        Level
	strategy     resolve.Strategy
	custom       resolve.CustomFunc
	isQuantum    bool
	deps         map[string]struct{}
	state        State
	version      uint64
	lastModified time.Time
	lastCheck    time.Time
}

func (r *record) depList() []string {
	out := make([]string, 0, len(r.deps))
	for dep := range r.deps {
		out = append(out, dep)
	}
	return out
}

// sameOptions reports whether opts matches the record's registration.
// Custom resolvers are functions and cannot be compared; they are excluded.
func (r *record) sameOptions(opts Options) bool {
	if r.level != opts.Level || r.strategy != opts.Strategy || r.isQuantum != opts.IsQuantum {
		return false
	}
	if len(r.deps) != len(opts.Dependencies) {
		return false
	}
	for _, dep := range opts.Dependencies {
		if _, exists := r.deps[dep]; !exists {
			return false
		}
	}
	return true
}

// Info is a read-only snapshot of a tracked key.
type Info struct {
	Key          string
	Level        Level
	Strategy     resolve.Strategy
	IsQuantum    bool
	Dependencies []string
	State        State
	Version      uint64
	LastModified time.Time
	LastCheck    time.Time
	Clock        map[string]uint64
	LockHolder   string
	LockExpiry   time.Time
}
