package registry

import (
	"log"
	"sync"
	"time"
)

// EventType names the events emitted by the engine.
type EventType string

const (
	EventReconciliationStarted   EventType = "reconciliationStarted"
	EventReconciliationCompleted EventType = "reconciliationCompleted"
	EventConflictDetected        EventType = "conflictDetected"
	EventConflictResolved        EventType = "conflictResolved"
	EventConsistencyViolation    EventType = "consistencyViolationDetected"
	EventDataLocked              EventType = "dataLocked"
	EventDataUnlocked            EventType = "dataUnlocked"
)

// Event is a notification about a tracked key.
type Event struct {
	Type      EventType
	Key       string
	Timestamp time.Time
	Payload   map[string]any
}

// Listener observes engine events. Implementations must not block; slow or
// panicking listeners cannot break delivery to others.
type Listener interface {
	HandleEvent(e Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(e Event)

// HandleEvent calls f(e).
func (f ListenerFunc) HandleEvent(e Event) {
	f(e)
}

// emitter fans events out to subscribed listeners. Each listener runs under
// its own recover so one faulty listener cannot affect the rest or the
// engine's own state transitions.
type emitter struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

func newEmitter() *emitter {
	return &emitter{
		listeners: make(map[int]Listener),
	}
}

func (e *emitter) add(l Listener) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return id
}

func (e *emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, id)
}

func (e *emitter) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.RLock()
	snapshot := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		snapshot = append(snapshot, l)
	}
	e.mu.RUnlock()

	for _, l := range snapshot {
		deliver(l, ev)
	}
}

func deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[registry] event listener panic on %s for key=%s: %v", ev.Type, ev.Key, r)
		}
	}()
	l.HandleEvent(ev)
}
