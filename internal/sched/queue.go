package sched

import (
	"time"
)

// Item is a queued reconciliation request for a key.
type Item struct {
	Key          string
	EnqueuedAt   time.Time
	HighPriority bool
}

// queue is a two-tier FIFO: high-priority items dequeue before normal ones,
// and each tier preserves enqueue order. At most one item per key; callers
// hold the scheduler mutex.
type queue struct {
	high   []*Item
	normal []*Item
	byKey  map[string]*Item
}

func newQueue() *queue {
	return &queue{
		byKey: make(map[string]*Item),
	}
}

// push adds or merges an item for key. Re-adding a queued key may raise its
// priority but never lowers it, and keeps the original enqueue time.
func (q *queue) push(key string, highPriority bool) {
	if existing, queued := q.byKey[key]; queued {
		if highPriority && !existing.HighPriority {
			existing.HighPriority = true
			q.normal = remove(q.normal, existing)
			q.high = append(q.high, existing)
		}
		return
	}

	item := &Item{
		Key:          key,
		EnqueuedAt:   time.Now(),
		HighPriority: highPriority,
	}
	q.byKey[key] = item
	if highPriority {
		q.high = append(q.high, item)
	} else {
		q.normal = append(q.normal, item)
	}
}

// pop removes and returns the next item, high tier first.
func (q *queue) pop() (*Item, bool) {
	var item *Item
	switch {
	case len(q.high) > 0:
		item = q.high[0]
		q.high[0] = nil
		q.high = q.high[1:]
	case len(q.normal) > 0:
		item = q.normal[0]
		q.normal[0] = nil
		q.normal = q.normal[1:]
	default:
		return nil, false
	}

	delete(q.byKey, item.Key)
	return item, true
}

// position returns the 0-based dequeue position of key, or -1 if unqueued.
func (q *queue) position(key string) int {
	item, queued := q.byKey[key]
	if !queued {
		return -1
	}

	if item.HighPriority {
		for i, it := range q.high {
			if it.Key == key {
				return i
			}
		}
		return -1
	}

	for i, it := range q.normal {
		if it.Key == key {
			return len(q.high) + i
		}
	}
	return -1
}

func (q *queue) len() int {
	return len(q.high) + len(q.normal)
}

func remove(items []*Item, target *Item) []*Item {
	for i, it := range items {
		if it == target {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}
