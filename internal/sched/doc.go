// Package sched provides the reconciliation scheduler: a two-tier priority
// queue drained by a periodic tick, executing runs with bounded concurrency
// and per-run timeouts. High-priority items dequeue first, each tier is
// FIFO, and a key is never queued or running more than once at a time.
package sched
