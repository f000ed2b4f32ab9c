// Package storage provides the version store interface with in-memory and
// Badger-backed implementations. The store tracks the latest observed
// version of each key per source so reconciliation can detect disagreement
// between sources.
package storage
