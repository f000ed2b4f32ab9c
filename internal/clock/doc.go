// Package clock provides vector clocks for tracking causality between
// updates arriving from multiple sources. The per-key Store maintains one
// clock per tracked key so the registry can detect happened-before
// relationships and propagate causal ordering to dependent keys.
package clock
