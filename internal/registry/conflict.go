package registry

import (
	"time"

	"coherence/internal/resolve"
)

// Conflict is a detected disagreement between two or more versions of a
// key. A key carries at most one open conflict at a time.
type Conflict struct {
	ID         string
	Key        string
	Versions   []resolve.VersionTag // >= 2 entries, timestamp ascending
	DetectedAt time.Time
	Reason     string
}

func (c *Conflict) copy() Conflict {
	dup := *c
	dup.Versions = make([]resolve.VersionTag, len(c.Versions))
	copy(dup.Versions, c.Versions)
	return dup
}

// ResolvedConflict is a history entry for a resolved conflict.
type ResolvedConflict struct {
	Conflict   Conflict
	Resolution resolve.Resolution
	ResolvedAt time.Time
}

// ConflictFilter narrows GetConflicts results. A zero filter matches all
// open conflicts.
type ConflictFilter struct {
	// Keys restricts results to the given keys when non-empty.
	Keys []string
	// Since restricts results to conflicts detected at or after this time.
	Since time.Time
}

func (f ConflictFilter) matches(c *Conflict) bool {
	if len(f.Keys) > 0 {
		found := false
		for _, k := range f.Keys {
			if k == c.Key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && c.DetectedAt.Before(f.Since) {
		return false
	}
	return true
}
