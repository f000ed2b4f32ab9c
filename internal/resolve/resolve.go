package resolve

import (
	"errors"
	"sort"
	"time"
)

// ErrNoCustomResolver is returned when the Custom strategy is requested but
// no resolver function was supplied.
var ErrNoCustomResolver = errors.New("no custom resolver configured")

// Strategy names the available conflict resolution strategies.
type Strategy int

const (
	// Timestamp selects the version with the latest timestamp.
	Timestamp Strategy = iota
	// Version selects the version with the highest monotonic version number.
	Version
	// Merge carries the full version list forward for the data owner to merge.
	Merge
	// Custom delegates to a caller-supplied resolver function.
	Custom
)

// String returns the string representation of a Strategy.
func (s Strategy) String() string {
	switch s {
	case Timestamp:
		return "TIMESTAMP"
	case Version:
		return "VERSION"
	case Merge:
		return "MERGE"
	case Custom:
		return "CUSTOM"
	default:
		return "UNKNOWN"
	}
}

// VersionTag is one observed version of a key: which source produced it,
// its monotonic version number, and when it was recorded.
type VersionTag struct {
	SourceID  string
	Version   uint64
	Timestamp time.Time
	Data      []byte
}

// Resolution is the outcome of reducing a set of conflicting versions.
// Winner is set for Timestamp, Version and Custom resolutions. Merge
// resolutions set Winner to the latest version and carry the full list in
// Merged; the semantic merge belongs to the external data owner.
type Resolution struct {
	Strategy   Strategy
	Winner     *VersionTag
	Merged     []VersionTag
	ResolvedAt time.Time
}

// CustomFunc is a caller-supplied resolver. Its result is taken verbatim.
type CustomFunc func(versions []VersionTag) Resolution

// ByTimestamp selects the version with the maximum timestamp. Ties are
// broken by the version appearing last in input order (stable).
func ByTimestamp(versions []VersionTag) Resolution {
	if len(versions) == 0 {
		return Resolution{Strategy: Timestamp, ResolvedAt: time.Now()}
	}

	winner := versions[0]
	for _, v := range versions[1:] {
		if !v.Timestamp.Before(winner.Timestamp) {
			winner = v
		}
	}
	return Resolution{Strategy: Timestamp, Winner: &winner, ResolvedAt: time.Now()}
}

// ByVersion selects the version with the maximum monotonic version number,
// with the same last-wins tie-break as ByTimestamp.
func ByVersion(versions []VersionTag) Resolution {
	if len(versions) == 0 {
		return Resolution{Strategy: Version, ResolvedAt: time.Now()}
	}

	winner := versions[0]
	for _, v := range versions[1:] {
		if v.Version >= winner.Version {
			winner = v
		}
	}
	return Resolution{Strategy: Version, Winner: &winner, ResolvedAt: time.Now()}
}

// ByMerge carries the full version list forward. The engine only marks the
// conflict structurally resolved; the merge value is advisory.
func ByMerge(versions []VersionTag) Resolution {
	merged := make([]VersionTag, len(versions))
	copy(merged, versions)

	res := ByTimestamp(versions)
	return Resolution{
		Strategy:   Merge,
		Winner:     res.Winner,
		Merged:     merged,
		ResolvedAt: time.Now(),
	}
}

// Resolve applies the given strategy to a set of conflicting versions.
// Custom requires a non-nil resolver; every other strategy is total.
func Resolve(strategy Strategy, versions []VersionTag, custom CustomFunc) (Resolution, error) {
	switch strategy {
	case Version:
		return ByVersion(versions), nil
	case Merge:
		return ByMerge(versions), nil
	case Custom:
		if custom == nil {
			return Resolution{}, ErrNoCustomResolver
		}
		res := custom(versions)
		res.Strategy = Custom
		if res.ResolvedAt.IsZero() {
			res.ResolvedAt = time.Now()
		}
		return res, nil
	default:
		return ByTimestamp(versions), nil
	}
}

// SortByTimestamp orders versions by timestamp ascending, in place.
// Equal timestamps keep their input order.
func SortByTimestamp(versions []VersionTag) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Timestamp.Before(versions[j].Timestamp)
	})
}

// Distinct reduces a version list to the latest observed version per source.
// The relative order of the surviving entries follows the input order of
// their last occurrence.
func Distinct(versions []VersionTag) []VersionTag {
	latest := make(map[string]int, len(versions))
	for i, v := range versions {
		if j, seen := latest[v.SourceID]; !seen || versions[j].Version <= v.Version {
			latest[v.SourceID] = i
		}
	}

	indexes := make([]int, 0, len(latest))
	for _, i := range latest {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]VersionTag, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, versions[i])
	}
	return out
}
