package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagAt(source string, version uint64, unixMillis int64) VersionTag {
	return VersionTag{
		SourceID:  source,
		Version:   version,
		Timestamp: time.UnixMilli(unixMillis),
	}
}

func TestByTimestamp_PicksLatest(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 2, 50),
	}

	res := ByTimestamp(versions)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "src1", res.Winner.SourceID)
	assert.Equal(t, Timestamp, res.Strategy)
}

func TestByTimestamp_TieBreaksLast(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 2, 100),
	}

	res := ByTimestamp(versions)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "src2", res.Winner.SourceID, "equal timestamps resolve to the last version in input order")
}

func TestByVersion_PicksHighest(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 2, 50),
	}

	res := ByVersion(versions)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "src2", res.Winner.SourceID)
	assert.Equal(t, Version, res.Strategy)
}

func TestByVersion_TieBreaksLast(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 3, 100),
		tagAt("src2", 3, 50),
	}

	res := ByVersion(versions)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "src2", res.Winner.SourceID)
}

func TestByMerge_CarriesAllVersions(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 2, 50),
		tagAt("src3", 3, 75),
	}

	res := ByMerge(versions)
	assert.Equal(t, Merge, res.Strategy)
	assert.Len(t, res.Merged, 3)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "src1", res.Winner.SourceID, "merge winner is advisory and follows the latest timestamp")

	// The merged list is a copy
	res.Merged[0].SourceID = "mutated"
	assert.Equal(t, "src1", versions[0].SourceID)
}

func TestResolve_Custom(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 2, 50),
	}

	res, err := Resolve(Custom, versions, func(vs []VersionTag) Resolution {
		return Resolution{Winner: &vs[1]}
	})
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "src2", res.Winner.SourceID)
	assert.Equal(t, Custom, res.Strategy)
	assert.False(t, res.ResolvedAt.IsZero())
}

func TestResolve_CustomWithoutResolver(t *testing.T) {
	_, err := Resolve(Custom, []VersionTag{tagAt("src1", 1, 1)}, nil)
	assert.ErrorIs(t, err, ErrNoCustomResolver)
}

func TestResolve_DefaultsToTimestamp(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 2, 50),
	}

	res, err := Resolve(Timestamp, versions, nil)
	require.NoError(t, err)
	assert.Equal(t, "src1", res.Winner.SourceID)
}

func TestSortByTimestamp(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 300),
		tagAt("src2", 2, 100),
		tagAt("src3", 3, 200),
	}

	SortByTimestamp(versions)

	assert.Equal(t, "src2", versions[0].SourceID)
	assert.Equal(t, "src3", versions[1].SourceID)
	assert.Equal(t, "src1", versions[2].SourceID)
}

func TestDistinct_LatestPerSource(t *testing.T) {
	versions := []VersionTag{
		tagAt("src1", 1, 100),
		tagAt("src2", 1, 110),
		tagAt("src1", 2, 120),
	}

	out := Distinct(versions)
	require.Len(t, out, 2)
	assert.Equal(t, "src2", out[0].SourceID)
	assert.Equal(t, uint64(2), out[1].Version)
}

func TestStrategy_String(t *testing.T) {
	tests := []struct {
		strategy Strategy
		expected string
	}{
		{Timestamp, "TIMESTAMP"},
		{Version, "VERSION"},
		{Merge, "MERGE"},
		{Custom, "CUSTOM"},
		{Strategy(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.strategy.String())
	}
}
