package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestGetMatIsZeroFilled(t *testing.T) {
	arena := NewArena("test", 0)
	defer arena.Release()

	mat, err := arena.GetMat(3, 4, gocv.MatTypeCV8UC1, "plane")
	require.NoError(t, err)
	data, err := mat.Bytes()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 12), data)

	stats := arena.Stats()
	assert.Equal(t, int64(12), stats.TotalAllocated)
	assert.Equal(t, int64(1), stats.ActiveMats)
}

func TestRecycledMatsAreReusedClean(t *testing.T) {
	arena := NewArena("test", 0)
	defer arena.Release()

	first, err := arena.FromBytes(2, 2, gocv.MatTypeCV8UC1, []byte{1, 2, 3, 4}, "scratch")
	require.NoError(t, err)
	arena.Recycle(first)

	again, err := arena.GetMat(2, 2, gocv.MatTypeCV8UC1, "scratch")
	require.NoError(t, err)
	assert.Equal(t, first.ID(), again.ID())
	data, err := again.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
	assert.Equal(t, int64(1), arena.Stats().ScratchHits)

	// a different shape misses the scratch pool
	_, err = arena.GetMat(2, 3, gocv.MatTypeCV8UC1, "scratch")
	require.NoError(t, err)
	assert.Equal(t, int64(1), arena.Stats().ScratchMisses)
}

func TestReleaseClosesEverything(t *testing.T) {
	arena := NewArena("test", 0)

	a, err := arena.GetMat(2, 2, gocv.MatTypeCV8UC3, "a")
	require.NoError(t, err)
	b, err := arena.Clone(a, "b")
	require.NoError(t, err)
	c, err := arena.GetMat(1, 1, gocv.MatTypeCV8UC1, "c")
	require.NoError(t, err)
	c.Close()

	assert.Equal(t, 2, arena.Release())
	assert.False(t, a.IsValid())
	assert.False(t, b.IsValid())

	stats := arena.Stats()
	assert.Zero(t, stats.ActiveMats)
	assert.Equal(t, stats.TotalAllocated, stats.TotalReleased)
	assert.Equal(t, int64(25), stats.PeakBytes)

	_, err = arena.GetMat(1, 1, gocv.MatTypeCV8UC1, "late")
	assert.Error(t, err)
	_, err = arena.FromBytes(1, 1, gocv.MatTypeCV8UC1, []byte{7}, "late")
	assert.Error(t, err)
	assert.Zero(t, arena.Release())
}

func TestArenasAreIndependent(t *testing.T) {
	one := NewArena("one", 0)
	two := NewArena("two", 0)
	defer two.Release()

	kept, err := two.GetMat(2, 2, gocv.MatTypeCV8UC1, "kept")
	require.NoError(t, err)
	_, err = one.GetMat(2, 2, gocv.MatTypeCV8UC1, "dropped")
	require.NoError(t, err)

	one.Release()
	assert.True(t, kept.IsValid())
}

func TestLimitStopsAllocation(t *testing.T) {
	arena := NewArena("small", 100)
	defer arena.Release()

	_, err := arena.GetMat(10, 20, gocv.MatTypeCV8UC1, "big")
	require.NoError(t, err)
	_, err = arena.GetMat(1, 1, gocv.MatTypeCV8UC1, "more")
	assert.ErrorContains(t, err, "memory limit exceeded")
}

func TestFromBytesChecksLength(t *testing.T) {
	arena := NewArena("test", 0)
	defer arena.Release()

	_, err := arena.FromBytes(2, 2, gocv.MatTypeCV8UC3, []byte{1, 2, 3}, "short")
	assert.Error(t, err)
	_, err = arena.GetMat(0, 5, gocv.MatTypeCV8UC1, "empty")
	assert.Error(t, err)
}
