package analysis

import (
	"testing"

	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// row builds a 1xN BGR raster from the given pixels.
func row(t *testing.T, arena *memory.Arena, pixels ...[3]byte) *safe.Mat {
	t.Helper()
	data := make([]byte, 0, len(pixels)*3)
	for _, p := range pixels {
		data = append(data, p[:]...)
	}
	mat, err := arena.FromBytes(1, len(pixels), gocv.MatTypeCV8UC3, data, "row")
	require.NoError(t, err)
	return mat
}

func TestAnalyzeChannels(t *testing.T) {
	arena := memory.NewArena("analysis", 0)
	defer arena.Release()

	raster := row(t, arena,
		[3]byte{255, 255, 255},
		[3]byte{0, 0, 255},
		[3]byte{128, 128, 128},
	)

	ch, err := Analyze(arena, raster)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.Rows())
	assert.Equal(t, 3, ch.Cols())

	value, err := ch.Value.Bytes()
	require.NoError(t, err)
	saturation, err := ch.Saturation.Bytes()
	require.NoError(t, err)
	gray, err := ch.Gray.Bytes()
	require.NoError(t, err)

	assert.Equal(t, []byte{255, 255, 128}, value)
	assert.Equal(t, []byte{0, 255, 0}, saturation)
	assert.Equal(t, byte(255), gray[0])
	assert.Equal(t, byte(128), gray[2])
	assert.InDelta(t, 76, int(gray[1]), 1)
}

func TestAnalyzeRejectsInvalidRaster(t *testing.T) {
	arena := memory.NewArena("analysis", 0)
	defer arena.Release()

	_, err := Analyze(arena, nil)
	assert.Error(t, err)

	plane, err := arena.GetMat(2, 2, gocv.MatTypeCV8UC1, "plane")
	require.NoError(t, err)
	_, err = Analyze(arena, plane)
	assert.Error(t, err)
}

func TestNearWhite(t *testing.T) {
	arena := memory.NewArena("analysis", 0)
	defer arena.Release()

	ch, err := Analyze(arena, row(t, arena,
		[3]byte{255, 255, 255},
		[3]byte{240, 240, 240},
		[3]byte{235, 245, 250},
		[3]byte{40, 80, 160},
	))
	require.NoError(t, err)

	sure, err := ch.NearWhite(arena, 250, 10, "sure")
	require.NoError(t, err)
	soft, err := ch.NearWhite(arena, 235, 25, "soft")
	require.NoError(t, err)

	sureData, err := sure.Bytes()
	require.NoError(t, err)
	softData, err := soft.Bytes()
	require.NoError(t, err)

	assert.Equal(t, []byte{255, 0, 0, 0}, sureData)
	assert.Equal(t, []byte{255, 255, 255, 0}, softData)
}

func TestArenaReleasesChannels(t *testing.T) {
	arena := memory.NewArena("analysis", 0)

	ch, err := Analyze(arena, row(t, arena, [3]byte{1, 2, 3}))
	require.NoError(t, err)

	assert.Positive(t, arena.Release())
	assert.False(t, ch.Value.IsValid())
	assert.Zero(t, arena.Stats().ActiveMats)
}
