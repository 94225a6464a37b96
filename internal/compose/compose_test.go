package compose

import (
	"testing"

	"backdrop-cutout/internal/opencv/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMergeKeepsColourBytes(t *testing.T) {
	arena := memory.NewArena(t.Name(), 0)
	defer arena.Release()

	bgr := []byte{
		255, 255, 255, 10, 20, 30,
		1, 2, 3, 200, 100, 50,
	}
	raster, err := arena.FromBytes(2, 2, gocv.MatTypeCV8UC3, bgr, "raster")
	require.NoError(t, err)
	alpha, err := arena.FromBytes(2, 2, gocv.MatTypeCV8UC1, []byte{0, 255, 128, 7}, "alpha")
	require.NoError(t, err)

	merged, err := Merge(arena, raster, alpha)
	require.NoError(t, err)

	img, err := ToNRGBA(merged)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		x, y := i%2, i/2
		c := img.NRGBAAt(x, y)
		assert.Equal(t, bgr[i*3+2], c.R, "R at %d", i)
		assert.Equal(t, bgr[i*3+1], c.G, "G at %d", i)
		assert.Equal(t, bgr[i*3], c.B, "B at %d", i)
	}
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), img.NRGBAAt(1, 0).A)
	assert.Equal(t, uint8(128), img.NRGBAAt(0, 1).A)
	assert.Equal(t, uint8(7), img.NRGBAAt(1, 1).A)
}

func TestMergeRejectsMismatchedInputs(t *testing.T) {
	arena := memory.NewArena(t.Name(), 0)
	defer arena.Release()

	raster, err := arena.GetMat(4, 4, gocv.MatTypeCV8UC3, "raster")
	require.NoError(t, err)
	small, err := arena.GetMat(2, 2, gocv.MatTypeCV8UC1, "alpha")
	require.NoError(t, err)
	colour, err := arena.GetMat(4, 4, gocv.MatTypeCV8UC3, "alpha")
	require.NoError(t, err)

	_, err = Merge(arena, raster, small)
	assert.Error(t, err)
	_, err = Merge(arena, raster, colour)
	assert.Error(t, err)
	_, err = Merge(arena, nil, small)
	assert.Error(t, err)
}
