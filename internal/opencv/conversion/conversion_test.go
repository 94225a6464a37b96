package conversion

import (
	"image"
	"image/color"
	"testing"

	"backdrop-cutout/internal/opencv/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestImageToBGR(t *testing.T) {
	arena := memory.NewArena("test", 0)
	defer arena.Release()

	// non-zero origin and a translucent pixel
	img := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	img.SetNRGBA(5, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetNRGBA(6, 5, color.NRGBA{R: 200, G: 100, B: 50, A: 0})

	mat, err := ImageToBGR(arena, img)
	require.NoError(t, err)
	assert.Equal(t, 1, mat.Rows())
	assert.Equal(t, 2, mat.Cols())
	assert.Equal(t, gocv.MatTypeCV8UC3, mat.Type())

	data, err := mat.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 20, 10, 50, 100, 200}, data)

	_, err = ImageToBGR(arena, nil)
	assert.Error(t, err)
}

func TestBGRAToNRGBA(t *testing.T) {
	arena := memory.NewArena("test", 0)
	defer arena.Release()

	mat, err := arena.FromBytes(1, 2, gocv.MatTypeCV8UC4, []byte{1, 2, 3, 0, 4, 5, 6, 255}, "bgra")
	require.NoError(t, err)

	img, err := BGRAToNRGBA(mat)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 3, G: 2, B: 1, A: 0}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 6, G: 5, B: 4, A: 255}, img.NRGBAAt(1, 0))

	bgr, err := arena.FromBytes(1, 1, gocv.MatTypeCV8UC3, []byte{1, 2, 3}, "bgr")
	require.NoError(t, err)
	_, err = BGRAToNRGBA(bgr)
	assert.Error(t, err)
}
