package trimap

import (
	"image"
	"testing"

	"backdrop-cutout/internal/analysis"
	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var (
	white   = [3]byte{255, 255, 255}
	product = [3]byte{40, 80, 160}
	shadow  = [3]byte{240, 240, 240}
	black   = [3]byte{0, 0, 0}
)

func newArena(t *testing.T) *memory.Arena {
	t.Helper()
	arena := memory.NewArena(t.Name(), 0)
	t.Cleanup(func() { arena.Release() })
	return arena
}

type paint struct {
	r image.Rectangle
	c [3]byte
}

// raster paints fills over a background colour; later fills win.
func raster(t *testing.T, arena *memory.Arena, rows, cols int, bg [3]byte, fills ...paint) *safe.Mat {
	t.Helper()

	data := make([]byte, rows*cols*3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c := bg
			for _, f := range fills {
				if (image.Point{X: x, Y: y}).In(f.r) {
					c = f.c
				}
			}
			copy(data[(y*cols+x)*3:], c[:])
		}
	}

	mat, err := arena.FromBytes(rows, cols, gocv.MatTypeCV8UC3, data, "raster")
	require.NoError(t, err)
	return mat
}

func channels(t *testing.T, arena *memory.Arena, mat *safe.Mat) *analysis.Channels {
	t.Helper()
	ch, err := analysis.Analyze(arena, mat)
	require.NoError(t, err)
	return ch
}

func build(t *testing.T, arena *memory.Arena, strategy config.Strategy, mat *safe.Mat) (*Result, *config.Config) {
	t.Helper()
	cfg, err := config.Default(strategy)
	require.NoError(t, err)

	s, err := NewStrategy(cfg)
	require.NoError(t, err)

	res, err := s.Build(arena, channels(t, arena, mat))
	require.NoError(t, err)
	return res, cfg
}

func labelsOf(t *testing.T, tm *Trimap) []byte {
	t.Helper()
	data, err := tm.Bytes()
	require.NoError(t, err)
	return data
}

func at(t *testing.T, tm *Trimap, row, col int) Label {
	t.Helper()
	l, err := tm.At(row, col)
	require.NoError(t, err)
	return l
}
