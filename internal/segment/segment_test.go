package segment

import (
	"errors"
	"image"
	"testing"

	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
	"backdrop-cutout/internal/trimap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const size = 40

var subject = image.Rect(12, 12, 28, 28)

func setup(t *testing.T) (*memory.Arena, *safe.Mat) {
	t.Helper()
	arena := memory.NewArena(t.Name(), 0)
	t.Cleanup(func() { arena.Release() })

	data := make([]byte, size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := [3]byte{255, 255, 255}
			if (image.Point{X: x, Y: y}).In(subject) {
				px = [3]byte{30, 90, 170}
			}
			copy(data[(y*size+x)*3:], px[:])
		}
	}

	raster, err := arena.FromBytes(size, size, gocv.MatTypeCV8UC3, data, "raster")
	require.NoError(t, err)
	return arena, raster
}

// labels seeds a trimap around the subject: certain border, probable
// bands around the subject edge, certain core.
func labels(t *testing.T, arena *memory.Arena) *trimap.Trimap {
	t.Helper()
	out := make([]trimap.Label, size*size)
	core := subject.Inset(3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := image.Point{X: x, Y: y}
			switch {
			case x < 2 || y < 2 || x >= size-2 || y >= size-2:
				out[y*size+x] = trimap.CertainBG
			case p.In(core):
				out[y*size+x] = trimap.CertainFG
			case p.In(subject):
				out[y*size+x] = trimap.ProbableFG
			default:
				out[y*size+x] = trimap.ProbableBG
			}
		}
	}
	tm, err := trimap.FromLabels(arena, size, size, out)
	require.NoError(t, err)
	return tm
}

func maskAt(t *testing.T, m *Mask, row, col int) byte {
	t.Helper()
	v, err := m.Mat().GetUCharAt(row, col)
	require.NoError(t, err)
	return v
}

func TestGrabCutSeparatesSubject(t *testing.T) {
	arena, raster := setup(t)
	tm := labels(t, arena)
	before, err := tm.Bytes()
	require.NoError(t, err)

	mask, err := GrabCut{}.Segment(arena, raster, tm, 5)
	require.NoError(t, err)

	assert.Equal(t, byte(255), maskAt(t, mask, 20, 20))
	assert.Equal(t, byte(255), maskAt(t, mask, 12, 12))
	assert.Equal(t, byte(0), maskAt(t, mask, 0, 0))
	assert.Equal(t, byte(0), maskAt(t, mask, 6, 20))

	after, err := tm.Bytes()
	require.NoError(t, err)
	assert.Equal(t, before, after, "solver must not modify the caller's labels")

	data, err := mask.Bytes()
	require.NoError(t, err)
	for _, v := range data {
		require.True(t, v == 0 || v == 255)
	}
}

func TestLabelSolverCollapses(t *testing.T) {
	arena, raster := setup(t)

	mask, err := LabelSolver{}.Segment(arena, raster, labels(t, arena), 0)
	require.NoError(t, err)

	assert.Equal(t, byte(255), maskAt(t, mask, 20, 20))
	assert.Equal(t, byte(255), maskAt(t, mask, 13, 13))
	assert.Equal(t, byte(0), maskAt(t, mask, 10, 10))
	assert.Equal(t, byte(0), maskAt(t, mask, 0, 0))
}

func TestSolversReturnEmptyMaskWithoutForeground(t *testing.T) {
	for _, solver := range []Solver{GrabCut{}, LabelSolver{}} {
		t.Run(solver.Name(), func(t *testing.T) {
			arena, raster := setup(t)
			tm, err := trimap.Filled(arena, size, size, trimap.CertainBG)
			require.NoError(t, err)

			mask, err := solver.Segment(arena, raster, tm, 5)
			require.NoError(t, err)

			data, err := mask.Bytes()
			require.NoError(t, err)
			assert.Equal(t, make([]byte, size*size), data)
		})
	}
}

func TestSolversRequireCertainBackground(t *testing.T) {
	for _, solver := range []Solver{GrabCut{}, LabelSolver{}} {
		t.Run(solver.Name(), func(t *testing.T) {
			arena, raster := setup(t)
			tm, err := trimap.Filled(arena, size, size, trimap.ProbableFG)
			require.NoError(t, err)

			_, err = solver.Segment(arena, raster, tm, 5)
			assert.ErrorIs(t, err, ErrSegmentation)
		})
	}
}

func TestGrabCutRequiresSamplesPerSide(t *testing.T) {
	arena, raster := setup(t)
	out := make([]trimap.Label, size*size)
	for i := range out {
		out[i] = trimap.CertainBG
	}
	out[size*20+20] = trimap.CertainFG
	tm, err := trimap.FromLabels(arena, size, size, out)
	require.NoError(t, err)

	_, err = GrabCut{}.Segment(arena, raster, tm, 5)
	assert.ErrorIs(t, err, ErrSegmentation)

	// the label solver has no sample requirement
	mask, err := LabelSolver{}.Segment(arena, raster, tm, 5)
	require.NoError(t, err)
	assert.Equal(t, byte(255), maskAt(t, mask, 20, 20))
}

func TestGrabCutSolverErrorIsSegmentationFailure(t *testing.T) {
	arena, raster := setup(t)
	tm := labels(t, arena)

	orig := grabCut
	t.Cleanup(func() { grabCut = orig })
	grabCut = func(gocv.Mat, *gocv.Mat, image.Rectangle, *gocv.Mat, *gocv.Mat, int, gocv.GrabCutMode) error {
		return errors.New("cv::Exception: bad mask")
	}

	mask, err := GrabCut{}.Segment(arena, raster, tm, 5)
	assert.Nil(t, mask)
	assert.ErrorIs(t, err, ErrSegmentation)
	assert.ErrorContains(t, err, "bad mask")
}

func TestSegmentRejectsMismatchedInput(t *testing.T) {
	arena, raster := setup(t)
	small, err := trimap.Filled(arena, 4, 4, trimap.CertainBG)
	require.NoError(t, err)

	_, err = GrabCut{}.Segment(arena, raster, small, 5)
	assert.Error(t, err)
	_, err = LabelSolver{}.Segment(arena, raster, nil, 5)
	assert.ErrorIs(t, err, ErrSegmentation)
	_, err = GrabCut{}.Segment(arena, raster, labels(t, arena), 0)
	assert.Error(t, err)
}

func TestNewSolver(t *testing.T) {
	s, err := NewSolver(config.SolverGrabCut)
	require.NoError(t, err)
	assert.Equal(t, "grabcut", s.Name())

	s, err = NewSolver(config.SolverLabels)
	require.NoError(t, err)
	assert.Equal(t, "labels", s.Name())

	_, err = NewSolver("annealing")
	assert.Error(t, err)
}
