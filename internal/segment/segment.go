// Package segment runs the graph-cut solver over a refined trimap and
// collapses its labels into a binary foreground mask.
package segment

import (
	"errors"
	"fmt"

	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
	"backdrop-cutout/internal/trimap"

	"gocv.io/x/gocv"
)

// ErrSegmentation marks images the solver cannot or did not segment.
var ErrSegmentation = errors.New("segmentation failed")

// MinSamples is the fewest candidate pixels per side GrabCut accepts, one
// per Gaussian mixture component.
const MinSamples = 5

// Mask is a CV_8UC1 plane: 255 where the solver chose foreground, else 0.
type Mask struct {
	mat *safe.Mat
}

func (m *Mask) Mat() *safe.Mat { return m.mat }

func (m *Mask) Bytes() ([]byte, error) { return m.mat.Bytes() }

// Solver assigns every pixel of raster to foreground or background,
// starting from labels.
type Solver interface {
	Name() string
	Segment(arena *memory.Arena, raster *safe.Mat, labels *trimap.Trimap, iterations int) (*Mask, error)
}

func NewSolver(kind config.SolverKind) (Solver, error) {
	switch kind {
	case config.SolverGrabCut, "":
		return GrabCut{}, nil
	case config.SolverLabels:
		return LabelSolver{}, nil
	default:
		return nil, fmt.Errorf("unknown solver %q", kind)
	}
}

// checkLabels enforces the preconditions every solver shares. A nil error
// with empty true means there is nothing to cut out.
func checkLabels(raster *safe.Mat, labels *trimap.Trimap) (counts trimap.Counts, empty bool, err error) {
	if err := safe.ValidateColor(raster, "segmentation"); err != nil {
		return counts, false, err
	}
	if labels == nil {
		return counts, false, fmt.Errorf("%w: no label map", ErrSegmentation)
	}
	if err := safe.ValidateSameSize(raster, labels.Mat(), "segmentation"); err != nil {
		return counts, false, err
	}

	counts, err = labels.Count()
	if err != nil {
		return counts, false, err
	}
	if counts.CertainBG == 0 {
		return counts, false, fmt.Errorf("%w: label map has no certain background", ErrSegmentation)
	}
	return counts, counts.Foreground() == 0, nil
}

// collapse maps CertainFG/ProbableFG to 255 and everything else to 0.
func collapse(arena *memory.Arena, rows, cols int, labels []byte) (*Mask, error) {
	out := make([]byte, len(labels))
	for i, v := range labels {
		if trimap.Label(v).Foreground() {
			out[i] = 255
		}
	}

	mat, err := arena.FromBytes(rows, cols, gocv.MatTypeCV8UC1, out, "mask")
	if err != nil {
		return nil, err
	}
	return &Mask{mat: mat}, nil
}

func emptyMask(arena *memory.Arena, rows, cols int) (*Mask, error) {
	mat, err := arena.GetMat(rows, cols, gocv.MatTypeCV8UC1, "mask")
	if err != nil {
		return nil, err
	}
	return &Mask{mat: mat}, nil
}

// LabelSolver collapses the supplied labels without any energy
// minimisation. Probable labels are taken at face value.
type LabelSolver struct{}

func (LabelSolver) Name() string { return "labels" }

func (LabelSolver) Segment(arena *memory.Arena, raster *safe.Mat, labels *trimap.Trimap, _ int) (*Mask, error) {
	_, empty, err := checkLabels(raster, labels)
	if err != nil {
		return nil, err
	}
	if empty {
		return emptyMask(arena, raster.Rows(), raster.Cols())
	}

	data, err := labels.Bytes()
	if err != nil {
		return nil, err
	}
	return collapse(arena, labels.Rows(), labels.Cols(), data)
}
