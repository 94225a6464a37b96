// Package trimap builds and refines the four-level label map that seeds
// the graph-cut solver.
package trimap

import (
	"fmt"

	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Label values are the GrabCut mask codes, so a Trimap's Mat can be handed
// to the solver unchanged.
type Label uint8

const (
	CertainBG  Label = 0
	CertainFG  Label = 1
	ProbableBG Label = 2
	ProbableFG Label = 3
)

func (l Label) String() string {
	switch l {
	case CertainBG:
		return "certain-bg"
	case CertainFG:
		return "certain-fg"
	case ProbableBG:
		return "probable-bg"
	case ProbableFG:
		return "probable-fg"
	default:
		return fmt.Sprintf("label(%d)", uint8(l))
	}
}

func (l Label) Valid() bool {
	return l <= ProbableFG
}

// Foreground reports whether the solver treats l as a foreground candidate.
func (l Label) Foreground() bool {
	return l == CertainFG || l == ProbableFG
}

// Counts is a per-label histogram of a Trimap.
type Counts struct {
	CertainBG  int
	ProbableBG int
	ProbableFG int
	CertainFG  int
}

func (c Counts) Background() int { return c.CertainBG + c.ProbableBG }
func (c Counts) Foreground() int { return c.CertainFG + c.ProbableFG }

// Trimap is a CV_8UC1 label map with one Label per pixel.
type Trimap struct {
	mat *safe.Mat
}

// FromLabels builds a Trimap from row-major labels.
func FromLabels(arena *memory.Arena, rows, cols int, labels []Label) (*Trimap, error) {
	data := make([]byte, len(labels))
	for i, l := range labels {
		data[i] = byte(l)
	}
	return fromBytes(arena, rows, cols, data)
}

// Filled builds a Trimap with every cell set to l.
func Filled(arena *memory.Arena, rows, cols int, l Label) (*Trimap, error) {
	data := make([]byte, rows*cols)
	if l != 0 {
		for i := range data {
			data[i] = byte(l)
		}
	}
	return fromBytes(arena, rows, cols, data)
}

func fromBytes(arena *memory.Arena, rows, cols int, data []byte) (*Trimap, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("trimap needs %d labels for %dx%d, got %d", rows*cols, cols, rows, len(data))
	}
	for i, v := range data {
		if !Label(v).Valid() {
			return nil, fmt.Errorf("invalid label %d at index %d", v, i)
		}
	}

	mat, err := arena.FromBytes(rows, cols, gocv.MatTypeCV8UC1, data, "trimap")
	if err != nil {
		return nil, fmt.Errorf("trimap allocation: %w", err)
	}
	return &Trimap{mat: mat}, nil
}

// Mat exposes the label Mat. Callers must not modify it.
func (t *Trimap) Mat() *safe.Mat { return t.mat }

func (t *Trimap) Rows() int { return t.mat.Rows() }
func (t *Trimap) Cols() int { return t.mat.Cols() }

// Bytes returns a copy of the labels in row-major order.
func (t *Trimap) Bytes() ([]byte, error) {
	return t.mat.Bytes()
}

func (t *Trimap) At(row, col int) (Label, error) {
	v, err := t.mat.GetUCharAt(row, col)
	return Label(v), err
}

func (t *Trimap) Count() (Counts, error) {
	data, err := t.mat.Bytes()
	if err != nil {
		return Counts{}, err
	}
	return countLabels(data), nil
}

// Clone copies the Trimap into arena.
func (t *Trimap) Clone(arena *memory.Arena) (*Trimap, error) {
	mat, err := arena.Clone(t.mat, "trimap")
	if err != nil {
		return nil, err
	}
	return &Trimap{mat: mat}, nil
}

// store swaps the label Mat for one holding data.
func (t *Trimap) store(arena *memory.Arena, data []byte) error {
	next, err := fromBytes(arena, t.Rows(), t.Cols(), data)
	if err != nil {
		return err
	}
	t.mat.Close()
	t.mat = next.mat
	return nil
}

func countLabels(data []byte) Counts {
	var c Counts
	for _, v := range data {
		switch Label(v) {
		case CertainBG:
			c.CertainBG++
		case ProbableBG:
			c.ProbableBG++
		case ProbableFG:
			c.ProbableFG++
		case CertainFG:
			c.CertainFG++
		}
	}
	return c
}

// fillBorder sets a band of margin cells along every edge to v. A margin
// of half the shorter side or more covers the whole map.
func fillBorder(data []byte, rows, cols, margin int, v byte) {
	if margin <= 0 {
		return
	}
	for y := 0; y < rows; y++ {
		row := data[y*cols : (y+1)*cols]
		if y < margin || y >= rows-margin {
			for x := range row {
				row[x] = v
			}
			continue
		}
		for x := 0; x < margin && x < cols; x++ {
			row[x] = v
			row[cols-1-x] = v
		}
	}
}
