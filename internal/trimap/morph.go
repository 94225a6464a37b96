package trimap

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// plane is a 0/255 byte mask with its shape, the working form of every
// label-set operation in this package.
type plane struct {
	rows, cols int
	data       []byte
}

func selectLabels(labels []byte, rows, cols int, keep func(Label) bool) plane {
	p := plane{rows: rows, cols: cols, data: make([]byte, len(labels))}
	for i, v := range labels {
		if keep(Label(v)) {
			p.data[i] = 255
		}
	}
	return p
}

func (p plane) any() bool {
	for _, v := range p.data {
		if v != 0 {
			return true
		}
	}
	return false
}

func (p plane) toMat(arena *memory.Arena, tag string) (*safe.Mat, error) {
	return arena.FromBytes(p.rows, p.cols, gocv.MatTypeCV8UC1, p.data, tag)
}

func planeFromMat(m *safe.Mat) (plane, error) {
	if err := safe.ValidatePlane(m, "mask read"); err != nil {
		return plane{}, err
	}
	data, err := m.Bytes()
	if err != nil {
		return plane{}, err
	}
	return plane{rows: m.Rows(), cols: m.Cols(), data: data}, nil
}

func ellipse(size int) gocv.Mat {
	return gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: size, Y: size})
}

// apply runs op on p inside arena and returns the resulting plane.
func (p plane) apply(arena *memory.Arena, tag string, op func(src gocv.Mat, dst *gocv.Mat) error) (plane, error) {
	src, err := p.toMat(arena, tag+"_src")
	if err != nil {
		return plane{}, err
	}
	defer arena.Recycle(src)

	dst, err := arena.GetMat(p.rows, p.cols, gocv.MatTypeCV8UC1, tag)
	if err != nil {
		return plane{}, err
	}
	defer arena.Recycle(dst)

	dstMat := dst.GetMat()
	if err := op(src.GetMat(), &dstMat); err != nil {
		return plane{}, fmt.Errorf("%s: %w", tag, err)
	}

	if dst.Rows() != p.rows || dst.Cols() != p.cols {
		return plane{}, fmt.Errorf("%s produced %dx%d, want %dx%d", tag, dst.Cols(), dst.Rows(), p.cols, p.rows)
	}
	return planeFromMat(dst)
}

// dilate grows p by a 3x3 ellipse, iterations times.
func (p plane) dilate(arena *memory.Arena, iterations int) (plane, error) {
	return p.repeat(arena, "dilate", iterations, gocv.Dilate)
}

// erode shrinks p by a 3x3 ellipse, iterations times.
func (p plane) erode(arena *memory.Arena, iterations int) (plane, error) {
	return p.repeat(arena, "erode", iterations, gocv.Erode)
}

func (p plane) repeat(arena *memory.Arena, tag string, iterations int, op func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error) (plane, error) {
	if iterations <= 0 {
		return p, nil
	}

	kernel := ellipse(3)
	defer kernel.Close()

	return p.apply(arena, tag, func(src gocv.Mat, dst *gocv.Mat) error {
		if err := op(src, dst, kernel); err != nil {
			return err
		}
		for i := 1; i < iterations; i++ {
			if err := op(*dst, dst, kernel); err != nil {
				return err
			}
		}
		return nil
	})
}

// smooth opens then closes p with an elliptical element of size px.
func (p plane) smooth(arena *memory.Arena, size int) (plane, error) {
	if size <= 0 {
		return p, nil
	}

	kernel := ellipse(size)
	defer kernel.Close()

	return p.apply(arena, "seed", func(src gocv.Mat, dst *gocv.Mat) error {
		opened := gocv.NewMat()
		defer opened.Close()
		if err := gocv.MorphologyEx(src, &opened, gocv.MorphOpen, kernel); err != nil {
			return err
		}
		return gocv.MorphologyEx(opened, dst, gocv.MorphClose, kernel)
	})
}

// beyond returns the cells of p whose Euclidean distance to the nearest
// zero cell exceeds radius.
func (p plane) beyond(arena *memory.Arena, radius float64) (plane, error) {
	out := plane{rows: p.rows, cols: p.cols, data: make([]byte, len(p.data))}
	if !p.any() {
		return out, nil
	}

	src, err := p.toMat(arena, "distance_src")
	if err != nil {
		return plane{}, err
	}
	defer arena.Recycle(src)

	dist := gocv.NewMat()
	labels := gocv.NewMat()
	defer labels.Close()
	if err := gocv.DistanceTransform(src.GetMat(), &dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp); err != nil {
		dist.Close()
		return plane{}, fmt.Errorf("distance transform: %w", err)
	}

	distMat, err := arena.Adopt(dist, "distance")
	if err != nil {
		return plane{}, fmt.Errorf("distance transform: %w", err)
	}
	defer distMat.Close()

	if distMat.Type() != gocv.MatTypeCV32FC1 || distMat.Rows() != p.rows || distMat.Cols() != p.cols {
		return plane{}, fmt.Errorf("distance transform produced unexpected %dx%d type %d", distMat.Cols(), distMat.Rows(), int(distMat.Type()))
	}

	raw, err := distMat.Bytes()
	if err != nil {
		return plane{}, err
	}
	if len(raw) != 4*len(out.data) {
		return plane{}, fmt.Errorf("distance buffer is %d bytes, want %d", len(raw), 4*len(out.data))
	}

	for i := range out.data {
		d := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		if float64(d) > radius {
			out.data[i] = 255
		}
	}
	return out, nil
}
