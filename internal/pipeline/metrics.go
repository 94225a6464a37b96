package pipeline

import (
	"fmt"
	"image"
	"math"

	"backdrop-cutout/internal/trimap"
)

// edgeThreshold is the Sobel magnitude above which a grey pixel is an edge.
const edgeThreshold = 30.0

// MatteMetrics summarises a finished alpha matte.
type MatteMetrics struct {
	Coverage float64 // fraction of pixels with alpha > 0
	Opaque   float64 // fraction with alpha == 255
	Partial  float64 // fraction strictly between 0 and 255
	// Bounds encloses every pixel with alpha > 0; empty for a blank matte.
	Bounds image.Rectangle
	// IoU compares the matte (alpha > 127) with the trimap's foreground labels.
	IoU float64
	// EdgeAlignment is the share of matte boundary pixels that sit on an
	// image edge.
	EdgeAlignment float64
}

// Empty reports whether the matte keeps nothing.
func (m MatteMetrics) Empty() bool {
	return m.Coverage == 0
}

// MeasureMatte computes MatteMetrics from row-major planes of equal size.
func MeasureMatte(alpha, labels, gray []byte, width, height int) (MatteMetrics, error) {
	n := width * height
	if len(alpha) != n || len(labels) != n || len(gray) != n {
		return MatteMetrics{}, fmt.Errorf("metrics: planes of %d/%d/%d bytes for %dx%d image",
			len(alpha), len(labels), len(gray), width, height)
	}
	if n == 0 {
		return MatteMetrics{}, nil
	}

	var m MatteMetrics
	var covered, opaque, partial int
	var inter, union int
	minX, minY, maxX, maxY := width, height, -1, -1

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			a := alpha[i]
			if a > 0 {
				covered++
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
			switch a {
			case 0:
			case 255:
				opaque++
			default:
				partial++
			}

			kept := a > 127
			labelled := trimap.Label(labels[i]).Foreground()
			if kept && labelled {
				inter++
			}
			if kept || labelled {
				union++
			}
		}
	}

	m.Coverage = float64(covered) / float64(n)
	m.Opaque = float64(opaque) / float64(n)
	m.Partial = float64(partial) / float64(n)
	if maxX >= 0 {
		m.Bounds = image.Rect(minX, minY, maxX+1, maxY+1)
	}
	if union > 0 {
		m.IoU = float64(inter) / float64(union)
	} else {
		m.IoU = 1
	}
	m.EdgeAlignment = edgeAlignment(alpha, gray, width, height)

	return m, nil
}

// edgeAlignment counts matte boundary pixels (kept pixels with a dropped
// 8-neighbour) that coincide with a Sobel edge in gray. A matte with no
// boundary scores 1.
func edgeAlignment(alpha, gray []byte, width, height int) float64 {
	var boundary, aligned int

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			kept := alpha[i] > 127

			onBoundary := false
			for dy := -1; dy <= 1 && !onBoundary; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if (alpha[i+dy*width+dx] > 127) != kept {
						onBoundary = true
						break
					}
				}
			}
			if !onBoundary || !kept {
				continue
			}
			boundary++

			g := func(dy, dx int) float64 { return float64(gray[i+dy*width+dx]) }
			gx := -g(-1, -1) - 2*g(0, -1) - g(1, -1) + g(-1, 1) + 2*g(0, 1) + g(1, 1)
			gy := -g(-1, -1) - 2*g(-1, 0) - g(-1, 1) + g(1, -1) + 2*g(1, 0) + g(1, 1)
			if math.Sqrt(gx*gx+gy*gy) > edgeThreshold {
				aligned++
			}
		}
	}

	if boundary == 0 {
		return 1
	}
	return float64(aligned) / float64(boundary)
}
