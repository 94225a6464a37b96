// Package compose attaches the matte to the untouched colour raster.
package compose

import (
	"fmt"
	"image"

	"backdrop-cutout/internal/opencv/conversion"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Merge returns a BGRA Mat whose colour channels are raster's bytes and
// whose alpha channel is alpha.
func Merge(arena *memory.Arena, raster, alpha *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateColor(raster, "compose"); err != nil {
		return nil, err
	}
	if err := safe.ValidatePlane(alpha, "compose"); err != nil {
		return nil, err
	}
	if err := safe.ValidateSameSize(raster, alpha, "compose"); err != nil {
		return nil, err
	}

	bgra := gocv.NewMat()
	defer bgra.Close()
	if err := gocv.CvtColor(raster.GetMat(), &bgra, gocv.ColorBGRToBGRA); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	planes := gocv.Split(bgra)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()
	if len(planes) != 4 {
		return nil, fmt.Errorf("compose: BGRA split produced %d planes", len(planes))
	}

	out := gocv.NewMat()
	if err := gocv.Merge([]gocv.Mat{planes[0], planes[1], planes[2], alpha.GetMat()}, &out); err != nil {
		out.Close()
		return nil, fmt.Errorf("compose: %w", err)
	}

	merged, err := arena.Adopt(out, "bgra")
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	if merged.Type() != gocv.MatTypeCV8UC4 {
		merged.Close()
		return nil, fmt.Errorf("compose: merge produced type %d, want BGRA", int(merged.Type()))
	}
	return merged, nil
}

// ToNRGBA converts a BGRA Mat into a non-premultiplied image so colour
// values survive PNG encoding exactly, even where alpha is 0.
func ToNRGBA(bgra *safe.Mat) (*image.NRGBA, error) {
	return conversion.BGRAToNRGBA(bgra)
}
