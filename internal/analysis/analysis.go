// Package analysis derives the per-pixel channel maps every later stage
// classifies on: grayscale brightness, HSV value and HSV saturation.
package analysis

import (
	"fmt"

	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Channels holds the derived maps of one raster. All planes are CV_8UC1
// and share the raster's size. Consumers must treat them as read-only.
type Channels struct {
	Gray       *safe.Mat
	Value      *safe.Mat
	Saturation *safe.Mat

	hsv *safe.Mat
}

// Analyze converts a BGR raster into its channel maps. Hue is discarded.
func Analyze(arena *memory.Arena, raster *safe.Mat) (*Channels, error) {
	if err := safe.ValidateColor(raster, "color analysis"); err != nil {
		return nil, err
	}

	rows, cols := raster.Rows(), raster.Cols()

	gray, err := arena.GetMat(rows, cols, gocv.MatTypeCV8UC1, "gray")
	if err != nil {
		return nil, fmt.Errorf("allocate gray: %w", err)
	}
	grayMat := gray.GetMat()
	if err := gocv.CvtColor(raster.GetMat(), &grayMat, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("gray conversion: %w", err)
	}

	hsv, err := arena.GetMat(rows, cols, gocv.MatTypeCV8UC3, "hsv")
	if err != nil {
		return nil, fmt.Errorf("allocate hsv: %w", err)
	}
	hsvMat := hsv.GetMat()
	if err := gocv.CvtColor(raster.GetMat(), &hsvMat, gocv.ColorBGRToHSV); err != nil {
		return nil, fmt.Errorf("HSV conversion: %w", err)
	}

	planes := gocv.Split(hsvMat)
	if len(planes) != 3 {
		for _, p := range planes {
			p.Close()
		}
		return nil, fmt.Errorf("HSV split produced %d planes, want 3", len(planes))
	}
	planes[0].Close()

	value, err := arena.Adopt(planes[2], "value")
	if err != nil {
		planes[1].Close()
		return nil, fmt.Errorf("adopt value plane: %w", err)
	}
	saturation, err := arena.Adopt(planes[1], "saturation")
	if err != nil {
		return nil, fmt.Errorf("adopt saturation plane: %w", err)
	}

	ch := &Channels{Gray: gray, Value: value, Saturation: saturation, hsv: hsv}
	if err := ch.validate(rows, cols); err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *Channels) validate(rows, cols int) error {
	for name, plane := range map[string]*safe.Mat{"gray": c.Gray, "value": c.Value, "saturation": c.Saturation} {
		if err := safe.ValidatePlane(plane, name); err != nil {
			return err
		}
		if plane.Rows() != rows || plane.Cols() != cols {
			return fmt.Errorf("%s plane is %dx%d, raster is %dx%d", name, plane.Cols(), plane.Rows(), cols, rows)
		}
	}
	return nil
}

func (c *Channels) Rows() int { return c.Gray.Rows() }
func (c *Channels) Cols() int { return c.Gray.Cols() }

// NearWhite returns a 0/255 mask of pixels with value >= minValue and
// saturation <= maxSaturation, i.e. bright low-chroma backdrop tones.
func (c *Channels) NearWhite(arena *memory.Arena, minValue, maxSaturation int, tag string) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(c.hsv, "near-white mask"); err != nil {
		return nil, err
	}

	mask, err := arena.GetMat(c.Rows(), c.Cols(), gocv.MatTypeCV8UC1, tag)
	if err != nil {
		return nil, err
	}
	dst := mask.GetMat()

	err = gocv.InRangeWithScalar(c.hsv.GetMat(),
		gocv.NewScalar(0, 0, float64(minValue), 0),
		gocv.NewScalar(255, float64(maxSaturation), 255, 0),
		&dst)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}

	if err := safe.ValidatePlane(mask, tag); err != nil {
		return nil, err
	}
	return mask, nil
}

// Close releases the planes early; the arena releases them otherwise.
func (c *Channels) Close() {
	for _, m := range []*safe.Mat{c.Gray, c.Value, c.Saturation, c.hsv} {
		if m != nil {
			m.Close()
		}
	}
}
