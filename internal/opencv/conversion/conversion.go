package conversion

import (
	"fmt"
	"image"
	"image/color"

	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ImageToBGR converts a decoded Go image into an 8-bit BGR Mat owned by arena.
// Alpha, if any, is dropped; colour values are taken non-premultiplied.
func ImageToBGR(arena *memory.Arena, img image.Image) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if err := safe.ValidateDimensions(width, height, "image to Mat conversion"); err != nil {
		return nil, err
	}

	data := make([]byte, width*height*3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			data[i] = c.B
			data[i+1] = c.G
			data[i+2] = c.R
			i += 3
		}
	}

	return arena.FromBytes(height, width, gocv.MatTypeCV8UC3, data, "decoded")
}

// BGRAToNRGBA converts an 8-bit BGRA Mat into a non-premultiplied image so
// colour bytes survive encoding untouched.
func BGRAToNRGBA(src *safe.Mat) (*image.NRGBA, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	if src.Type() != gocv.MatTypeCV8UC4 {
		return nil, fmt.Errorf("BGRA conversion requires 4 channels, got %d", src.Channels())
	}

	data, err := src.Bytes()
	if err != nil {
		return nil, err
	}

	rows, cols := src.Rows(), src.Cols()
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+cols*4]
		for x := 0; x < cols; x++ {
			s := (y*cols + x) * 4
			row[x*4] = data[s+2]
			row[x*4+1] = data[s+1]
			row[x*4+2] = data[s]
			row[x*4+3] = data[s+3]
		}
	}

	return img, nil
}
