package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"backdrop-cutout/internal/opencv/conversion"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Loader decodes an image file into an 8-bit BGR raster.
type Loader struct {
	logger        Logger
	timingTracker TimingTracker
}

func NewLoader(logger Logger, timingTracker TimingTracker) *Loader {
	return &Loader{logger: logger, timingTracker: timingTracker}
}

// Load reads path into arena. Every failure wraps ErrDecode.
func (l *Loader) Load(ctx context.Context, arena *memory.Arena, path string) (*safe.Mat, error) {
	timed := l.timingTracker.StartTiming(ctx, "load")
	defer l.timingTracker.EndTiming(timed)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	l.logger.Debug("ImageLoader", "image data read", map[string]interface{}{
		"path":       path,
		"size_bytes": len(data),
	})

	return l.LoadFromBytes(arena, data, formatHint(path))
}

// LoadFromBytes decodes with OpenCV first and falls back to the Go
// decoders for formats the OpenCV build lacks.
func (l *Loader) LoadFromBytes(arena *memory.Arena, data []byte, format string) (*safe.Mat, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrDecode)
	}

	mat, cvErr := gocv.IMDecode(data, gocv.IMReadColor)
	if cvErr == nil && !mat.Empty() {
		raster, err := arena.Adopt(mat, "raster")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if err := safe.ValidateColor(raster, "decode"); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}

		l.logger.Debug("ImageLoader", "decoded with OpenCV", map[string]interface{}{
			"width":  raster.Cols(),
			"height": raster.Rows(),
			"format": format,
		})
		return raster, nil
	}
	if cvErr == nil {
		mat.Close()
	}

	img, stdFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, format, err)
	}

	raster, err := conversion.ImageToBGR(arena, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	l.logger.Debug("ImageLoader", "decoded with Go fallback", map[string]interface{}{
		"width":  raster.Cols(),
		"height": raster.Rows(),
		"format": stdFormat,
	})
	return raster, nil
}

func formatHint(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".tiff", ".tif":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	case "":
		return "unknown"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
