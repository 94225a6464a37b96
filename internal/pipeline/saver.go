package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"backdrop-cutout/internal/trimap"
)

// trimap grey levels for debug dumps, indexed by label code
var labelGrey = [4]uint8{
	trimap.CertainBG:  0,
	trimap.CertainFG:  255,
	trimap.ProbableBG: 85,
	trimap.ProbableFG: 170,
}

// Saver writes PNG files atomically: the image is encoded to a temporary
// file beside the target and renamed into place, so an output path only
// ever holds a complete image.
type Saver struct {
	logger        Logger
	timingTracker TimingTracker
	encoder       *png.Encoder
}

func NewSaver(logger Logger, timingTracker TimingTracker) *Saver {
	return &Saver{
		logger:        logger,
		timingTracker: timingTracker,
		encoder:       &png.Encoder{CompressionLevel: png.DefaultCompression},
	}
}

// Save writes img to path. Every failure wraps ErrWrite.
func (s *Saver) Save(ctx context.Context, path string, img image.Image) error {
	timed := s.timingTracker.StartTiming(ctx, "save")
	defer s.timingTracker.EndTiming(timed)

	if img == nil {
		return fmt.Errorf("%w: no image to save", ErrWrite)
	}

	if err := s.writeAtomic(path, img); err != nil {
		s.logger.Error("ImageSaver", err, map[string]interface{}{
			"path": path,
		})
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.logger.Debug("ImageSaver", "image saved", map[string]interface{}{
		"path":   path,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})
	return nil
}

// SaveTrimap writes a grey-level visualisation of labels to path.
func (s *Saver) SaveTrimap(ctx context.Context, path string, labels []byte, width, height int) error {
	if len(labels) != width*height {
		return fmt.Errorf("%w: %d labels for %dx%d trimap", ErrWrite, len(labels), width, height)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width]
		for x := range row {
			if l := labels[y*width+x]; int(l) < len(labelGrey) {
				row[x] = labelGrey[l]
			}
		}
	}

	return s.Save(ctx, path, img)
}

func (s *Saver) writeAtomic(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if err := s.encoder.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	committed = true
	return nil
}
