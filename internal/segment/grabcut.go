package segment

import (
	"fmt"
	"image"
	"runtime"

	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
	"backdrop-cutout/internal/trimap"

	"gocv.io/x/gocv"
)

// rngSeed fixes the k-means initialisation of the colour models.
const rngSeed = 0x5eed

var grabCut = gocv.GrabCut

// GrabCut runs OpenCV's iterative graph cut initialised from the trimap.
// Colour models start empty for every image.
type GrabCut struct{}

func (GrabCut) Name() string { return "grabcut" }

func (GrabCut) Segment(arena *memory.Arena, raster *safe.Mat, labels *trimap.Trimap, iterations int) (*Mask, error) {
	counts, empty, err := checkLabels(raster, labels)
	if err != nil {
		return nil, err
	}
	if empty {
		return emptyMask(arena, raster.Rows(), raster.Cols())
	}
	if iterations < 1 {
		return nil, fmt.Errorf("grabcut: iterations must be positive, got %d", iterations)
	}
	if counts.Background() < MinSamples || counts.Foreground() < MinSamples {
		return nil, fmt.Errorf("%w: grabcut needs %d samples per side, have %d background and %d foreground",
			ErrSegmentation, MinSamples, counts.Background(), counts.Foreground())
	}

	// GrabCut rewrites its mask, so it works on a copy of the labels
	work, err := arena.Clone(labels.Mat(), "grabcut_mask")
	if err != nil {
		return nil, fmt.Errorf("grabcut: %w", err)
	}
	defer work.Close()

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	mask := work.GetMat()

	// OpenCV's default RNG is per OS thread
	runtime.LockOSThread()
	gocv.SetRNGSeed(rngSeed)
	err = grabCut(raster.GetMat(), &mask, image.Rectangle{}, &bgdModel, &fgdModel, iterations, gocv.GCInitWithMask)
	runtime.UnlockOSThread()
	if err != nil {
		return nil, fmt.Errorf("%w: grabcut: %v", ErrSegmentation, err)
	}

	if err := safe.ValidatePlane(work, "grabcut result"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentation, err)
	}
	if err := safe.ValidateSameSize(raster, work, "grabcut result"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentation, err)
	}

	data, err := work.Bytes()
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		if !trimap.Label(v).Valid() {
			return nil, fmt.Errorf("%w: grabcut produced label %d at index %d", ErrSegmentation, v, i)
		}
	}

	return collapse(arena, work.Rows(), work.Cols(), data)
}
