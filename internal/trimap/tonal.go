package trimap

import (
	"fmt"

	"backdrop-cutout/internal/analysis"
	"backdrop-cutout/internal/opencv/memory"
)

// TonalThreshold classifies every pixel on HSV value and saturation:
// bright low-chroma pixels are backdrop, slightly darker ones are shadow.
type TonalThreshold struct {
	SureValue      int
	SureSaturation int
	SoftValue      int
	SoftSaturation int
	BorderMargin   int
}

func (t *TonalThreshold) Name() string { return "tonal" }

func (t *TonalThreshold) Build(arena *memory.Arena, ch *analysis.Channels) (*Result, error) {
	if ch == nil {
		return nil, fmt.Errorf("tonal threshold: channels are nil")
	}
	if t.BorderMargin < 0 {
		return nil, fmt.Errorf("tonal threshold: negative border margin %d", t.BorderMargin)
	}

	sure, err := ch.NearWhite(arena, t.SureValue, t.SureSaturation, "sure_bg")
	if err != nil {
		return nil, fmt.Errorf("tonal threshold: %w", err)
	}
	defer arena.Recycle(sure)

	soft, err := ch.NearWhite(arena, t.SoftValue, t.SoftSaturation, "soft_bg")
	if err != nil {
		return nil, fmt.Errorf("tonal threshold: %w", err)
	}
	defer arena.Recycle(soft)

	sureBG, err := planeFromMat(sure)
	if err != nil {
		return nil, err
	}
	softBG, err := planeFromMat(soft)
	if err != nil {
		return nil, err
	}

	rows, cols := softBG.rows, softBG.cols
	labels := make([]byte, rows*cols)
	background := plane{rows: rows, cols: cols, data: make([]byte, rows*cols)}
	for i := range labels {
		switch {
		case sureBG.data[i] != 0:
			labels[i] = byte(CertainBG)
			background.data[i] = 255
		case softBG.data[i] != 0:
			labels[i] = byte(ProbableBG)
			background.data[i] = 255
		default:
			labels[i] = byte(ProbableFG)
		}
	}
	fillBorder(labels, rows, cols, t.BorderMargin, byte(CertainBG))
	fillBorder(background.data, rows, cols, t.BorderMargin, 255)

	return newResult(arena, labels, background)
}
