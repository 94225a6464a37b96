package trimap

import (
	"fmt"

	"backdrop-cutout/internal/analysis"
	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
)

// Result is the shared output of every Strategy.
type Result struct {
	Trimap *Trimap

	// Background is the 0/255 base background the strategy detected,
	// border band included.
	Background *safe.Mat

	// Expanded is Background grown by the refiner; nil before refinement.
	Expanded *safe.Mat
}

// Strategy produces an initial Trimap from the channel maps of one image.
type Strategy interface {
	Name() string
	Build(arena *memory.Arena, ch *analysis.Channels) (*Result, error)
}

// NewStrategy returns the Strategy named by cfg.Strategy.
func NewStrategy(cfg *config.Config) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyFloodFill:
		return &BorderFloodFill{
			Tolerance:    cfg.Trimap.WhiteTolerance,
			BorderMargin: cfg.Trimap.BorderMargin,
		}, nil
	case config.StrategyTonal:
		return &TonalThreshold{
			SureValue:      cfg.Trimap.SureBGValue,
			SureSaturation: cfg.Trimap.SureBGSaturation,
			SoftValue:      cfg.Trimap.SoftBGValue,
			SoftSaturation: cfg.Trimap.SoftBGSaturation,
			BorderMargin:   cfg.Trimap.BorderMargin,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStrategy, cfg.Strategy)
	}
}

func newResult(arena *memory.Arena, labels []byte, background plane) (*Result, error) {
	tm, err := fromBytes(arena, background.rows, background.cols, labels)
	if err != nil {
		return nil, err
	}
	bg, err := background.toMat(arena, "background")
	if err != nil {
		return nil, err
	}
	return &Result{Trimap: tm, Background: bg}, nil
}
