// Package alpha turns the solver's binary mask into the final matte.
//
// Stages run in a fixed order: small-object opening, Gaussian edge
// softening, residual-white suppression and shadow exclusion. The last two
// only ever force alpha to zero, so they cannot reintroduce soft values.
package alpha

import (
	"fmt"
	"image"

	"backdrop-cutout/internal/analysis"
	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
	"backdrop-cutout/internal/segment"
	"backdrop-cutout/internal/trimap"

	"gocv.io/x/gocv"
)

type Processor struct {
	OpeningKernel      int
	BlurSigma          float64
	ResidualCutoff     int
	ResidualValue      int
	ResidualSaturation int
	ShadowExclusion    bool
}

func New(cfg config.Alpha) *Processor {
	return &Processor{
		OpeningKernel:      cfg.OpeningKernel,
		BlurSigma:          cfg.BlurSigma,
		ResidualCutoff:     cfg.ResidualCutoff,
		ResidualValue:      cfg.ResidualValue,
		ResidualSaturation: cfg.ResidualSaturation,
		ShadowExclusion:    cfg.ShadowExclusion,
	}
}

// Process returns the CV_8UC1 alpha plane for mask.
func (p *Processor) Process(arena *memory.Arena, mask *segment.Mask, ch *analysis.Channels, res *trimap.Result) (*safe.Mat, error) {
	if mask == nil {
		return nil, fmt.Errorf("alpha: mask is nil")
	}
	if err := safe.ValidatePlane(mask.Mat(), "alpha"); err != nil {
		return nil, err
	}
	rows, cols := mask.Mat().Rows(), mask.Mat().Cols()

	alpha, err := arena.Clone(mask.Mat(), "alpha")
	if err != nil {
		return nil, fmt.Errorf("alpha: %w", err)
	}

	if alpha, err = p.open(arena, alpha); err != nil {
		return nil, err
	}
	if alpha, err = p.blur(arena, alpha); err != nil {
		return nil, err
	}

	data, err := alpha.Bytes()
	if err != nil {
		return nil, err
	}
	arena.Recycle(alpha)

	if err := p.suppressResidual(arena, data, ch); err != nil {
		return nil, err
	}
	if err := p.excludeShadow(data, res); err != nil {
		return nil, err
	}

	return arena.FromBytes(rows, cols, gocv.MatTypeCV8UC1, data, "alpha")
}

// transform runs op from src into a fresh Mat and recycles src.
func transform(arena *memory.Arena, src *safe.Mat, tag string, op func(src gocv.Mat, dst *gocv.Mat) error) (*safe.Mat, error) {
	dst, err := arena.GetMat(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1, tag)
	if err != nil {
		return nil, err
	}

	dstMat := dst.GetMat()
	err = op(src.GetMat(), &dstMat)
	arena.Recycle(src)
	if err != nil {
		arena.Recycle(dst)
		return nil, fmt.Errorf("%s: %w", tag, err)
	}

	if err := safe.ValidatePlane(dst, tag); err != nil {
		return nil, err
	}
	return dst, nil
}

func (p *Processor) open(arena *memory.Arena, alpha *safe.Mat) (*safe.Mat, error) {
	if p.OpeningKernel <= 0 {
		return alpha, nil
	}

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: p.OpeningKernel, Y: p.OpeningKernel})
	defer kernel.Close()

	return transform(arena, alpha, "alpha_open", func(src gocv.Mat, dst *gocv.Mat) error {
		return gocv.MorphologyEx(src, dst, gocv.MorphOpen, kernel)
	})
}

// blur is the only stage that produces intermediate alpha values.
func (p *Processor) blur(arena *memory.Arena, alpha *safe.Mat) (*safe.Mat, error) {
	if p.BlurSigma <= 0 {
		return alpha, nil
	}

	return transform(arena, alpha, "alpha_blur", func(src gocv.Mat, dst *gocv.Mat) error {
		return gocv.GaussianBlur(src, dst, image.Point{}, p.BlurSigma, p.BlurSigma, gocv.BorderDefault)
	})
}

// suppressResidual clears near-white pixels the matte only partly kept.
func (p *Processor) suppressResidual(arena *memory.Arena, alpha []byte, ch *analysis.Channels) error {
	if p.ResidualCutoff <= 0 {
		return nil
	}
	if ch == nil {
		return fmt.Errorf("alpha: residual suppression needs channel maps")
	}

	nearWhite, err := ch.NearWhite(arena, p.ResidualValue, p.ResidualSaturation, "residual")
	if err != nil {
		return fmt.Errorf("alpha: %w", err)
	}
	defer arena.Recycle(nearWhite)

	white, err := nearWhite.Bytes()
	if err != nil {
		return err
	}
	if len(white) != len(alpha) {
		return fmt.Errorf("alpha: channel maps hold %d pixels, mask %d", len(white), len(alpha))
	}

	for i, w := range white {
		if w != 0 && int(alpha[i]) < p.ResidualCutoff {
			alpha[i] = 0
		}
	}
	return nil
}

// excludeShadow clears everything inside the expanded base background.
func (p *Processor) excludeShadow(alpha []byte, res *trimap.Result) error {
	if !p.ShadowExclusion {
		return nil
	}
	if res == nil {
		return fmt.Errorf("alpha: shadow exclusion needs the trimap result")
	}

	region := res.Expanded
	if region == nil {
		region = res.Background
	}
	if err := safe.ValidatePlane(region, "shadow exclusion"); err != nil {
		return err
	}

	bg, err := region.Bytes()
	if err != nil {
		return err
	}
	if len(bg) != len(alpha) {
		return fmt.Errorf("alpha: background mask holds %d pixels, mask %d", len(bg), len(alpha))
	}

	for i, v := range bg {
		if v != 0 {
			alpha[i] = 0
		}
	}
	return nil
}
