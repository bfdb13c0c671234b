package depth

import (
	"context"
	"image"
	"math"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// FuseParams tunes the mono-smooth-stereo blend.
type FuseParams struct {
	// Bilateral smoothing applied to the calibrated mono depth before
	// blending.
	BilateralD          int
	BilateralSigmaSpace float64
	BilateralSigmaRange float64

	// Gamma shapes the confidence into a blend factor, alpha = conf^gamma.
	Gamma float64
	// ConfThreshold gates stereo injection; below it the fused pixel is
	// pure mono.
	ConfThreshold float64

	// BlockRefine fits a per-block linear relation from mono to stereo and
	// replaces stereo pixels that disagree with it, suppressing local
	// stereo outliers before blending.
	BlockRefine     bool
	BlockSize       int
	BlockMinPixels  int
	BlockResidualMm float64
}

// DefaultFuseParams returns the production fusion settings.
func DefaultFuseParams() FuseParams {
	return FuseParams{
		BilateralD:          5,
		BilateralSigmaSpace: 7.0,
		BilateralSigmaRange: 50.0,
		Gamma:               1.0,
		ConfThreshold:       0.3,
		BlockRefine:         false,
		BlockSize:           32,
		BlockMinPixels:      24,
		BlockResidualMm:     40.0,
	}
}

// Fuse blends calibrated mono depth with stereo depth. The mono map
// provides smooth, hole-free coverage; high-confidence stereo pixels are
// injected on top of it so metric accuracy wins wherever stereo can be
// trusted.
func Fuse(stereoMm, monoMm, conf *rimage.FloatMap, p FuseParams) *rimage.FloatMap {
	w, h := monoMm.Width(), monoMm.Height()
	stereo := stereoMm
	if p.BlockRefine {
		stereo = blockRefine(stereoMm, monoMm, conf, p)
	}
	mono := monoMm
	// low-frequency components of both sources; the stereo residual keeps
	// the fine detail
	lMono := rimage.BilateralFloatMap(mono, p.BilateralD, p.BilateralSigmaSpace, p.BilateralSigmaRange)
	zBase := rimage.BilateralFloatMap(stereo, p.BilateralD, p.BilateralSigmaSpace, p.BilateralSigmaRange)
	out := rimage.NewFloatMap(w, h)
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		zm := lMono.GetXY(x, y)
		zs := stereo.GetXY(x, y)
		zb := zBase.GetXY(x, y)
		cf := float64(conf.GetXY(x, y))
		var z float64
		switch {
		case zb > 0 && zm > 0:
			alpha := math.Pow(cf, p.Gamma)
			z = alpha*float64(zb) + (1-alpha)*float64(zm)
		case zm > 0:
			z = float64(zm)
		case zb > 0:
			z = float64(zb)
		default:
			return
		}
		if zs > 0 && zb > 0 && cf > p.ConfThreshold {
			z += float64(zs - zb)
		}
		if z > 0 {
			out.SetXY(x, y, float32(z))
		}
	})
	return out
}

// blockRefine fits a per-block linear relation from mono to stereo over
// confident pixels and replaces stereo pixels whose residual against the
// local fit is too large with the fitted prediction.
func blockRefine(stereoMm, monoMm, conf *rimage.FloatMap, p FuseParams) *rimage.FloatMap {
	w, h := monoMm.Width(), monoMm.Height()
	bs := p.BlockSize
	if bs <= 0 {
		bs = 32
	}
	thresh := p.BlockResidualMm
	if thresh <= 0 {
		thresh = 40.0
	}
	out := stereoMm.Clone()
	refineBlock := func(bx, by int) {
		y1 := utils.MinInt(by+bs, h)
		x1 := utils.MinInt(bx+bs, w)
		var sx, sy, sxx, sxy float64
		n := 0
		for y := by; y < y1; y++ {
			for x := bx; x < x1; x++ {
				zs := float64(stereoMm.GetXY(x, y))
				zm := float64(monoMm.GetXY(x, y))
				if zs <= 0 || zm <= 0 || float64(conf.GetXY(x, y)) <= p.ConfThreshold {
					continue
				}
				sx += zm
				sy += zs
				sxx += zm * zm
				sxy += zm * zs
				n++
			}
		}
		if n < p.BlockMinPixels {
			return
		}
		det := float64(n)*sxx - sx*sx
		if math.Abs(det) < 1e-9 {
			return
		}
		s := (float64(n)*sxy - sx*sy) / det
		b := (sy - s*sx) / float64(n)
		for y := by; y < y1; y++ {
			for x := bx; x < x1; x++ {
				zs := float64(stereoMm.GetXY(x, y))
				zm := float64(monoMm.GetXY(x, y))
				if zs <= 0 || zm <= 0 {
					continue
				}
				pred := s*zm + b
				if math.Abs(zs-pred) > thresh {
					if pred > 0 {
						out.SetXY(x, y, float32(pred))
					} else {
						out.SetXY(x, y, 0)
					}
				}
			}
		}
	}

	// blocks touch disjoint pixels of out, so they refine in parallel
	blockCols := (w + bs - 1) / bs
	blockRows := (h + bs - 1) / bs
	//nolint:errcheck
	utils.GroupWorkParallel(
		context.Background(),
		blockCols*blockRows,
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				refineBlock((workNum%blockCols)*bs, (workNum/blockCols)*bs)
			}, nil
		},
	)
	return out
}
