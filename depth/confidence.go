package depth

import (
	"image"
	"math"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// ConfidenceParams tunes the per-pixel stereo confidence weights. Each scale
// controls how fast its term decays; the defaults were chosen on the
// instrument's 60-600mm working range.
type ConfidenceParams struct {
	DispScale  float64 // disparity magnitude scale, px
	DepthScale float64 // depth decay scale, mm
	GradScale  float64 // depth gradient decay scale, mm/px
}

// DefaultConfidenceParams returns the production confidence weights.
func DefaultConfidenceParams() ConfidenceParams {
	return ConfidenceParams{
		DispScale:  32.0,
		DepthScale: 2000.0,
		GradScale:  50.0,
	}
}

// BuildConfidence scores each stereo depth pixel in [0,1]. Confidence is the
// product of three weights: larger disparities are more reliable, nearer
// surfaces are more reliable, and smooth regions are more reliable than
// depth discontinuities. Pixels with no stereo depth score 0.
func BuildConfidence(disp, depthMm *rimage.FloatMap, p ConfidenceParams) *rimage.FloatMap {
	w, h := depthMm.Width(), depthMm.Height()
	grad := rimage.SobelGradientMagnitude(depthMm)
	conf := rimage.NewFloatMap(w, h)
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		z := float64(depthMm.GetXY(x, y))
		d := float64(disp.GetXY(x, y))
		if z <= 0 || d <= 0 {
			return
		}
		wDisp := utils.ClampF64(d/p.DispScale, 0.1, 1.0)
		wDepth := math.Exp(-z / p.DepthScale)
		wGrad := math.Exp(-float64(grad.GetXY(x, y)) / p.GradScale)
		conf.SetXY(x, y, float32(wDisp*wDepth*wGrad))
	})
	return conf
}
