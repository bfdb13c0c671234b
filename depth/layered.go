package depth

import (
	"math"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// layerBoundariesMm partitions the working range into depth bands. Bands
// grow roughly geometrically because both depth sources lose precision
// with distance.
var layerBoundariesMm = []float64{
	0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120,
	140, 170, 210, 260, 320, 400, 550, 750, 1000, 1500, 2500, 5000, 10000,
}

// LayerFit is one depth band's linear alignment.
type LayerFit struct {
	MinDepthMm, MaxDepthMm float64
	Scale, Bias            float64
	RMS                    float64
	Inliers                int
	// Weight is the fusion weight this layer earned against the global
	// fit: Inliers/(1+RMS/100), plus double the merged cavity weight for
	// bands covered by a deep cavity.
	Weight float64
	Fitted bool
}

// StrongConnectivityMask marks near-range stereo pixels belonging to large
// connected surfaces. Calibration trusts these regions most: they are close
// enough for stereo to be accurate and big enough to be real structure
// rather than speckle.
func (c *Calibrator) StrongConnectivityMask(stereoMm *rimage.FloatMap) *rimage.Mask {
	w, h := stereoMm.Width(), stereoMm.Height()
	near := rimage.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			z := stereoMm.GetXY(x, y)
			if z > 0 && float64(z) <= c.conf.StrongConnectMaxDepthMm {
				near.SetXY(x, y, true)
			}
		}
	}
	out := rimage.NewMask(w, h)
	for _, comp := range near.ConnectedComponents() {
		if comp.Area < c.conf.StrongConnectMinArea {
			break
		}
		for _, p := range comp.Pixels {
			out.SetXY(p.X, p.Y, true)
		}
	}
	return out
}

// holeMask marks deep cavities: connected regions of valid stereo beyond
// HoleMinDepthMm, such as the inside of a bore or recess. Small gaps are
// closed morphologically first so only genuine cavities count.
func (c *Calibrator) holeMask(stereoMm *rimage.FloatMap) *rimage.Mask {
	w, h := stereoMm.Width(), stereoMm.Height()
	raw := rimage.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !stereoMm.IsValidXY(x, y) {
				continue
			}
			if float64(stereoMm.GetXY(x, y)) > c.conf.HoleMinDepthMm {
				raw.SetXY(x, y, true)
			}
		}
	}
	closed := raw.Close(1)
	out := rimage.NewMask(w, h)
	for _, comp := range closed.ConnectedComponents() {
		if comp.Area < c.conf.HoleMinArea {
			break
		}
		for _, p := range comp.Pixels {
			out.SetXY(p.X, p.Y, true)
		}
	}
	return out
}

// fitHoleRegions fits each deep cavity on its own and merges the per-region
// fits by their median scale and bias.
func (c *Calibrator) fitHoleRegions(holes *rimage.Mask, samples []sample, minPerRegion int) (float64, float64, float64, bool) {
	var scales, biases []float64
	var weight float64
	for _, comp := range holes.ConnectedComponents() {
		if comp.Area < c.conf.HoleMinArea {
			break
		}
		m := comp.MaskOf(holes.Width(), holes.Height())
		var cell []sample
		for _, sm := range samples {
			if m.GetXY(sm.x, sm.y) {
				cell = append(cell, sm)
			}
		}
		if len(cell) < minPerRegion {
			continue
		}
		s, b, err := tikhonovWLS(cell, c.conf.LambdaScale, c.conf.LambdaBias)
		if err != nil {
			continue
		}
		rms := linearRMS(cell, s, b)
		inliers := 0
		for _, sm := range cell {
			if math.Abs(s*sm.mono+b-sm.stereo) <= c.conf.InlierThresholdMm {
				inliers++
			}
		}
		scales = append(scales, s)
		biases = append(biases, b)
		weight += float64(inliers) / (1 + rms/100)
	}
	if len(scales) == 0 {
		return 0, 0, 0, false
	}
	return utils.Median(scales...), utils.Median(biases...), weight, true
}

// fitLayered fits one linear model per depth band, then fuses each band
// with the global fit in proportion to the band's evidence. Deep cavities
// get their own merged fit which joins the fusion at double weight.
func (c *Calibrator) fitLayered(
	stereoMm, monoMm *rimage.FloatMap,
	samples []sample,
	linear *CalibrationResult,
) (*CalibrationResult, error) {
	mask := c.StrongConnectivityMask(stereoMm)
	holes := c.holeMask(stereoMm)
	minPerLayer := utils.MaxInt(c.conf.MinSamples/5, 10)
	holeScale, holeBias, holeWeight, holeFitted := c.fitHoleRegions(holes, samples, minPerLayer)

	// prefer samples on strongly connected structure when there are
	// enough of them
	masked := make([]sample, 0, len(samples))
	for _, sm := range samples {
		if mask.GetXY(sm.x, sm.y) {
			masked = append(masked, sm)
		}
	}
	if len(masked) >= c.conf.MinSamples {
		samples = masked
	}

	holeLayer := make([]bool, len(layerBoundariesMm)-1)
	for y := 0; y < stereoMm.Height(); y++ {
		for x := 0; x < stereoMm.Width(); x++ {
			if !holes.GetXY(x, y) {
				continue
			}
			if li := layerIndex(float64(stereoMm.GetXY(x, y))); li >= 0 {
				holeLayer[li] = true
			}
		}
	}

	byLayer := make([][]sample, len(layerBoundariesMm)-1)
	for _, sm := range samples {
		if li := layerIndex(sm.mono); li >= 0 {
			byLayer[li] = append(byLayer[li], sm)
		}
	}

	res := &CalibrationResult{
		Method:      Layered,
		Scale:       linear.Scale,
		Bias:        linear.Bias,
		RMS:         linear.RMS,
		InlierCount: linear.InlierCount,
		SampleCount: len(samples),
		Mask:        mask,
		Layers:      make([]LayerFit, len(layerBoundariesMm)-1),
	}
	globalWeight := float64(linear.InlierCount) / (1 + linear.RMS/100)
	for li := range res.Layers {
		layer := &res.Layers[li]
		layer.MinDepthMm = layerBoundariesMm[li]
		layer.MaxDepthMm = layerBoundariesMm[li+1]
		layer.Scale = linear.Scale
		layer.Bias = linear.Bias

		var s, b, rms, wl float64
		var inliers int
		if cell := byLayer[li]; len(cell) >= minPerLayer {
			if s0, b0, err := tikhonovWLS(cell, c.conf.LambdaScale, c.conf.LambdaBias); err == nil {
				s, b = s0, b0
				rms = linearRMS(cell, s, b)
				for _, sm := range cell {
					if math.Abs(s*sm.mono+b-sm.stereo) <= c.conf.InlierThresholdMm {
						inliers++
					}
				}
				wl = float64(inliers) / (1 + rms/100)
			}
		}

		// the merged cavity fit outvotes the band fit two to one
		var wh float64
		if holeLayer[li] && holeFitted {
			wh = 2 * holeWeight
		}
		if wl+wh <= 0 {
			continue
		}
		wg := globalWeight
		total := wl + wh + wg
		layer.Scale = (wl*s + wh*holeScale + wg*linear.Scale) / total
		layer.Bias = (wl*b + wh*holeBias + wg*linear.Bias) / total
		layer.RMS = rms
		layer.Inliers = inliers
		layer.Weight = wl + wh
		layer.Fitted = true
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func layerIndex(z float64) int {
	for i := 0; i < len(layerBoundariesMm)-1; i++ {
		if z >= layerBoundariesMm[i] && z < layerBoundariesMm[i+1] {
			return i
		}
	}
	return -1
}

// layeredValue applies the band containing z, interpolating toward the
// neighboring band near boundaries so the output has no depth seams.
func (r *CalibrationResult) layeredValue(z float64) float64 {
	li := layerIndex(z)
	if li < 0 || len(r.Layers) == 0 {
		return r.Scale*z + r.Bias
	}
	cur := r.Layers[li]
	mid := (cur.MinDepthMm + cur.MaxDepthMm) / 2
	var other LayerFit
	var t float64
	if z < mid && li > 0 {
		other = r.Layers[li-1]
		t = (mid - z) / (mid - other.midDepth())
	} else if z >= mid && li < len(r.Layers)-1 {
		other = r.Layers[li+1]
		t = (z - mid) / (other.midDepth() - mid)
	} else {
		return cur.Scale*z + cur.Bias
	}
	t = math.Min(math.Max(t/2, 0), 0.5)
	s := cur.Scale*(1-t) + other.Scale*t
	b := cur.Bias*(1-t) + other.Bias*t
	return s*z + b
}

func (l LayerFit) midDepth() float64 {
	return (l.MinDepthMm + l.MaxDepthMm) / 2
}
