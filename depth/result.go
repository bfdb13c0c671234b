package depth

import (
	"image"
	"math"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// Method selects the model used to map mono depth onto the stereo scale.
type Method int

const (
	// Linear fits z' = scale*z + bias over the whole overlap.
	Linear Method = iota
	// Polynomial fits a quadratic correction z' = a*z^2 + b*z + c.
	Polynomial
	// Radial varies the linear scale with distance from the image center.
	Radial
	// GridBased fits an independent linear model per image cell and
	// interpolates between cells.
	GridBased
	// Layered segments the scene into depth layers and fits each layer
	// separately.
	Layered
	// Adaptive routes to Layered on flat scenes and to the curvature-aware
	// models otherwise.
	Adaptive
)

func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case Polynomial:
		return "polynomial"
	case Radial:
		return "radial"
	case GridBased:
		return "grid"
	case Layered:
		return "layered"
	case Adaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// GridCell is one spatial tile of a grid-based calibration.
type GridCell struct {
	Scale, Bias float64
	Samples     int
}

// CalibrationResult holds a fitted mono-to-stereo depth alignment. Scale and
// Bias are always populated; the per-method fields are only meaningful for
// their method.
type CalibrationResult struct {
	Method Method

	Scale float64
	Bias  float64

	// Polynomial coefficients, z' = Poly[0]*z^2 + Poly[1]*z + Poly[2].
	Poly [3]float64

	// Radial scale modulation, scale(r) = Scale * (1 + RadialK*r^2) with r
	// the normalized distance from Center.
	RadialK float64
	Center  image.Point
	NormR   float64

	// Grid of per-cell linear fits, row-major GridRows x GridCols over the
	// image the calibration was fitted on.
	Grid               []GridCell
	GridRows, GridCols int
	GridW, GridH       int

	// Per-depth-band or per-plane fits and the strong-connectivity mask,
	// set for Layered only.
	Layers []LayerFit
	Planes []PlaneFit
	Mask   *rimage.Mask

	RMS         float64
	InlierCount int
	SampleCount int
}

// Quality bounds; a fit outside these is treated as degenerate rather than
// applied to the depth stream.
const (
	minPlausibleScale = 0.5
	maxPlausibleScale = 2.0
	maxPlausibleBias  = 1000.0
	maxPlausibleRMS   = 20.0
)

// Validate rejects fits whose parameters fall outside the plausible range
// for this instrument.
func (r *CalibrationResult) Validate() error {
	if math.IsNaN(r.Scale) || math.IsNaN(r.Bias) {
		return NewFitDegenerateError("fit produced NaN parameters")
	}
	if r.Scale < minPlausibleScale || r.Scale > maxPlausibleScale {
		return NewFitDegenerateError("scale outside plausible range")
	}
	if math.Abs(r.Bias) > maxPlausibleBias {
		return NewFitDegenerateError("bias outside plausible range")
	}
	if r.RMS > maxPlausibleRMS {
		return NewFitDegenerateError("residual error too large")
	}
	return nil
}

// ApplyValue maps one mono depth value, at pixel (x, y), to the stereo scale.
func (r *CalibrationResult) ApplyValue(z float64, x, y int) float64 {
	switch r.Method {
	case Polynomial:
		return r.Poly[0]*z*z + r.Poly[1]*z + r.Poly[2]
	case Radial:
		dx := float64(x - r.Center.X)
		dy := float64(y - r.Center.Y)
		rn := 0.0
		if r.NormR > 0 {
			rn = math.Sqrt(dx*dx+dy*dy) / r.NormR
		}
		return r.Scale*(1+r.RadialK*rn*rn)*z + r.Bias
	case GridBased:
		s, b := r.gridAt(x, y)
		return s*z + b
	case Layered:
		if len(r.Planes) > 0 {
			if v, ok := r.planarValue(z, x, y); ok {
				return v
			}
		}
		return r.layeredValue(z)
	default:
		return r.Scale*z + r.Bias
	}
}

// Apply maps an entire mono depth map to the stereo scale. Invalid pixels
// stay invalid and outputs are clipped to the working depth range.
func (r *CalibrationResult) Apply(mono *rimage.FloatMap) *rimage.FloatMap {
	out := rimage.NewFloatMap(mono.Width(), mono.Height())
	utils.ParallelForEachPixel(image.Point{mono.Width(), mono.Height()}, func(x, y int) {
		z := float64(mono.GetXY(x, y))
		if z <= 0 {
			return
		}
		zc := r.ApplyValue(z, x, y)
		if zc <= MinDepthMm || zc > MaxDepthMm {
			return
		}
		out.SetXY(x, y, float32(zc))
	})
	return out
}

// gridAt bilinearly interpolates the four surrounding cell fits. Cells that
// never collected samples inherit the global fit.
func (r *CalibrationResult) gridAt(x, y int) (float64, float64) {
	if r.GridRows == 0 || r.GridCols == 0 {
		return r.Scale, r.Bias
	}
	cw := float64(r.GridW) / float64(r.GridCols)
	ch := float64(r.GridH) / float64(r.GridRows)
	// fractional cell coordinates, centered on cell midpoints
	fx := float64(x)/cw - 0.5
	fy := float64(y)/ch - 0.5
	c0 := utils.ClampInt(int(math.Floor(fx)), 0, r.GridCols-1)
	r0 := utils.ClampInt(int(math.Floor(fy)), 0, r.GridRows-1)
	c1 := utils.ClampInt(c0+1, 0, r.GridCols-1)
	r1 := utils.ClampInt(r0+1, 0, r.GridRows-1)
	tx := utils.ClampF64(fx-float64(c0), 0, 1)
	ty := utils.ClampF64(fy-float64(r0), 0, 1)

	cell := func(ri, ci int) GridCell {
		c := r.Grid[ri*r.GridCols+ci]
		if c.Samples == 0 {
			return GridCell{Scale: r.Scale, Bias: r.Bias}
		}
		return c
	}
	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }

	top := cell(r0, c0)
	topR := cell(r0, c1)
	bot := cell(r1, c0)
	botR := cell(r1, c1)
	s := lerp(lerp(top.Scale, topR.Scale, tx), lerp(bot.Scale, botR.Scale, tx), ty)
	b := lerp(lerp(top.Bias, topR.Bias, tx), lerp(bot.Bias, botR.Bias, tx), ty)
	return s, b
}
