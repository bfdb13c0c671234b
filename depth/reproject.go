// Package depth converts disparity to metric depth and aligns, scores and
// fuses the stereo and monocular depth sources.
package depth

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/edgescope/depthfusion/rimage"
)

// Depth range the instrument works in; values outside the clip range are
// treated as reconstruction noise and zeroed.
const (
	MinDepthMm = 0.0
	MaxDepthMm = 10000.0
)

// ErrDegenerateDisparity is returned when a disparity map holds no valid pixels.
var ErrDegenerateDisparity = errors.New("disparity map has no valid pixels")

// QParams is the part of the reprojection matrix Q the depth formula needs.
type QParams struct {
	Fx   float64 // focal length in pixels, Q[2][3]
	InvB float64 // 1/baseline with sign, Q[3][2]
	Cx   float64 // -Q[0][3]
	Cy   float64 // -Q[1][3]
	W0   float64 // Q[3][3], zero under zero-disparity rectification
}

// QParamsFromMatrix accepts a 4x4 or 3x4 reprojection matrix. A 3x4 matrix
// carries no baseline row; the caller must supply it some other way.
func QParamsFromMatrix(q *mat.Dense) (*QParams, error) {
	if q == nil {
		return nil, errors.New("reprojection matrix is nil")
	}
	rows, cols := q.Dims()
	if cols != 4 || (rows != 3 && rows != 4) {
		return nil, errors.Errorf("reprojection matrix must be 3x4 or 4x4, got %dx%d", rows, cols)
	}
	p := &QParams{
		Fx: q.At(2, 3),
		Cx: -q.At(0, 3),
		Cy: -q.At(1, 3),
	}
	if rows == 4 {
		p.InvB = q.At(3, 2)
		p.W0 = q.At(3, 3)
	}
	if p.Fx <= 0 {
		return nil, errors.Errorf("reprojection matrix has non-positive focal %f", p.Fx)
	}
	if rows == 4 && p.InvB == 0 {
		return nil, errors.New("reprojection matrix has zero baseline row")
	}
	return p, nil
}

// NewQParams builds reprojection parameters directly from a baseline and
// focal length, used when frames arrive already rectified.
func NewQParams(baselineMm, fxPx, cx, cy float64) (*QParams, error) {
	if baselineMm <= 0 || fxPx <= 0 {
		return nil, errors.Errorf("baseline %f and focal %f must be positive", baselineMm, fxPx)
	}
	return &QParams{Fx: fxPx, InvB: -1 / baselineMm, Cx: cx, Cy: cy}, nil
}

// BaselineMm returns the absolute baseline in mm.
func (p *QParams) BaselineMm() float64 {
	if p.InvB == 0 {
		return 0
	}
	return math.Abs(1 / p.InvB)
}

// FromDisparity converts a sub-pixel disparity map into metric depth (mm)
// via Z = fx * B / d. Invalid disparities stay 0, and depths clipped to
// [MinDepthMm, MaxDepthMm] are zeroed.
func FromDisparity(disp *rimage.FloatMap, q *QParams) (*rimage.FloatMap, error) {
	if disp == nil {
		return nil, errors.New("disparity map is nil")
	}
	if q == nil || q.InvB == 0 {
		return nil, errors.New("reprojection parameters missing a baseline")
	}
	out := rimage.NewFloatMap(disp.Width(), disp.Height())
	fxB := q.Fx * q.BaselineMm()
	valid := 0
	for y := 0; y < disp.Height(); y++ {
		for x := 0; x < disp.Width(); x++ {
			d := float64(disp.GetXY(x, y))
			if d <= 0 {
				continue
			}
			w := math.Abs(q.InvB)*d + math.Abs(q.W0)
			if w <= 0 {
				continue
			}
			z := fxB * math.Abs(q.InvB) / w
			if z <= MinDepthMm || z > MaxDepthMm {
				continue
			}
			out.SetXY(x, y, float32(z))
			valid++
		}
	}
	if valid == 0 {
		return out, ErrDegenerateDisparity
	}
	return out, nil
}

// Filter removes isolated depth spikes: pixels whose value strays from the
// local 3x3 median by more than 5% of the median are dropped. mask, when
// not nil, restricts the output to its set pixels.
func Filter(depthMm *rimage.FloatMap, mask *rimage.Mask) *rimage.FloatMap {
	med := rimage.MedianFilterFloatMap(depthMm, 1)
	out := rimage.NewFloatMap(depthMm.Width(), depthMm.Height())
	for y := 0; y < depthMm.Height(); y++ {
		for x := 0; x < depthMm.Width(); x++ {
			if !depthMm.IsValidXY(x, y) {
				continue
			}
			if mask != nil && !mask.GetXY(x, y) {
				continue
			}
			v := depthMm.GetXY(x, y)
			m := med.GetXY(x, y)
			if m > 0 && math.Abs(float64(v-m)) > 0.05*float64(m) {
				continue
			}
			out.SetXY(x, y, v)
		}
	}
	return out
}

// ValidMask marks pixels that have both a positive disparity and a sane
// positive depth, the joint validity definition used before calibration.
func ValidMask(disp, depthMm *rimage.FloatMap) *rimage.Mask {
	mask := rimage.NewMask(depthMm.Width(), depthMm.Height())
	for y := 0; y < depthMm.Height(); y++ {
		for x := 0; x < depthMm.Width(); x++ {
			d := disp.GetXY(x, y)
			z := depthMm.GetXY(x, y)
			if d > 0 && z > 0 && z < 1e7 {
				mask.SetXY(x, y, true)
			}
		}
	}
	return mask
}
