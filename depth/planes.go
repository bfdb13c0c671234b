package depth

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
	"github.com/edgescope/depthfusion/utils"
)

// PlaneFit is one planar region of the scene and its depth alignment.
type PlaneFit struct {
	// Equation is [0]x + [1]y + [2]z + [3] = 0 with a unit normal.
	Equation [4]float64
	Mask     *rimage.Mask

	Scale, Bias float64
	RMS         float64
	Inliers     int
	Fitted      bool
}

// Distance calculates the signed distance from the plane to the input point.
func (p *PlaneFit) Distance(pt r3.Vector) float64 {
	return p.Equation[0]*pt.X + p.Equation[1]*pt.Y + p.Equation[2]*pt.Z + p.Equation[3]
}

type depthPoint struct {
	x, y int
	pos  r3.Vector
}

// SegmentPlanes finds the dominant planes in a depth map via RANSAC,
// peeling off the biggest plane until what remains is smaller than
// minPoints. Each returned plane carries a pixel mask over the depth frame.
func SegmentPlanes(
	depthMm *rimage.FloatMap,
	intrinsics *transform.PinholeCameraIntrinsics,
	nIterations int,
	thresholdMm float64,
	minPoints int,
) []*PlaneFit {
	w, h := depthMm.Width(), depthMm.Height()
	pts := make([]depthPoint, 0, depthMm.ValidCount())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			z := float64(depthMm.GetXY(x, y))
			if z <= 0 {
				continue
			}
			px, py, pz := intrinsics.PixelToPoint(float64(x), float64(y), z)
			pts = append(pts, depthPoint{x: x, y: y, pos: r3.Vector{X: px, Y: -py, Z: pz}})
		}
	}

	r := rand.New(rand.NewSource(1))
	var planes []*PlaneFit
	for len(pts) > minPoints {
		plane, rest := segmentOnePlane(pts, r, nIterations, thresholdMm, w, h)
		if plane == nil || plane.Inliers < minPoints {
			break
		}
		planes = append(planes, plane)
		pts = rest
	}
	return planes
}

func segmentOnePlane(
	pts []depthPoint,
	r *rand.Rand,
	nIterations int,
	thresholdMm float64,
	w, h int,
) (*PlaneFit, []depthPoint) {
	if len(pts) <= 3 {
		return nil, pts
	}
	var bestEquation [4]float64
	bestInliers := 0
	for i := 0; i < nIterations; i++ {
		n1 := utils.SampleRandomIntRange(0, len(pts)-1, r)
		n2 := utils.SampleRandomIntRange(0, len(pts)-1, r)
		n3 := utils.SampleRandomIntRange(0, len(pts)-1, r)
		if n1 == n2 || n2 == n3 || n1 == n3 {
			continue
		}
		p1, p2, p3 := pts[n1].pos, pts[n2].pos, pts[n3].pos
		cross := p2.Sub(p1).Cross(p3.Sub(p1))
		if cross.Norm() < 1e-9 {
			continue
		}
		vec := cross.Normalize()
		d := -vec.Dot(p2)
		eq := [4]float64{vec.X, vec.Y, vec.Z, d}

		inliers := 0
		for _, pt := range pts {
			dist := eq[0]*pt.pos.X + eq[1]*pt.pos.Y + eq[2]*pt.pos.Z + eq[3]
			if math.Abs(dist) < thresholdMm {
				inliers++
			}
		}
		if inliers > bestInliers {
			bestEquation = eq
			bestInliers = inliers
		}
	}
	if bestInliers == 0 {
		return nil, pts
	}

	plane := &PlaneFit{Equation: bestEquation, Mask: rimage.NewMask(w, h), Inliers: bestInliers}
	rest := make([]depthPoint, 0, len(pts)-bestInliers)
	for _, pt := range pts {
		if math.Abs(plane.Distance(pt.pos)) < thresholdMm {
			plane.Mask.SetXY(pt.x, pt.y, true)
		} else {
			rest = append(rest, pt)
		}
	}
	return plane, rest
}

// CalibratePlanar segments the stereo depth into planar regions and fits
// each region separately, fusing every region's fit with the global one in
// proportion to its evidence. It falls back to the plain layered fit when
// no planes are found.
func (c *Calibrator) CalibratePlanar(
	stereoMm, monoMm, disp *rimage.FloatMap,
	intrinsics *transform.PinholeCameraIntrinsics,
) (*CalibrationResult, error) {
	samples, err := c.collectSamples(stereoMm, monoMm, disp)
	if err != nil {
		return nil, err
	}
	linear, err := c.fitLinear(samples)
	if err != nil {
		return nil, err
	}
	planes := SegmentPlanes(stereoMm, intrinsics, 2000, c.conf.InlierThresholdMm, c.conf.MinSamples)
	if len(planes) == 0 {
		return c.fitLayered(stereoMm, monoMm, samples, linear)
	}

	res := &CalibrationResult{
		Method:      Layered,
		Scale:       linear.Scale,
		Bias:        linear.Bias,
		RMS:         linear.RMS,
		InlierCount: linear.InlierCount,
		SampleCount: len(samples),
		Mask:        c.StrongConnectivityMask(stereoMm),
	}
	globalWeight := float64(linear.InlierCount) / (1 + linear.RMS/100)
	minPerPlane := utils.MaxInt(c.conf.MinSamples/5, 10)
	for _, plane := range planes {
		cell := make([]sample, 0, 256)
		for _, sm := range samples {
			if plane.Mask.GetXY(sm.x, sm.y) {
				cell = append(cell, sm)
			}
		}
		fit := PlaneFit{Equation: plane.Equation, Mask: plane.Mask, Scale: linear.Scale, Bias: linear.Bias}
		if len(cell) >= minPerPlane {
			if s, b, err := tikhonovWLS(cell, c.conf.LambdaScale, c.conf.LambdaBias); err == nil {
				rms := linearRMS(cell, s, b)
				inliers := 0
				for _, sm := range cell {
					if math.Abs(s*sm.mono+b-sm.stereo) <= c.conf.InlierThresholdMm {
						inliers++
					}
				}
				wl := float64(inliers) / (1 + rms/100)
				if wl+globalWeight > 0 {
					fit.Scale = (wl*s + globalWeight*linear.Scale) / (wl + globalWeight)
					fit.Bias = (wl*b + globalWeight*linear.Bias) / (wl + globalWeight)
					fit.RMS = rms
					fit.Inliers = inliers
					fit.Fitted = true
				}
			}
		}
		res.Planes = append(res.Planes, fit)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// planarValue applies the fit of the plane containing the pixel, if any.
func (r *CalibrationResult) planarValue(z float64, x, y int) (float64, bool) {
	for i := range r.Planes {
		p := &r.Planes[i]
		if p.Mask != nil && p.Mask.In(x, y) && p.Mask.GetXY(x, y) {
			return p.Scale*z + p.Bias, true
		}
	}
	return 0, false
}
