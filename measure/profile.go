package measure

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// ProfileSample is one point of a surface profile: distance along the cut
// line and height relative to the fitted baseline, both in mm.
type ProfileSample struct {
	DistanceMm float64
	HeightMm   float64
}

// Profile is a cross-section of the surface between two clicked pixels.
type Profile struct {
	Samples []ProfileSample
	// Baseline coefficients, depth = Slope*distance + Intercept.
	Slope, Intercept float64
}

// profileGapSearch is how far off the exact line a valid depth is searched
// for when the line crosses a small hole.
const profileGapSearch = 2

// ExtractProfile walks the depth image between two pixels, collects valid
// depths, fits a linear baseline of depth against along-line distance, and
// reports each sample's deviation from that baseline.
func ExtractProfile(depthMm *rimage.FloatMap, intrinsics pixelScaler, p0, p1 image.Point) (*Profile, error) {
	line := bresenham(p0, p1)
	type raw struct {
		dist, depth float64
	}
	raws := make([]raw, 0, len(line))
	var prev image.Point
	var distAcc float64
	havePrev := false
	for _, pt := range line {
		z, ok := depthNear(depthMm, pt)
		if !ok {
			continue
		}
		if havePrev {
			stepPx := math.Hypot(float64(pt.X-prev.X), float64(pt.Y-prev.Y))
			distAcc += intrinsics.MmPerPixel(pt, z) * stepPx
		}
		prev = pt
		havePrev = true
		raws = append(raws, raw{dist: distAcc, depth: z})
	}
	if len(raws) < 2 {
		return nil, errors.New("profile line crosses fewer than 2 valid depth pixels")
	}

	// least squares baseline of depth over distance
	var sx, sy, sxx, sxy float64
	for _, r := range raws {
		sx += r.dist
		sy += r.depth
		sxx += r.dist * r.dist
		sxy += r.dist * r.depth
	}
	n := float64(len(raws))
	det := n*sxx - sx*sx
	var slope, intercept float64
	if math.Abs(det) > 1e-9 {
		slope = (n*sxy - sx*sy) / det
		intercept = (sy - slope*sx) / n
	} else {
		intercept = sy / n
	}

	prof := &Profile{Slope: slope, Intercept: intercept, Samples: make([]ProfileSample, len(raws))}
	for i, r := range raws {
		// positive height means deeper than the baseline, so a pit
		// reads positive and a bump negative
		prof.Samples[i] = ProfileSample{
			DistanceMm: r.dist,
			HeightMm:   r.depth - (slope*r.dist + intercept),
		}
	}
	return prof, nil
}

// Rotate rotates the profile series by theta radians around the origin of
// the (distance, height) plane, used to align the trace on screen.
func (p *Profile) Rotate(theta float64) *Profile {
	cos, sin := math.Cos(theta), math.Sin(theta)
	out := &Profile{Slope: p.Slope, Intercept: p.Intercept, Samples: make([]ProfileSample, len(p.Samples))}
	for i, s := range p.Samples {
		out.Samples[i] = ProfileSample{
			DistanceMm: s.DistanceMm*cos - s.HeightMm*sin,
			HeightMm:   s.DistanceMm*sin + s.HeightMm*cos,
		}
	}
	return out
}

// depthNear returns the depth at pt, searching a small neighborhood when
// the exact pixel is a hole.
func depthNear(depthMm *rimage.FloatMap, pt image.Point) (float64, bool) {
	if depthMm.In(pt.X, pt.Y) && depthMm.IsValidXY(pt.X, pt.Y) {
		return float64(depthMm.GetXY(pt.X, pt.Y)), true
	}
	for r := 1; r <= profileGapSearch; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if utils.MaxInt(utils.AbsInt(dx), utils.AbsInt(dy)) != r {
					continue
				}
				x, y := pt.X+dx, pt.Y+dy
				if depthMm.In(x, y) && depthMm.IsValidXY(x, y) {
					return float64(depthMm.GetXY(x, y)), true
				}
			}
		}
	}
	return 0, false
}

// pixelScaler converts a pixel step to a metric step at a given depth.
type pixelScaler interface {
	MmPerPixel(pt image.Point, depthMm float64) float64
}

// bresenham returns the pixels of the line from a to b inclusive.
func bresenham(a, b image.Point) []image.Point {
	dx := utils.AbsInt(b.X - a.X)
	dy := -utils.AbsInt(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	pts := make([]image.Point, 0, utils.MaxInt(dx, -dy)+1)
	x, y := a.X, a.Y
	for {
		pts = append(pts, image.Point{x, y})
		if x == b.X && y == b.Y {
			return pts
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}
