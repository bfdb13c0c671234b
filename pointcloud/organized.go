package pointcloud

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
	"github.com/edgescope/depthfusion/utils"
)

// FrameCloud is a point cloud organized by its source depth frame: every
// point remembers the pixel it was back-projected from, so measurements can
// go from a screen click to a 3D point without a spatial index.
type FrameCloud struct {
	width, height int
	points        []r3.Vector
	valid         []bool
	colors        []rimage.Color
	hasColor      bool
	size          int
	meta          MetaData
}

// BuilderParams tunes the depth-to-cloud conversion.
type BuilderParams struct {
	// Outlier rejection: a point is dropped when its depth strays from the
	// 3x3 median by more than max(MedianResidualMm, MedianResidualFrac of
	// the max depth), or its depth gradient magnitude exceeds
	// max(GradientMmPerPx, GradientFrac of the max depth).
	MedianResidualMm   float64
	MedianResidualFrac float64
	GradientMmPerPx    float64
	GradientFrac       float64
}

// DefaultBuilderParams returns the production cloud builder settings.
func DefaultBuilderParams() BuilderParams {
	return BuilderParams{
		MedianResidualMm:   20.0,
		MedianResidualFrac: 0.02,
		GradientMmPerPx:    30.0,
		GradientFrac:       0.01,
	}
}

// NewFrameCloud back-projects a depth frame through the rectified
// intrinsics. The camera frame is +X right, +Y up, +Z forward; image rows
// grow downward, so Y is negated. img supplies per-point color and may be
// nil.
func NewFrameCloud(
	depthMm *rimage.FloatMap,
	img *rimage.Image,
	intrinsics *transform.PinholeCameraIntrinsics,
	params BuilderParams,
) (*FrameCloud, error) {
	if depthMm == nil {
		return nil, errors.New("depth map is nil")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	w, h := depthMm.Width(), depthMm.Height()
	if img != nil && (img.Width() != w || img.Height() != h) {
		return nil, errors.Errorf("color image is %dx%d but depth is %dx%d",
			img.Width(), img.Height(), w, h)
	}

	_, zMax := depthMm.MinMax()
	medThresh := math.Max(params.MedianResidualMm, params.MedianResidualFrac*float64(zMax))
	gradThresh := math.Max(params.GradientMmPerPx, params.GradientFrac*float64(zMax))
	med := rimage.MedianFilterFloatMap(depthMm, 1)
	grad := rimage.SobelGradientMagnitude(depthMm)

	fc := &FrameCloud{
		width:    w,
		height:   h,
		points:   make([]r3.Vector, w*h),
		valid:    make([]bool, w*h),
		colors:   make([]rimage.Color, w*h),
		hasColor: img != nil,
		meta:     NewMetaData(),
	}
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			z := float64(depthMm.GetXY(u, v))
			if z <= 0 {
				continue
			}
			m := med.GetXY(u, v)
			if m > 0 && math.Abs(z-float64(m)) > medThresh {
				continue
			}
			if float64(grad.GetXY(u, v)) > gradThresh {
				continue
			}
			x := (float64(u) - intrinsics.Ppx) * z / intrinsics.Fx
			y := (float64(v) - intrinsics.Ppy) * z / intrinsics.Fy
			k := v*w + u
			fc.points[k] = r3.Vector{X: x, Y: -y, Z: z}
			fc.valid[k] = true
			if img != nil {
				fc.colors[k] = img.GetXY(u, v)
			}
			fc.size++
			fc.meta.Merge(fc.points[k], nil)
		}
	}
	fc.meta.HasColor = fc.hasColor
	fc.meta.HasValue = true
	return fc, nil
}

// Size returns the number of valid points.
func (fc *FrameCloud) Size() int {
	return fc.size
}

// MetaData returns meta data.
func (fc *FrameCloud) MetaData() MetaData {
	return fc.meta
}

// FrameSize returns the source frame dimensions.
func (fc *FrameCloud) FrameSize() (int, int) {
	return fc.width, fc.height
}

// AtPixel returns the 3D point of the given source pixel, if one survived
// the outlier filter.
func (fc *FrameCloud) AtPixel(u, v int) (r3.Vector, bool) {
	if u < 0 || v < 0 || u >= fc.width || v >= fc.height {
		return r3.Vector{}, false
	}
	k := v*fc.width + u
	if !fc.valid[k] {
		return r3.Vector{}, false
	}
	return fc.points[k], true
}

// ColorAtPixel returns the stored color of the given pixel's point.
func (fc *FrameCloud) ColorAtPixel(u, v int) (rimage.Color, bool) {
	if !fc.hasColor {
		return rimage.Color{}, false
	}
	if _, ok := fc.AtPixel(u, v); !ok {
		return rimage.Color{}, false
	}
	return fc.colors[v*fc.width+u], true
}

// NearestFromPixel finds the valid point closest to the given pixel within
// the search radius, scanning outward ring by ring.
func (fc *FrameCloud) NearestFromPixel(u, v, radius int) (r3.Vector, image.Point, bool) {
	if p, ok := fc.AtPixel(u, v); ok {
		return p, image.Point{u, v}, true
	}
	for r := 1; r <= radius; r++ {
		bestD := math.MaxFloat64
		var best r3.Vector
		var bestPt image.Point
		found := false
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if utils.MaxInt(utils.AbsInt(dx), utils.AbsInt(dy)) != r {
					continue
				}
				p, ok := fc.AtPixel(u+dx, v+dy)
				if !ok {
					continue
				}
				d := float64(dx*dx + dy*dy)
				if d < bestD {
					bestD = d
					best = p
					bestPt = image.Point{u + dx, v + dy}
					found = true
				}
			}
		}
		if found {
			return best, bestPt, true
		}
	}
	return r3.Vector{}, image.Point{}, false
}

// At returns the point data at the given position, satisfying PointCloud.
// Lookups by position are linear; prefer AtPixel.
func (fc *FrameCloud) At(x, y, z float64) (Data, bool) {
	target := r3.Vector{X: x, Y: y, Z: z}
	var out Data
	found := false
	fc.Iterate(func(p r3.Vector, d Data) bool {
		if p == target {
			out = d
			found = true
			return false
		}
		return true
	})
	return out, found
}

// Set is unsupported; a FrameCloud is immutable after construction.
func (fc *FrameCloud) Set(p r3.Vector, d Data) error {
	return errors.New("cannot add points to a frame-organized cloud")
}

// Iterate iterates over all valid points in row-major frame order. Each
// point's Data carries its color and source pixel index.
func (fc *FrameCloud) Iterate(fn func(p r3.Vector, d Data) bool) {
	for k, ok := range fc.valid {
		if !ok {
			continue
		}
		var d Data
		if fc.hasColor {
			c := fc.colors[k]
			d = NewColoredData(color.NRGBA{c.R, c.G, c.B, 255})
		} else {
			d = NewBasicData()
		}
		d.SetValue(k)
		if !fn(fc.points[k], d) {
			return
		}
	}
}
