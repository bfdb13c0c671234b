package measure

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/edgescope/depthfusion/pointcloud"
	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
	"github.com/edgescope/depthfusion/utils"
)

// DefaultPickRadius is how far from a click a 3D point is searched for.
const DefaultPickRadius = 10

// ErrNoPointAtPixel is returned when neither the cloud nor the depth map
// can produce a 3D point near the clicked pixel.
var ErrNoPointAtPixel = errors.New("no 3d point near the requested pixel")

// Picker resolves screen clicks to 3D points. It prefers the organized
// cloud's pixel index and falls back to back-projecting the depth map when
// the cloud has no point near the click.
type Picker struct {
	Cloud      *pointcloud.FrameCloud
	DepthMm    *rimage.FloatMap
	Intrinsics *transform.PinholeCameraIntrinsics
	Radius     int
}

// NewPicker returns a picker over the given frame. Cloud or DepthMm may be
// nil; at least one source must be present.
func NewPicker(
	cloud *pointcloud.FrameCloud,
	depthMm *rimage.FloatMap,
	intrinsics *transform.PinholeCameraIntrinsics,
) *Picker {
	return &Picker{Cloud: cloud, DepthMm: depthMm, Intrinsics: intrinsics, Radius: DefaultPickRadius}
}

// Pick returns the 3D point for the clicked pixel and the pixel actually
// used, which may differ from the click when the exact pixel had no data.
func (pk *Picker) Pick(u, v int) (r3.Vector, image.Point, error) {
	if pk.Cloud != nil {
		if p, px, ok := pk.Cloud.NearestFromPixel(u, v, pk.Radius); ok {
			return p, px, nil
		}
	}
	if pk.DepthMm != nil && pk.Intrinsics != nil {
		if p, px, ok := pk.pickFromDepth(u, v); ok {
			return p, px, nil
		}
	}
	return r3.Vector{}, image.Point{}, ErrNoPointAtPixel
}

// pickFromDepth back-projects the nearest valid depth pixel, scanning
// outward ring by ring like the cloud search.
func (pk *Picker) pickFromDepth(u, v int) (r3.Vector, image.Point, bool) {
	for r := 0; r <= pk.Radius; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if utils.MaxInt(utils.AbsInt(dx), utils.AbsInt(dy)) != r {
					continue
				}
				x, y := u+dx, v+dy
				if !pk.DepthMm.In(x, y) || !pk.DepthMm.IsValidXY(x, y) {
					continue
				}
				z := float64(pk.DepthMm.GetXY(x, y))
				vec := pk.Intrinsics.PixelToVector(float64(x), float64(y), z)
				vec.Y = -vec.Y
				return vec, image.Point{x, y}, true
			}
		}
	}
	return r3.Vector{}, image.Point{}, false
}
