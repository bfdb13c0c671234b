package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/edgescope/depthfusion/depth"
	"github.com/edgescope/depthfusion/pointcloud"
	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
)

// ComputeDisparityOnly rectifies the pair and runs just the stereo matcher.
func (e *Engine) ComputeDisparityOnly(left, right *rimage.Image) (*rimage.FloatMap, error) {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	left = e.preprocess(left)
	right = e.preprocess(right)
	left, right, err := e.rectify(left, right)
	if err != nil {
		return nil, err
	}
	return e.matcher.Compute(left.ToGray(), right.ToGray())
}

// ComputeStereoDepthOnly runs the stereo branch through reprojection and
// spatial filtering.
func (e *Engine) ComputeStereoDepthOnly(req *Request) (*rimage.FloatMap, error) {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	left := e.preprocess(req.Left)
	right := e.preprocess(req.Right)
	left, right, err := e.rectify(left, right)
	if err != nil {
		return nil, err
	}
	qp, err := e.reprojection(req, left.Width(), left.Height())
	if err != nil {
		return nil, err
	}
	_, stereoDepth, err := e.stereoBranch(left, right, qp)
	return stereoDepth, err
}

// ComputeMonoDepthOnly runs just the mono branch on a single frame.
func (e *Engine) ComputeMonoDepthOnly(ctx context.Context, img *rimage.Image) (*rimage.FloatMap, error) {
	if e.monoSrc == nil {
		return nil, errors.New("no mono depth source configured")
	}
	e.procMu.Lock()
	defer e.procMu.Unlock()
	img = e.preprocess(img)
	if e.rectifier != nil {
		var err error
		if img, err = e.rectifier.RectifyLeft(img); err != nil {
			return nil, err
		}
	}
	return e.monoSrc.Infer(ctx, img)
}

// FuseDepthMaps blends a stereo and calibrated mono depth pair directly,
// bypassing the queue.
func (e *Engine) FuseDepthMaps(stereoMm, monoMm, conf *rimage.FloatMap) (*rimage.FloatMap, error) {
	if stereoMm == nil || monoMm == nil || conf == nil {
		return nil, errors.New("fusion needs stereo depth, mono depth, and confidence")
	}
	if monoMm.Width() != stereoMm.Width() || monoMm.Height() != stereoMm.Height() {
		return nil, errors.Errorf("mono depth is %dx%d but stereo is %dx%d",
			monoMm.Width(), monoMm.Height(), stereoMm.Width(), stereoMm.Height())
	}
	return depth.Fuse(stereoMm, monoMm, conf, e.conf.Fuse), nil
}

// RectifiedIntrinsics returns the pinhole model of the rectified left
// camera, or nil when no calibration is loaded.
func (e *Engine) RectifiedIntrinsics() *transform.PinholeCameraIntrinsics {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	if e.rectifier == nil {
		return nil
	}
	return e.rectifier.RectifiedIntrinsics()
}

// BuildPointCloud back-projects a depth map into an organized cloud using
// the rectified intrinsics, or the given override when intrin is non-nil.
func (e *Engine) BuildPointCloud(
	depthMm *rimage.FloatMap,
	img *rimage.Image,
	intrin *transform.PinholeCameraIntrinsics,
) (*pointcloud.FrameCloud, error) {
	if intrin == nil {
		intrin = e.RectifiedIntrinsics()
	}
	if intrin == nil {
		return nil, errors.New("no intrinsics available for point cloud backprojection")
	}
	return pointcloud.NewFrameCloud(depthMm, img, intrin, e.conf.Cloud)
}
