// Command depthfusion runs the stereo + mono depth pipeline on one frame
// pair and writes the fused depth map and point cloud next to the inputs.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	goutils "go.viam.com/utils"

	"github.com/edgescope/depthfusion/engine"
	"github.com/edgescope/depthfusion/mono"
	"github.com/edgescope/depthfusion/pointcloud"
	"github.com/edgescope/depthfusion/rimage"
)

var logger = golog.NewDevelopmentLogger("depthfusion")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	calibDir := flags.String("calib", "", "directory with stereo calibration .dat files")
	leftPath := flags.String("left", "", "left frame (png/jpeg)")
	rightPath := flags.String("right", "", "right frame (png/jpeg)")
	modelPath := flags.String("model", "", "mono depth model (onnx); empty runs stereo-only")
	outDir := flags.String("out", ".", "output directory")
	scale := flags.Float64("scale", 1.0, "uniform input resize")
	crop := flags.Bool("crop", false, "crop outputs to a centered 3:4 region")
	baseline := flags.Float64("baseline", 0, "baseline in mm when frames are pre-rectified")
	focal := flags.Float64("focal", 0, "focal length in px when frames are pre-rectified")
	jsonLog := flags.Bool("json-log", false, "log as structured json")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if *jsonLog {
		zl, err := zap.NewProduction()
		if err != nil {
			return err
		}
		logger = zl.Sugar().Named("depthfusion")
	}
	if *leftPath == "" || *rightPath == "" {
		return errors.New("both -left and -right are required")
	}

	left, err := rimage.ReadImageFromFile(*leftPath)
	if err != nil {
		return err
	}
	right, err := rimage.ReadImageFromFile(*rightPath)
	if err != nil {
		return err
	}

	conf := engine.DefaultConfig()
	conf.CalibrationDir = *calibDir
	conf.Scale = *scale

	var monoSrc mono.Source
	if *modelPath != "" {
		monoSrc, err = mono.NewONNXSource(mono.DefaultONNXConfig(*modelPath), logger)
		if err != nil {
			return err
		}
	}

	eng, err := engine.New(conf, monoSrc, logger)
	if err != nil {
		return err
	}
	defer eng.Stop()

	req := &engine.Request{
		Left:        left,
		Right:       right,
		Apply43Crop: *crop,
		BaselineMm:  *baseline,
		FocalPx:     *focal,
	}
	if err := eng.Submit(req); err != nil {
		return err
	}

	var res engine.Result
	select {
	case res = <-eng.Results():
	case <-ctx.Done():
		return ctx.Err()
	}
	if !res.Success {
		return errors.Errorf("processing failed: %s: %s", res.ErrorKind, res.ErrorMessage)
	}
	logger.Infow("frame processed",
		"size", res.Width, "valid_depth", res.DepthMap.ValidCount(),
		"calibration_success", res.CalibrationSuccess,
		"scale", res.CalibrationScale, "bias", res.CalibrationBias)

	// 16-bit depth, one count per mm, plus a small preview for quick checks
	depthPath := filepath.Join(*outDir, "depth.png")
	if err := rimage.WriteImageToFile(depthPath, res.DepthMap.ToGray16()); err != nil {
		return err
	}
	previewPath := filepath.Join(*outDir, "depth_preview.png")
	preview := rimage.Thumbnail(res.DepthMap.ToPrettyPicture(0, 0), 320)
	if err := rimage.WriteImageToFile(previewPath, preview); err != nil {
		return err
	}

	intrin := eng.RectifiedIntrinsics()
	if intrin == nil {
		logger.Warn("no intrinsics available, skipping point cloud export")
		return nil
	}
	intrin = intrin.CropTo(res.CropROI)
	var colorImg *rimage.Image
	if v, ok := eng.Cached(engine.CachePreprocessed); ok {
		if rect, ok := v.(*rimage.Image); ok {
			colorImg = rect.SubImage(res.CropROI)
		}
	}
	cloud, err := eng.BuildPointCloud(res.DepthMap, colorImg, intrin)
	if err != nil {
		return err
	}
	plyPath := filepath.Join(*outDir, "cloud.ply")
	//nolint:gosec
	f, err := os.Create(plyPath)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	if err := pointcloud.WritePLY(cloud, f); err != nil {
		return err
	}
	logger.Infow("wrote outputs", "depth", depthPath, "preview", previewPath, "cloud", plyPath, "points", cloud.Size())
	return nil
}
