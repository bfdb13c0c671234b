package engine

import (
	"image"
	"time"

	"github.com/edgescope/depthfusion/rimage"
)

// ErrorKind labels a failure in a result envelope.
type ErrorKind string

// Failure kinds surfaced in result envelopes.
const (
	ErrKindNone                ErrorKind = ""
	ErrKindCalibrationLoad     ErrorKind = "CalibrationLoadError"
	ErrKindResolutionMismatch  ErrorKind = "ResolutionMismatch"
	ErrKindModelLoad           ErrorKind = "ModelLoadError"
	ErrKindInference           ErrorKind = "InferenceError"
	ErrKindDegenerateDisparity ErrorKind = "DegenerateDisparity"
	ErrKindCalibrationFailure  ErrorKind = "CalibrationFailure"
	ErrKindFusionUnavailable   ErrorKind = "FusionUnavailable"
	ErrKindTaskCancelled       ErrorKind = "TaskCancelled"
)

// Request is one stereo frame pair to process. Left and Right must be the
// same size. BaselineMm and FocalPx are only consulted when no calibration
// files were loaded and no Q matrix was injected.
type Request struct {
	Left, Right *rimage.Image
	SessionID   int64
	Timestamp   time.Time

	// Apply43Crop crops all outputs to a centered 3:4 region.
	Apply43Crop bool
	// CropROI, when non-nil, overrides the computed crop region.
	CropROI *image.Rectangle

	BaselineMm float64
	FocalPx    float64
}

// Result is the envelope produced for every request, successful or not.
type Result struct {
	SessionID     int64
	Width, Height int
	// CropROI is the region of the rectified frame the outputs cover.
	CropROI image.Rectangle

	Success      bool
	ErrorKind    ErrorKind
	ErrorMessage string

	DepthMap       *rimage.FloatMap
	Disparity      *rimage.FloatMap
	MonoRaw        *rimage.FloatMap
	MonoCalibrated *rimage.FloatMap
	Confidence     *rimage.FloatMap

	CalibrationScale   float64
	CalibrationBias    float64
	CalibrationSuccess bool
}

// Cache keys for debug-view intermediates.
const (
	CachePreprocessed    = "preprocessed"
	CacheDisparity       = "disparity"
	CacheStereoDepth     = "stereo_depth"
	CacheMonoDepth       = "mono_depth"
	CacheCalibrated      = "calibrated"
	CacheConfidence      = "confidence"
	CacheFused           = "fused"
	CacheCalibrationMask = "calibration_mask"
)
