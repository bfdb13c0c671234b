package engine

import (
	"github.com/edgescope/depthfusion/depth"
	"github.com/edgescope/depthfusion/pointcloud"
	"github.com/edgescope/depthfusion/stereo"
)

// Config collects the settings of every processing stage.
type Config struct {
	// CalibrationDir holds the stereo calibration .dat files. Empty means
	// frames arrive pre-rectified and a Q matrix or baseline must be
	// supplied some other way.
	CalibrationDir string

	// Scale uniformly resizes incoming frames before any processing.
	// Values <= 0 or == 1 disable resizing.
	Scale float64

	Stereo      stereo.Params
	Calibration depth.Config
	Confidence  depth.ConfidenceParams
	Fuse        depth.FuseParams
	Cloud       pointcloud.BuilderParams

	// QueueSize bounds the request FIFO; submits beyond it are rejected.
	QueueSize int
}

// DefaultConfig returns the production engine settings.
func DefaultConfig() Config {
	return Config{
		Scale:       1.0,
		Stereo:      stereo.DefaultParams(),
		Calibration: depth.DefaultConfig(),
		Confidence:  depth.DefaultConfidenceParams(),
		Fuse:        depth.DefaultFuseParams(),
		Cloud:       pointcloud.DefaultBuilderParams(),
		QueueSize:   4,
	}
}
