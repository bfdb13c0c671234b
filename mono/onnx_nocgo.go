//go:build !cgo
// +build !cgo

package mono

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// ONNXConfig points at a relative-depth model in ONNX format.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	InputSize   int
	MeanRGB     [3]float32
	StddevRGB   [3]float32
}

// DefaultONNXConfig returns settings for a depth-anything style model.
func DefaultONNXConfig(modelPath string) ONNXConfig {
	return ONNXConfig{
		ModelPath:  modelPath,
		InputName:  "image",
		OutputName: "depth",
		InputSize:  518,
		MeanRGB:    [3]float32{0.485, 0.456, 0.406},
		StddevRGB:  [3]float32{0.229, 0.224, 0.225},
	}
}

// NewONNXSource requires cgo for the onnxruntime bindings.
func NewONNXSource(conf ONNXConfig, logger golog.Logger) (Source, error) {
	return nil, NewModelLoadError(conf.ModelPath, errors.New("onnxruntime support requires cgo"))
}
