//go:build cgo
// +build cgo

package mono

import (
	"context"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/edgescope/depthfusion/rimage"
)

// ONNXConfig points at a relative-depth model in ONNX format.
type ONNXConfig struct {
	ModelPath string
	// LibraryPath locates the onnxruntime shared library. If empty, the
	// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable is used.
	LibraryPath string

	InputName  string
	OutputName string
	// InputSize is the square side the network consumes; depth-anything
	// style models use 518.
	InputSize int

	// Per-channel normalization applied to [0,1] RGB before inference.
	MeanRGB   [3]float32
	StddevRGB [3]float32
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

type onnxSource struct {
	conf    ONNXConfig
	logger  golog.Logger
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXSource loads the model and keeps a session with preallocated
// tensors; each Infer overwrites the input tensor in place.
func NewONNXSource(conf ONNXConfig, logger golog.Logger) (Source, error) {
	if conf.InputSize <= 0 {
		conf.InputSize = 518
	}
	if _, err := os.Stat(conf.ModelPath); err != nil {
		return nil, NewModelLoadError(conf.ModelPath, err)
	}
	if conf.LibraryPath != "" {
		ort.SetSharedLibraryPath(conf.LibraryPath)
	} else if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, NewModelLoadError(conf.ModelPath, err)
	}

	n := int64(conf.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, n, n))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, NewModelLoadError(conf.ModelPath, err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, n, n))
	if err != nil {
		input.Destroy()
		ort.DestroyEnvironment()
		return nil, NewModelLoadError(conf.ModelPath, err)
	}
	session, err := ort.NewAdvancedSession(
		conf.ModelPath,
		[]string{conf.InputName},
		[]string{conf.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		ort.DestroyEnvironment()
		return nil, NewModelLoadError(conf.ModelPath, err)
	}
	logger.Infow("loaded mono depth model", "path", conf.ModelPath, "input_size", conf.InputSize)
	return &onnxSource{conf: conf, logger: logger, session: session, input: input, output: output}, nil
}

// Infer resizes the frame to the network input, runs the model, and scales
// the relative depth back up to the frame's dimensions.
func (s *onnxSource) Infer(ctx context.Context, img *rimage.Image) (*rimage.FloatMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Width() == 0 || img.Height() == 0 {
		return nil, NewInferenceError(errors.New("empty input frame"))
	}
	s.fillInput(img)
	if err := s.session.Run(); err != nil {
		return nil, NewInferenceError(err)
	}
	n := s.conf.InputSize
	raw := rimage.NewFloatMap(n, n)
	data := s.output.GetData()
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			raw.SetXY(x, y, data[y*n+x])
		}
	}
	return rimage.ResizeFloatMap(raw, img.Width(), img.Height()), nil
}

func (s *onnxSource) fillInput(img *rimage.Image) {
	n := s.conf.InputSize
	scaled := rimage.ResizeImage(img, n, n)
	data := s.input.GetData()
	plane := n * n
	std := s.conf.StddevRGB
	for c := 0; c < 3; c++ {
		if std[c] == 0 {
			std[c] = 1
		}
	}
	idx := 0
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := scaled.GetXY(x, y)
			data[idx] = (float32(c.R)/255 - s.conf.MeanRGB[0]) / std[0]
			data[plane+idx] = (float32(c.G)/255 - s.conf.MeanRGB[1]) / std[1]
			data[2*plane+idx] = (float32(c.B)/255 - s.conf.MeanRGB[2]) / std[2]
			idx++
		}
	}
}

func (s *onnxSource) Close() error {
	s.session.Destroy()
	s.input.Destroy()
	s.output.Destroy()
	return ort.DestroyEnvironment()
}
