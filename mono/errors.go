package mono

import "fmt"

// ModelLoadError is returned when the depth network or its runtime could
// not be initialized.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("cannot load depth model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// NewModelLoadError wraps a model initialization failure.
func NewModelLoadError(path string, err error) error {
	return &ModelLoadError{Path: path, Err: err}
}

// InferenceError is returned when a loaded model fails on a frame.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("depth inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// NewInferenceError wraps a per-frame inference failure.
func NewInferenceError(err error) error {
	return &InferenceError{Err: err}
}
