package depth

import "github.com/pkg/errors"

// InsufficientSamplesError is returned when the overlap between the stereo
// and mono depth maps is too small to fit a calibration.
type InsufficientSamplesError struct {
	Got, Need int
}

func (e *InsufficientSamplesError) Error() string {
	return errors.Errorf("not enough calibration samples: got %d, need %d", e.Got, e.Need).Error()
}

// NewInsufficientSamplesError returns an error describing an undersized
// calibration sample set.
func NewInsufficientSamplesError(got, need int) error {
	return &InsufficientSamplesError{Got: got, Need: need}
}

// FitDegenerateError is returned when a calibration fit produced parameters
// outside the physically plausible range.
type FitDegenerateError struct {
	Reason string
}

func (e *FitDegenerateError) Error() string {
	return "degenerate calibration fit: " + e.Reason
}

// NewFitDegenerateError returns an error describing an implausible fit.
func NewFitDegenerateError(reason string) error {
	return &FitDegenerateError{Reason: reason}
}
