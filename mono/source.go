// Package mono runs a monocular relative-depth network and exposes its
// output as a float map aligned to the input frame.
package mono

import (
	"context"

	"github.com/edgescope/depthfusion/rimage"
)

// Source produces a relative depth map for a single rectified color frame.
// The output carries the frame's dimensions; its values are on the model's
// own scale and must be calibrated before fusing with stereo depth.
type Source interface {
	Infer(ctx context.Context, img *rimage.Image) (*rimage.FloatMap, error)
	Close() error
}
