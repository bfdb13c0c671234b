package depth

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/edgescope/depthfusion/rimage"
)

func uniformPair(w, h int, d, z float32) (*rimage.FloatMap, *rimage.FloatMap) {
	disp := rimage.NewFloatMap(w, h)
	depth := rimage.NewFloatMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			disp.SetXY(x, y, d)
			depth.SetXY(x, y, z)
		}
	}
	return disp, depth
}

func TestBuildConfidenceRange(t *testing.T) {
	disp, depth := uniformPair(20, 20, 32, 300)
	conf := BuildConfidence(disp, depth, DefaultConfidenceParams())
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			c := float64(conf.GetXY(x, y))
			test.That(t, c, test.ShouldBeGreaterThan, 0.0)
			test.That(t, c, test.ShouldBeLessThanOrEqualTo, 1.0)
		}
	}
	// flat surface at full disparity weight: exp(-300/2000)
	test.That(t, float64(conf.GetXY(10, 10)), test.ShouldAlmostEqual, math.Exp(-300.0/2000.0), 1e-3)
}

func TestBuildConfidenceInvalidPixels(t *testing.T) {
	disp, depth := uniformPair(10, 10, 32, 300)
	depth.SetXY(3, 3, 0)
	disp.SetXY(5, 5, 0)
	conf := BuildConfidence(disp, depth, DefaultConfidenceParams())
	test.That(t, conf.GetXY(3, 3), test.ShouldEqual, float32(0))
	test.That(t, conf.GetXY(5, 5), test.ShouldEqual, float32(0))
	test.That(t, conf.GetXY(0, 0), test.ShouldBeGreaterThan, float32(0))
}

func TestBuildConfidenceDecaysWithDepth(t *testing.T) {
	p := DefaultConfidenceParams()
	dispNear, depthNear := uniformPair(10, 10, 32, 200)
	dispFar, depthFar := uniformPair(10, 10, 32, 2000)
	near := BuildConfidence(dispNear, depthNear, p)
	far := BuildConfidence(dispFar, depthFar, p)
	test.That(t, near.GetXY(5, 5), test.ShouldBeGreaterThan, far.GetXY(5, 5))
}

func TestBuildConfidenceLowDisparityFloor(t *testing.T) {
	p := DefaultConfidenceParams()
	disp, depth := uniformPair(10, 10, 0.5, 300)
	conf := BuildConfidence(disp, depth, p)
	// the disparity weight clamps at 0.1 rather than vanishing
	test.That(t, float64(conf.GetXY(5, 5)), test.ShouldAlmostEqual, 0.1*math.Exp(-300.0/2000.0), 1e-3)
}

func TestBuildConfidencePenalizesGradient(t *testing.T) {
	p := DefaultConfidenceParams()
	disp := rimage.NewFloatMap(20, 20)
	depth := rimage.NewFloatMap(20, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			disp.SetXY(x, y, 32)
			depth.SetXY(x, y, float32(200+20*x))
		}
	}
	sloped := BuildConfidence(disp, depth, p)
	_, flat := uniformPair(20, 20, 32, 300)
	ref := BuildConfidence(disp, flat, p)
	test.That(t, sloped.GetXY(10, 10), test.ShouldBeLessThan, ref.GetXY(10, 10))
}
