package rimage

import (
	"testing"

	"go.viam.com/test"
)

func constantMap(w, h int, v float32) *FloatMap {
	fm := NewFloatMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fm.SetXY(x, y, v)
		}
	}
	return fm
}

func TestBilateralConstant(t *testing.T) {
	fm := constantMap(10, 10, 300)
	out := BilateralFloatMap(fm, 5, 7, 50)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			test.That(t, out.GetXY(x, y), test.ShouldAlmostEqual, float32(300), 1e-3)
		}
	}
}

func TestBilateralSkipsInvalid(t *testing.T) {
	fm := constantMap(10, 10, 300)
	fm.SetXY(4, 4, 0)
	out := BilateralFloatMap(fm, 5, 7, 50)
	test.That(t, out.GetXY(4, 4), test.ShouldEqual, float32(0))
	test.That(t, out.GetXY(5, 4), test.ShouldAlmostEqual, float32(300), 1e-3)
}

func TestBilateralPreservesEdges(t *testing.T) {
	fm := NewFloatMap(20, 10)
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				fm.SetXY(x, y, 100)
			} else {
				fm.SetXY(x, y, 500)
			}
		}
	}
	// 400mm apart is far outside the 50mm range sigma, so the step stays
	out := BilateralFloatMap(fm, 5, 7, 50)
	test.That(t, out.GetXY(9, 5), test.ShouldAlmostEqual, float32(100), 0.5)
	test.That(t, out.GetXY(10, 5), test.ShouldAlmostEqual, float32(500), 0.5)
}

func TestMedianFilterRemovesSpike(t *testing.T) {
	fm := constantMap(9, 9, 100)
	fm.SetXY(4, 4, 900)
	out := MedianFilterFloatMap(fm, 1)
	test.That(t, out.GetXY(4, 4), test.ShouldEqual, float32(100))
	test.That(t, out.GetXY(0, 0), test.ShouldEqual, float32(100))
}

func TestBoxFilter(t *testing.T) {
	fm := NewFloatMap(3, 1)
	fm.SetXY(0, 0, 1)
	fm.SetXY(1, 0, 2)
	fm.SetXY(2, 0, 3)
	out := BoxFilterFloatMap(fm, 1)
	test.That(t, out.GetXY(1, 0), test.ShouldAlmostEqual, float32(2), 1e-5)
	// edges average over the in-bounds valid pixels only
	test.That(t, out.GetXY(0, 0), test.ShouldAlmostEqual, float32(1.5), 1e-5)
}

func TestSobelGradientMagnitude(t *testing.T) {
	flat := constantMap(10, 10, 250)
	g := SobelGradientMagnitude(flat)
	test.That(t, g.GetXY(5, 5), test.ShouldEqual, float32(0))

	ramp := NewFloatMap(10, 10)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			ramp.SetXY(x, y, float32(100+2*x))
		}
	}
	// sobel x on a slope of 2 per pixel responds with 8 * 2 in the interior
	g = SobelGradientMagnitude(ramp)
	test.That(t, g.GetXY(5, 5), test.ShouldAlmostEqual, float32(16), 1e-3)
}

func TestLaplacianStdDev(t *testing.T) {
	flat := constantMap(20, 20, 300)
	test.That(t, LaplacianStdDev(flat), test.ShouldAlmostEqual, 0, 1e-6)

	bumpy := constantMap(20, 20, 300)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if (x+y)%2 == 0 {
				bumpy.SetXY(x, y, 400)
			}
		}
	}
	test.That(t, LaplacianStdDev(bumpy), test.ShouldBeGreaterThan, 100.0)
}
