package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestNewBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, -0.05})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK1, test.ShouldEqual, 0.1)
	test.That(t, bc.RadialK2, test.ShouldEqual, -0.05)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, -0.05, 0, 0, 0})

	bc, err = NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc, test.ShouldResemble, &BrownConrady{})

	_, err = NewBrownConrady([]float64{1, 2, 3, 4, 5, 6})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "too long")
}

func TestBrownConradyTransformIdentity(t *testing.T) {
	// zero coefficients leave points untouched
	bc := &BrownConrady{}
	x, y := bc.Transform(0.25, -0.1)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.1)

	// a nil model is a passthrough
	var nilBC *BrownConrady
	x, y = nilBC.Transform(0.25, -0.1)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.1)
	test.That(t, nilBC.CheckValid(), test.ShouldNotBeNil)
}

func TestBrownConradyUndistortRoundTrip(t *testing.T) {
	bc := &BrownConrady{RadialK1: 0.1, RadialK2: -0.05, TangentialP1: 0.001, TangentialP2: -0.002}
	for _, pt := range [][2]float64{{0, 0}, {0.2, 0.1}, {-0.3, 0.25}, {0.4, -0.4}} {
		xd, yd := bc.Transform(pt[0], pt[1])
		x, y := bc.Undistort(xd, yd)
		test.That(t, x, test.ShouldAlmostEqual, pt[0], 1e-6)
		test.That(t, y, test.ShouldAlmostEqual, pt[1], 1e-6)
	}
}
