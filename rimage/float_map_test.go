package rimage

import (
	"image"
	"math"
	"testing"

	"go.viam.com/test"
)

func TestFloatMapBasics(t *testing.T) {
	fm := NewFloatMap(4, 3)
	test.That(t, fm.Width(), test.ShouldEqual, 4)
	test.That(t, fm.Height(), test.ShouldEqual, 3)
	test.That(t, fm.ValidCount(), test.ShouldEqual, 0)

	fm.SetXY(1, 2, 7.5)
	test.That(t, fm.GetXY(1, 2), test.ShouldEqual, float32(7.5))
	test.That(t, fm.IsValidXY(1, 2), test.ShouldBeTrue)
	test.That(t, fm.IsValidXY(0, 0), test.ShouldBeFalse)
	test.That(t, fm.In(3, 2), test.ShouldBeTrue)
	test.That(t, fm.In(4, 0), test.ShouldBeFalse)

	fm.SetXY(0, 0, float32(math.NaN()))
	test.That(t, fm.IsValidXY(0, 0), test.ShouldBeFalse)
	fm.SetXY(0, 1, -3)
	test.That(t, fm.IsValidXY(0, 1), test.ShouldBeFalse)
	test.That(t, fm.ValidCount(), test.ShouldEqual, 1)
}

func TestFloatMapMinMax(t *testing.T) {
	fm := NewFloatMap(3, 3)
	lo, hi := fm.MinMax()
	test.That(t, lo, test.ShouldEqual, float32(0))
	test.That(t, hi, test.ShouldEqual, float32(0))

	fm.SetXY(0, 0, 100)
	fm.SetXY(1, 1, 350)
	fm.SetXY(2, 2, -5)
	lo, hi = fm.MinMax()
	test.That(t, lo, test.ShouldEqual, float32(100))
	test.That(t, hi, test.ShouldEqual, float32(350))
}

func TestFloatMapSubMap(t *testing.T) {
	fm := NewFloatMap(6, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			fm.SetXY(x, y, float32(y*6+x+1))
		}
	}
	sub := fm.SubMap(image.Rect(2, 1, 5, 4))
	test.That(t, sub.Width(), test.ShouldEqual, 3)
	test.That(t, sub.Height(), test.ShouldEqual, 3)
	test.That(t, sub.GetXY(0, 0), test.ShouldEqual, fm.GetXY(2, 1))
	test.That(t, sub.GetXY(2, 2), test.ShouldEqual, fm.GetXY(4, 3))

	// out of bounds rectangles clamp
	clamped := fm.SubMap(image.Rect(4, 4, 10, 10))
	test.That(t, clamped.Width(), test.ShouldEqual, 2)
	test.That(t, clamped.Height(), test.ShouldEqual, 2)
}

func TestFloatMapClone(t *testing.T) {
	fm := NewFloatMap(2, 2)
	fm.SetXY(0, 0, 5)
	cl := fm.Clone()
	cl.SetXY(0, 0, 9)
	test.That(t, fm.GetXY(0, 0), test.ShouldEqual, float32(5))
	test.That(t, cl.GetXY(0, 0), test.ShouldEqual, float32(9))
}

func TestImageToGray(t *testing.T) {
	img := NewImage(2, 1)
	img.SetXY(0, 0, Color{255, 255, 255})
	img.SetXY(1, 0, Color{0, 0, 0})
	g := img.ToGray()
	test.That(t, g.GetXY(0, 0), test.ShouldEqual, uint8(255))
	test.That(t, g.GetXY(1, 0), test.ShouldEqual, uint8(0))
}

func TestImageSubImage(t *testing.T) {
	img := NewImage(4, 4)
	img.SetXY(2, 2, Color{10, 20, 30})
	sub := img.SubImage(image.Rect(1, 1, 4, 4))
	test.That(t, sub.Width(), test.ShouldEqual, 3)
	test.That(t, sub.GetXY(1, 1), test.ShouldResemble, Color{10, 20, 30})
}
