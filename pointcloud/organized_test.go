package pointcloud

import (
	"image"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
)

func cloudIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width: 50, Height: 50,
		Fx: 500, Fy: 500,
		Ppx: 25, Ppy: 25,
	}
}

func spikedDepth() *rimage.FloatMap {
	depth := rimage.NewFloatMap(50, 50)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			depth.SetXY(x, y, 300)
		}
	}
	depth.SetXY(10, 10, 500)
	return depth
}

func TestNewFrameCloudFiltersSpike(t *testing.T) {
	fc, err := NewFrameCloud(spikedDepth(), nil, cloudIntrinsics(), DefaultBuilderParams())
	test.That(t, err, test.ShouldBeNil)

	// the spike fails the median residual test and its eight neighbors
	// fail the gradient test
	_, ok := fc.AtPixel(10, 10)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = fc.AtPixel(9, 10)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, fc.Size(), test.ShouldEqual, 50*50-9)

	p, ok := fc.AtPixel(30, 30)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)
}

func TestNewFrameCloudYAxisPointsUp(t *testing.T) {
	fc, err := NewFrameCloud(spikedDepth(), nil, cloudIntrinsics(), DefaultBuilderParams())
	test.That(t, err, test.ShouldBeNil)

	// a pixel above the principal point lands at positive Y
	p, ok := fc.AtPixel(25, 10)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, p.Y, test.ShouldAlmostEqual, (25.0-10.0)*300.0/500.0, 1e-6)
	test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)

	p, ok = fc.AtPixel(35, 40)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, 6, 1e-6)
	test.That(t, p.Y, test.ShouldAlmostEqual, -9, 1e-6)
}

func TestNewFrameCloudCarriesColor(t *testing.T) {
	img := rimage.NewImage(50, 50)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.SetXY(x, y, rimage.Color{R: uint8(x), G: uint8(y), B: 7})
		}
	}
	fc, err := NewFrameCloud(spikedDepth(), img, cloudIntrinsics(), DefaultBuilderParams())
	test.That(t, err, test.ShouldBeNil)

	c, ok := fc.ColorAtPixel(12, 34)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, c, test.ShouldResemble, rimage.Color{R: 12, G: 34, B: 7})

	_, ok = fc.ColorAtPixel(10, 10)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestNewFrameCloudSizeMismatch(t *testing.T) {
	img := rimage.NewImage(40, 50)
	_, err := NewFrameCloud(spikedDepth(), img, cloudIntrinsics(), DefaultBuilderParams())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "40x50")
}

func TestNearestFromPixel(t *testing.T) {
	fc, err := NewFrameCloud(spikedDepth(), nil, cloudIntrinsics(), DefaultBuilderParams())
	test.That(t, err, test.ShouldBeNil)

	// the spike pixel and its ring are gone; the search recovers a point
	// two pixels out
	p, pt, ok := fc.NearestFromPixel(10, 10, 5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)
	test.That(t, pt, test.ShouldResemble, image.Point{10, 8})

	_, _, ok = fc.NearestFromPixel(10, 10, 1)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFrameCloudIterate(t *testing.T) {
	fc, err := NewFrameCloud(spikedDepth(), nil, cloudIntrinsics(), DefaultBuilderParams())
	test.That(t, err, test.ShouldBeNil)

	count := 0
	fc.Iterate(func(p r3.Vector, d Data) bool {
		test.That(t, d.HasValue(), test.ShouldBeTrue)
		k := d.Value()
		u, v := k%50, k/50
		// the stored pixel index round-trips to the point position
		test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)
		test.That(t, p.X, test.ShouldAlmostEqual, float64(u-25)*300.0/500.0, 1e-6)
		test.That(t, p.Y, test.ShouldAlmostEqual, float64(25-v)*300.0/500.0, 1e-6)
		count++
		return count < 100
	})
	test.That(t, count, test.ShouldEqual, 100)
}
