package measure

import (
	"image"
	"testing"

	"go.viam.com/test"

	"github.com/edgescope/depthfusion/pointcloud"
	"github.com/edgescope/depthfusion/rimage"
)

func pickDepth() *rimage.FloatMap {
	depth := rimage.NewFloatMap(100, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 100; x++ {
			depth.SetXY(x, y, 300)
		}
	}
	return depth
}

func TestPickFromCloud(t *testing.T) {
	intr := profileIntrinsics()
	depth := pickDepth()
	cloud, err := pointcloud.NewFrameCloud(depth, nil, intr, pointcloud.DefaultBuilderParams())
	test.That(t, err, test.ShouldBeNil)

	pk := NewPicker(cloud, depth, intr)
	p, px, err := pk.Pick(60, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px, test.ShouldResemble, image.Point{60, 5})
	test.That(t, p.X, test.ShouldAlmostEqual, (60.0-50.0)*300.0/600.0, 1e-6)
	test.That(t, p.Y, test.ShouldAlmostEqual, (10.0-5.0)*300.0/600.0, 1e-6)
	test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)
}

func TestPickFallsBackToDepth(t *testing.T) {
	intr := profileIntrinsics()
	depth := pickDepth()

	// no cloud at all: the depth map serves the pick
	pk := NewPicker(nil, depth, intr)
	p, px, err := pk.Pick(60, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px, test.ShouldResemble, image.Point{60, 5})
	test.That(t, p.Y, test.ShouldAlmostEqual, (10.0-5.0)*300.0/600.0, 1e-6)
	test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)
}

func TestPickSearchesNearbyDepth(t *testing.T) {
	intr := profileIntrinsics()
	depth := rimage.NewFloatMap(100, 20)
	depth.SetXY(63, 5, 300)

	pk := NewPicker(nil, depth, intr)
	p, px, err := pk.Pick(60, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px, test.ShouldResemble, image.Point{63, 5})
	test.That(t, p.Z, test.ShouldAlmostEqual, 300, 1e-6)
}

func TestPickNoPoint(t *testing.T) {
	intr := profileIntrinsics()
	pk := NewPicker(nil, rimage.NewFloatMap(100, 20), intr)
	_, _, err := pk.Pick(60, 5)
	test.That(t, err, test.ShouldEqual, ErrNoPointAtPixel)

	// clicks outside the frame fail the same way
	_, _, err = pk.Pick(-50, -50)
	test.That(t, err, test.ShouldEqual, ErrNoPointAtPixel)
}
