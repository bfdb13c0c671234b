package measure

import (
	"image"
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
)

func profileIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width: 100, Height: 20,
		Fx: 600, Fy: 600,
		Ppx: 50, Ppy: 10,
	}
}

func tiltedPlaneDepth() *rimage.FloatMap {
	depth := rimage.NewFloatMap(100, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 100; x++ {
			depth.SetXY(x, y, float32(300+0.5*float64(x)))
		}
	}
	return depth
}

func TestExtractProfileTiltedPlane(t *testing.T) {
	prof, err := ExtractProfile(tiltedPlaneDepth(), profileIntrinsics(), image.Point{5, 10}, image.Point{95, 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(prof.Samples), test.ShouldBeGreaterThan, 80)

	// the baseline fit absorbs the tilt; residual heights on a plane stay
	// inside the instrument tolerance
	for _, s := range prof.Samples {
		test.That(t, math.Abs(s.HeightMm), test.ShouldBeLessThan, 2.0)
	}
	test.That(t, prof.Slope, test.ShouldBeGreaterThan, 0.8)
	test.That(t, prof.Slope, test.ShouldBeLessThan, 1.05)

	// distances are monotone along the cut
	for i := 1; i < len(prof.Samples); i++ {
		test.That(t, prof.Samples[i].DistanceMm, test.ShouldBeGreaterThan, prof.Samples[i-1].DistanceMm)
	}
}

func TestExtractProfileStepHeight(t *testing.T) {
	depth := rimage.NewFloatMap(100, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 100; x++ {
			z := float32(300)
			if x >= 40 && x < 60 {
				z = 280
			}
			depth.SetXY(x, y, z)
		}
	}
	prof, err := ExtractProfile(depth, profileIntrinsics(), image.Point{5, 10}, image.Point{95, 10})
	test.That(t, err, test.ShouldBeNil)

	var minH float64
	for _, s := range prof.Samples {
		if s.HeightMm < minH {
			minH = s.HeightMm
		}
	}
	// the band sits 20mm closer than the surround, so it reads as a
	// negative height against the baseline
	test.That(t, minH, test.ShouldBeLessThan, -14.0)
	test.That(t, minH, test.ShouldBeGreaterThan, -22.0)
}

func TestExtractProfileBridgesHoles(t *testing.T) {
	depth := tiltedPlaneDepth()
	for y := 8; y <= 12; y++ {
		depth.SetXY(50, y, 0)
	}
	prof, err := ExtractProfile(depth, profileIntrinsics(), image.Point{5, 10}, image.Point{95, 10})
	test.That(t, err, test.ShouldBeNil)
	// the hole column resolves from a neighboring pixel
	test.That(t, len(prof.Samples), test.ShouldBeGreaterThan, 85)
}

func TestExtractProfileEmptyDepth(t *testing.T) {
	depth := rimage.NewFloatMap(100, 20)
	_, err := ExtractProfile(depth, profileIntrinsics(), image.Point{5, 10}, image.Point{95, 10})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "fewer than 2")
}

func TestProfileRotate(t *testing.T) {
	prof := &Profile{Samples: []ProfileSample{{DistanceMm: 1, HeightMm: 0}, {DistanceMm: 0, HeightMm: 2}}}
	rot := prof.Rotate(math.Pi / 2)
	test.That(t, rot.Samples[0].DistanceMm, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, rot.Samples[0].HeightMm, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, rot.Samples[1].DistanceMm, test.ShouldAlmostEqual, -2, 1e-9)
	test.That(t, rot.Samples[1].HeightMm, test.ShouldAlmostEqual, 0, 1e-9)
}
