package depth

import (
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/edgescope/depthfusion/rimage"
)

func TestQParamsFromMatrix(t *testing.T) {
	q := mat.NewDense(4, 4, nil)
	q.Set(0, 0, 1)
	q.Set(0, 3, -640)
	q.Set(1, 1, 1)
	q.Set(1, 3, -360)
	q.Set(2, 3, 905.41)
	q.Set(3, 2, -1/2.06)

	p, err := QParamsFromMatrix(q)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Fx, test.ShouldAlmostEqual, 905.41, 1e-9)
	test.That(t, p.Cx, test.ShouldAlmostEqual, 640, 1e-9)
	test.That(t, p.Cy, test.ShouldAlmostEqual, 360, 1e-9)
	test.That(t, p.BaselineMm(), test.ShouldAlmostEqual, 2.06, 1e-9)
	test.That(t, p.W0, test.ShouldEqual, 0.0)
}

func TestQParamsFromMatrix3x4(t *testing.T) {
	q := mat.NewDense(3, 4, nil)
	q.Set(0, 3, -320)
	q.Set(1, 3, -240)
	q.Set(2, 3, 500)
	p, err := QParamsFromMatrix(q)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Fx, test.ShouldEqual, 500.0)
	// a 3x4 matrix has no baseline row
	test.That(t, p.InvB, test.ShouldEqual, 0.0)
	test.That(t, p.BaselineMm(), test.ShouldEqual, 0.0)
}

func TestQParamsFromMatrixRejections(t *testing.T) {
	_, err := QParamsFromMatrix(nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = QParamsFromMatrix(mat.NewDense(2, 2, nil))
	test.That(t, err, test.ShouldNotBeNil)

	q := mat.NewDense(4, 4, nil)
	q.Set(2, 3, -1) // non-positive focal
	_, err = QParamsFromMatrix(q)
	test.That(t, err, test.ShouldNotBeNil)

	q = mat.NewDense(4, 4, nil)
	q.Set(2, 3, 500) // zero baseline row
	_, err = QParamsFromMatrix(q)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewQParams(t *testing.T) {
	p, err := NewQParams(2.06, 905.41, 320, 240)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.BaselineMm(), test.ShouldAlmostEqual, 2.06, 1e-9)

	_, err = NewQParams(0, 905.41, 320, 240)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewQParams(2.06, 0, 320, 240)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromDisparityPlanarWall(t *testing.T) {
	// a frontoparallel wall at 300mm produces a uniform disparity of
	// fx*B/300 everywhere
	p, err := NewQParams(2.06, 905.41, 25, 25)
	test.That(t, err, test.ShouldBeNil)
	d := float32(905.41 * 2.06 / 300.0)

	disp := rimage.NewFloatMap(50, 50)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			disp.SetXY(x, y, d)
		}
	}
	depth, err := FromDisparity(disp, p)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			test.That(t, depth.GetXY(x, y), test.ShouldAlmostEqual, 300.0, 0.01)
		}
	}
}

func TestFromDisparityClipsRange(t *testing.T) {
	p, err := NewQParams(2.06, 905.41, 25, 25)
	test.That(t, err, test.ShouldBeNil)

	disp := rimage.NewFloatMap(4, 1)
	disp.SetXY(0, 0, 0.1)  // beyond the far clip
	disp.SetXY(1, 0, 0)    // invalid
	disp.SetXY(2, 0, -2)   // invalid
	disp.SetXY(3, 0, 10.0) // valid, ~186mm

	depth, err := FromDisparity(disp, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth.GetXY(0, 0), test.ShouldEqual, float32(0))
	test.That(t, depth.GetXY(1, 0), test.ShouldEqual, float32(0))
	test.That(t, depth.GetXY(2, 0), test.ShouldEqual, float32(0))
	test.That(t, depth.GetXY(3, 0), test.ShouldAlmostEqual, 905.41*2.06/10.0, 0.01)
}

func TestFromDisparityDegenerate(t *testing.T) {
	p, err := NewQParams(2.06, 905.41, 25, 25)
	test.That(t, err, test.ShouldBeNil)

	depth, err := FromDisparity(rimage.NewFloatMap(10, 10), p)
	test.That(t, err, test.ShouldEqual, ErrDegenerateDisparity)
	test.That(t, depth, test.ShouldNotBeNil)
	test.That(t, depth.ValidCount(), test.ShouldEqual, 0)

	_, err = FromDisparity(nil, p)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = FromDisparity(rimage.NewFloatMap(4, 4), &QParams{Fx: 500})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFilterDropsSpikes(t *testing.T) {
	fm := rimage.NewFloatMap(9, 9)
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			fm.SetXY(x, y, 300)
		}
	}
	fm.SetXY(4, 4, 600)
	out := Filter(fm, nil)
	test.That(t, out.GetXY(4, 4), test.ShouldEqual, float32(0))
	test.That(t, out.GetXY(2, 2), test.ShouldEqual, float32(300))
}

func TestFilterHonorsMask(t *testing.T) {
	fm := rimage.NewFloatMap(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			fm.SetXY(x, y, 300)
		}
	}
	mask := rimage.NewMask(4, 4)
	mask.SetXY(1, 1, true)
	out := Filter(fm, mask)
	test.That(t, out.GetXY(1, 1), test.ShouldEqual, float32(300))
	test.That(t, out.GetXY(0, 0), test.ShouldEqual, float32(0))
	test.That(t, out.ValidCount(), test.ShouldEqual, 1)
}

func TestValidMask(t *testing.T) {
	disp := rimage.NewFloatMap(3, 1)
	depth := rimage.NewFloatMap(3, 1)
	disp.SetXY(0, 0, 5)
	depth.SetXY(0, 0, 300)
	disp.SetXY(1, 0, 5) // depth missing
	depth.SetXY(2, 0, 300)

	mask := ValidMask(disp, depth)
	test.That(t, mask.GetXY(0, 0), test.ShouldBeTrue)
	test.That(t, mask.GetXY(1, 0), test.ShouldBeFalse)
	test.That(t, mask.GetXY(2, 0), test.ShouldBeFalse)
	test.That(t, mask.Count(), test.ShouldEqual, 1)
}
