package depth

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/edgescope/depthfusion/rimage"
)

// rampScene builds a stereo depth ramp and the mono map that maps back onto
// it through z_stereo = scale*z_mono + bias.
func rampScene(w, h int, scale, bias float64) (*rimage.FloatMap, *rimage.FloatMap) {
	stereo := rimage.NewFloatMap(w, h)
	mono := rimage.NewFloatMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			zs := 250.0 + 0.5*float64(x) + 0.25*float64(y)
			stereo.SetXY(x, y, float32(zs))
			mono.SetXY(x, y, float32((zs-bias)/scale))
		}
	}
	return stereo, mono
}

func testCalibrator(t *testing.T, method Method) *Calibrator {
	t.Helper()
	conf := DefaultConfig()
	conf.Method = method
	return NewCalibrator(conf, golog.NewTestLogger(t))
}

func TestCalibrateLinear(t *testing.T) {
	stereo, mono := rampScene(80, 60, 1.25, 40)
	c := testCalibrator(t, Linear)

	res, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Method, test.ShouldEqual, Linear)
	test.That(t, res.Scale, test.ShouldAlmostEqual, 1.25, 0.01)
	test.That(t, res.Bias, test.ShouldAlmostEqual, 40, 2.0)
	test.That(t, res.RMS, test.ShouldBeLessThan, 1.0)
	test.That(t, res.InlierCount, test.ShouldBeGreaterThan, 1000)
}

func TestCalibrateLinearWithDisparityWeights(t *testing.T) {
	stereo, mono := rampScene(80, 60, 1.25, 40)
	disp := rimage.NewFloatMap(80, 60)
	for y := 0; y < 60; y++ {
		for x := 0; x < 80; x++ {
			disp.SetXY(x, y, 16)
		}
	}
	c := testCalibrator(t, Linear)
	res, err := c.Calibrate(stereo, mono, disp)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Scale, test.ShouldAlmostEqual, 1.25, 0.01)
}

func TestCalibrateInsufficientSamples(t *testing.T) {
	stereo := rimage.NewFloatMap(10, 10)
	mono := rimage.NewFloatMap(10, 10)
	for i := 0; i < 20; i++ {
		stereo.SetXY(i%10, i/10, 300)
		mono.SetXY(i%10, i/10, float32(200+i))
	}
	c := testCalibrator(t, Linear)
	_, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldNotBeNil)
	var ise *InsufficientSamplesError
	test.That(t, errors.As(err, &ise), test.ShouldBeTrue)
	test.That(t, ise.Got, test.ShouldEqual, 20)
}

func TestCalibrateDegenerateConstantMono(t *testing.T) {
	stereo := rimage.NewFloatMap(20, 20)
	mono := rimage.NewFloatMap(20, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			stereo.SetXY(x, y, 300)
			mono.SetXY(x, y, 100)
		}
	}
	c := testCalibrator(t, Linear)
	_, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldNotBeNil)
	var fde *FitDegenerateError
	test.That(t, errors.As(err, &fde), test.ShouldBeTrue)
}

func TestCalibrateRejectsImplausibleScale(t *testing.T) {
	// a fit needing scale 3 is outside the plausible range for the rig
	stereo, mono := rampScene(80, 60, 3.0, 0)
	c := testCalibrator(t, Linear)
	_, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "plausible")
}

func TestCalibratePolynomial(t *testing.T) {
	stereo := rimage.NewFloatMap(100, 50)
	mono := rimage.NewFloatMap(100, 50)
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			m := 100.0 + 2.0*float64(x)
			mono.SetXY(x, y, float32(m))
			stereo.SetXY(x, y, float32(0.001*m*m+m+10))
		}
	}
	c := testCalibrator(t, Polynomial)
	res, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Method, test.ShouldEqual, Polynomial)
	test.That(t, res.Poly[0], test.ShouldAlmostEqual, 0.001, 3e-4)
	test.That(t, res.Poly[1], test.ShouldAlmostEqual, 1.0, 0.1)
	test.That(t, res.RMS, test.ShouldBeLessThan, 1.0)
	test.That(t, res.ApplyValue(200, 50, 25), test.ShouldAlmostEqual, 0.001*200*200+200+10, 1.0)
}

func TestCalibrateRadialStaysLinearOnLinearData(t *testing.T) {
	stereo, mono := rampScene(80, 60, 1.25, 40)
	c := testCalibrator(t, Radial)
	res, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldBeNil)
	// linear data carries no radial signal; the model must still land on
	// the underlying mapping
	test.That(t, res.ApplyValue(190, 40, 30), test.ShouldAlmostEqual, 1.25*190+40, 2.0)
}

func TestCalibrateGrid(t *testing.T) {
	stereo, mono := rampScene(80, 60, 1.25, 40)
	c := testCalibrator(t, GridBased)
	res, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Method, test.ShouldEqual, GridBased)
	test.That(t, res.Grid, test.ShouldHaveLength, 16)
	test.That(t, res.ApplyValue(190, 10, 10), test.ShouldAlmostEqual, 1.25*190+40, 2.0)
	test.That(t, res.ApplyValue(190, 70, 50), test.ShouldAlmostEqual, 1.25*190+40, 2.0)
}

func TestCalibrateAdaptiveFlatSceneGoesLayered(t *testing.T) {
	stereo, mono := rampScene(80, 60, 1.25, 40)
	c := testCalibrator(t, Adaptive)
	res, err := c.Calibrate(stereo, mono, nil)
	test.That(t, err, test.ShouldBeNil)
	// a gently sloped surface has near-zero curvature, selecting the
	// layered model
	test.That(t, res.Method, test.ShouldEqual, Layered)
	test.That(t, res.Layers, test.ShouldNotBeNil)
	test.That(t, res.Mask, test.ShouldNotBeNil)
	test.That(t, res.Scale, test.ShouldAlmostEqual, 1.25, 0.05)
	test.That(t, res.ApplyValue(190, 40, 30), test.ShouldAlmostEqual, 1.25*190+40, 3.0)
}

func TestCalibrationResultValidate(t *testing.T) {
	ok := &CalibrationResult{Method: Linear, Scale: 1.1, Bias: 20, RMS: 5}
	test.That(t, ok.Validate(), test.ShouldBeNil)

	bad := &CalibrationResult{Method: Linear, Scale: 2.5, Bias: 0}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = &CalibrationResult{Method: Linear, Scale: 1, Bias: 1500}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = &CalibrationResult{Method: Linear, Scale: 1, Bias: 0, RMS: 25}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}

func TestCalibrationResultApplyIdentity(t *testing.T) {
	res := &CalibrationResult{Method: Linear, Scale: 1, Bias: 0}
	mono := rimage.NewFloatMap(10, 10)
	mono.SetXY(2, 3, 250)
	mono.SetXY(5, 5, 900)
	out := res.Apply(mono)
	test.That(t, out.GetXY(2, 3), test.ShouldEqual, float32(250))
	test.That(t, out.GetXY(5, 5), test.ShouldEqual, float32(900))
	test.That(t, out.GetXY(0, 0), test.ShouldEqual, float32(0))
}

func TestCalibrationResultApplyClips(t *testing.T) {
	res := &CalibrationResult{Method: Linear, Scale: 1.5, Bias: 0}
	mono := rimage.NewFloatMap(2, 1)
	mono.SetXY(0, 0, 9000) // maps beyond the far clip
	mono.SetXY(1, 0, 200)
	out := res.Apply(mono)
	test.That(t, out.GetXY(0, 0), test.ShouldEqual, float32(0))
	test.That(t, out.GetXY(1, 0), test.ShouldEqual, float32(300))
}

func TestMethodString(t *testing.T) {
	test.That(t, Linear.String(), test.ShouldEqual, "linear")
	test.That(t, Adaptive.String(), test.ShouldEqual, "adaptive")
	test.That(t, Method(99).String(), test.ShouldEqual, "unknown")
}
