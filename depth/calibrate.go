package depth

import (
	"image"
	"math"
	"math/rand"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// Config tunes the mono-to-stereo depth calibration.
type Config struct {
	Method Method

	// MinSamples is the smallest stereo/mono overlap a fit will accept.
	MinSamples int
	// MaxSamples caps the sample set; larger overlaps are strided down.
	MaxSamples int

	RANSACIterations  int
	InlierThresholdMm float64

	// Tikhonov regularization pulling the fit toward scale=1, bias=0.
	LambdaScale float64
	LambdaBias  float64

	// LeftBoundX excludes the left band where rectified stereo has no
	// overlap, typically max(ROI1.Min.X, ROI2.Min.X).
	LeftBoundX int

	Confidence ConfidenceParams

	GridRows, GridCols int

	// CurvatureThreshold switches Adaptive from linear to polynomial when
	// the Laplacian stddev of the stereo depth exceeds it.
	CurvatureThreshold float64

	// Strong-connectivity mask: near-range connected surfaces the layered
	// calibration trusts most.
	StrongConnectMaxDepthMm float64
	StrongConnectMinArea    int

	// Hole detection: far-range regions the stereo matcher left empty.
	HoleMinDepthMm float64
	HoleMinArea    int

	Seed int64
}

// DefaultConfig returns the production calibration settings.
func DefaultConfig() Config {
	return Config{
		Method:             Adaptive,
		MinSamples:         50,
		MaxSamples:         20000,
		RANSACIterations:   200,
		InlierThresholdMm:  30.0,
		LambdaScale:        100.0,
		LambdaBias:         0.01,
		Confidence:         DefaultConfidenceParams(),
		GridRows:           4,
		GridCols:           4,
		CurvatureThreshold: 30.0,

		StrongConnectMaxDepthMm: 120.0,
		StrongConnectMinArea:    200,
		HoleMinDepthMm:          500.0,
		HoleMinArea:             50,

		Seed: 1,
	}
}

// Calibrator fits models aligning mono depth to the stereo metric scale.
// Not safe for concurrent use; the engine owns one per worker.
type Calibrator struct {
	conf   Config
	logger golog.Logger
	rnd    *rand.Rand
}

// NewCalibrator returns a calibrator with the given settings.
func NewCalibrator(conf Config, logger golog.Logger) *Calibrator {
	if conf.MinSamples <= 0 {
		conf.MinSamples = 50
	}
	if conf.MaxSamples <= 0 {
		conf.MaxSamples = 20000
	}
	if conf.RANSACIterations <= 0 {
		conf.RANSACIterations = 200
	}
	if conf.InlierThresholdMm <= 0 {
		conf.InlierThresholdMm = 30.0
	}
	if conf.GridRows <= 0 {
		conf.GridRows = 4
	}
	if conf.GridCols <= 0 {
		conf.GridCols = 4
	}
	if conf.StrongConnectMaxDepthMm <= 0 {
		conf.StrongConnectMaxDepthMm = 120.0
	}
	if conf.StrongConnectMinArea <= 0 {
		conf.StrongConnectMinArea = 200
	}
	if conf.HoleMinDepthMm <= 0 {
		conf.HoleMinDepthMm = 500.0
	}
	if conf.HoleMinArea <= 0 {
		conf.HoleMinArea = 50
	}
	return &Calibrator{conf: conf, logger: logger, rnd: rand.New(rand.NewSource(conf.Seed))}
}

type sample struct {
	x, y   int
	mono   float64 // mono depth, the model input
	stereo float64 // stereo depth, the model target
	weight float64
}

// Calibrate fits the configured model from the overlap of the stereo and
// mono depth maps. disp supplies the disparity used for confidence
// weighting and may be nil when unavailable.
func (c *Calibrator) Calibrate(stereoMm, monoMm, disp *rimage.FloatMap) (*CalibrationResult, error) {
	// each frame draws RANSAC pairs from a fresh sequence so identical
	// inputs always produce identical fits
	c.rnd = rand.New(rand.NewSource(c.conf.Seed))
	samples, err := c.collectSamples(stereoMm, monoMm, disp)
	if err != nil {
		return nil, err
	}
	linear, err := c.fitLinear(samples)
	if err != nil {
		return nil, err
	}
	method := c.conf.Method
	if method == Adaptive {
		// flat scenes get the layered fit; curved scenes try the
		// curvature-aware models and keep whichever fits better
		curvature := rimage.LaplacianStdDev(stereoMm)
		c.logger.Debugw("adaptive calibration", "curvature", curvature)
		if curvature <= c.conf.CurvatureThreshold {
			method = Layered
		} else {
			poly := c.fitPolynomial(samples, linear)
			radial := c.fitRadial(samples, linear, stereoMm.Width(), stereoMm.Height())
			res := poly
			if radial.RMS < res.RMS {
				res = radial
			}
			if err := res.Validate(); err != nil {
				return nil, err
			}
			return res, nil
		}
	}
	var res *CalibrationResult
	switch method {
	case Linear:
		res = linear
	case Polynomial:
		res = c.fitPolynomial(samples, linear)
	case Radial:
		res = c.fitRadial(samples, linear, stereoMm.Width(), stereoMm.Height())
	case GridBased:
		res = c.fitGrid(samples, linear, stereoMm.Width(), stereoMm.Height())
	case Layered:
		return c.fitLayered(stereoMm, monoMm, samples, linear)
	default:
		res = linear
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// collectSamples gathers weighted (mono, stereo) pairs from pixels where
// both maps are valid, skipping the non-overlapping left band and stereo
// depths that stray far from their local neighborhood.
func (c *Calibrator) collectSamples(stereoMm, monoMm, disp *rimage.FloatMap) ([]sample, error) {
	w, h := stereoMm.Width(), stereoMm.Height()
	grad := rimage.SobelGradientMagnitude(stereoMm)
	smooth := rimage.BoxFilterFloatMap(stereoMm, 2)
	residualSigma := localResidualSigma(stereoMm, smooth)

	samples := make([]sample, 0, 1024)
	for y := 0; y < h; y++ {
		for x := c.conf.LeftBoundX; x < w; x++ {
			zs := float64(stereoMm.GetXY(x, y))
			zm := float64(monoMm.GetXY(x, y))
			if zs <= 0 || zm <= 0 {
				continue
			}
			// anomalous spikes corrupt the fit more than they inform it
			if residualSigma > 0 && math.Abs(zs-float64(smooth.GetXY(x, y))) > 3*residualSigma {
				continue
			}
			weight := 1.0
			if disp != nil {
				d := float64(disp.GetXY(x, y))
				weight = utils.ClampF64(d/c.conf.Confidence.DispScale, 0.1, 1.0)
			}
			weight *= math.Exp(-zs / c.conf.Confidence.DepthScale)
			weight *= math.Exp(-float64(grad.GetXY(x, y)) / c.conf.Confidence.GradScale)
			samples = append(samples, sample{x: x, y: y, mono: zm, stereo: zs, weight: weight})
		}
	}
	if len(samples) < c.conf.MinSamples {
		return nil, NewInsufficientSamplesError(len(samples), c.conf.MinSamples)
	}
	if len(samples) > c.conf.MaxSamples {
		stride := (len(samples) + c.conf.MaxSamples - 1) / c.conf.MaxSamples
		kept := samples[:0]
		for i := 0; i < len(samples); i += stride {
			kept = append(kept, samples[i])
		}
		samples = kept
	}
	return samples, nil
}

func localResidualSigma(fm, smooth *rimage.FloatMap) float64 {
	var sum, sumSq float64
	n := 0
	for y := 0; y < fm.Height(); y++ {
		for x := 0; x < fm.Width(); x++ {
			if !fm.IsValidXY(x, y) {
				continue
			}
			r := float64(fm.GetXY(x, y) - smooth.GetXY(x, y))
			sum += r
			sumSq += r * r
			n++
		}
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	return math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
}

// fitLinear runs 2-point RANSAC to find a rough scale and bias, then
// refines over the inliers with a regularized weighted least squares pulled
// toward the identity mapping.
func (c *Calibrator) fitLinear(samples []sample) (*CalibrationResult, error) {
	bestScale, bestBias := 1.0, 0.0
	bestInliers := -1
	for it := 0; it < c.conf.RANSACIterations; it++ {
		i := utils.SampleRandomIntRange(0, len(samples)-1, c.rnd)
		j := utils.SampleRandomIntRange(0, len(samples)-1, c.rnd)
		if i == j || math.Abs(samples[i].mono-samples[j].mono) < 1e-6 {
			continue
		}
		s := (samples[j].stereo - samples[i].stereo) / (samples[j].mono - samples[i].mono)
		b := samples[i].stereo - s*samples[i].mono
		if s <= 0 {
			continue
		}
		inliers := 0
		for _, sm := range samples {
			if math.Abs(s*sm.mono+b-sm.stereo) <= c.conf.InlierThresholdMm {
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
			bestScale, bestBias = s, b
		}
	}
	if bestInliers < c.conf.MinSamples {
		return nil, NewFitDegenerateError("no consensus linear model found")
	}

	inlierSet := make([]sample, 0, bestInliers)
	for _, sm := range samples {
		if math.Abs(bestScale*sm.mono+bestBias-sm.stereo) <= c.conf.InlierThresholdMm {
			inlierSet = append(inlierSet, sm)
		}
	}
	scale, bias, err := tikhonovWLS(inlierSet, c.conf.LambdaScale, c.conf.LambdaBias)
	if err != nil {
		return nil, err
	}
	res := &CalibrationResult{
		Method:      Linear,
		Scale:       scale,
		Bias:        bias,
		InlierCount: len(inlierSet),
		SampleCount: len(samples),
	}
	res.RMS = linearRMS(inlierSet, scale, bias)
	return res, nil
}

// tikhonovWLS solves the weighted least squares for z' = s*z + b with
// quadratic penalties lambdaS*(s-1)^2 and lambdaB*b^2.
func tikhonovWLS(samples []sample, lambdaS, lambdaB float64) (float64, float64, error) {
	var a11, a12, a22, b1, b2 float64
	for _, sm := range samples {
		w := sm.weight
		a11 += w * sm.mono * sm.mono
		a12 += w * sm.mono
		a22 += w
		b1 += w * sm.mono * sm.stereo
		b2 += w * sm.stereo
	}
	a11 += lambdaS
	a22 += lambdaB
	b1 += lambdaS
	det := a11*a22 - a12*a12
	if math.Abs(det) < 1e-12 {
		return 0, 0, NewFitDegenerateError("singular normal equations")
	}
	scale := (b1*a22 - b2*a12) / det
	bias := (a11*b2 - a12*b1) / det
	return scale, bias, nil
}

func linearRMS(samples []sample, scale, bias float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sm := range samples {
		r := scale*sm.mono + bias - sm.stereo
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// fitPolynomial fits a weighted quadratic in mono depth, falling back to
// the linear fit when the extra degree of freedom buys no accuracy.
func (c *Calibrator) fitPolynomial(samples []sample, linear *CalibrationResult) *CalibrationResult {
	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for _, sm := range samples {
		w := sm.weight
		basis := [3]float64{sm.mono * sm.mono, sm.mono, 1}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a.Set(i, j, a.At(i, j)+w*basis[i]*basis[j])
			}
			b.SetVec(i, b.AtVec(i)+w*basis[i]*sm.stereo)
		}
	}
	var coefs mat.VecDense
	if err := coefs.SolveVec(a, b); err != nil {
		c.logger.Debugw("polynomial normal equations singular, keeping linear fit")
		return linear
	}
	res := &CalibrationResult{
		Method:      Polynomial,
		Poly:        [3]float64{coefs.AtVec(0), coefs.AtVec(1), coefs.AtVec(2)},
		Scale:       coefs.AtVec(1),
		Bias:        coefs.AtVec(2),
		InlierCount: linear.InlierCount,
		SampleCount: len(samples),
	}
	var sum float64
	for _, sm := range samples {
		r := res.ApplyValue(sm.mono, sm.x, sm.y) - sm.stereo
		sum += r * r
	}
	res.RMS = math.Sqrt(sum / float64(len(samples)))
	if res.RMS > 1.1*linear.RMS {
		return linear
	}
	return res
}

// fitRadial models the scale as varying quadratically with distance from
// the image center, z' = s*(1 + k*r^2)*z + b.
func (c *Calibrator) fitRadial(samples []sample, linear *CalibrationResult, width, height int) *CalibrationResult {
	cx, cy := float64(width)/2, float64(height)/2
	normR := math.Hypot(cx, cy)

	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for _, sm := range samples {
		w := sm.weight
		dx := float64(sm.x) - cx
		dy := float64(sm.y) - cy
		r2 := (dx*dx + dy*dy) / (normR * normR)
		basis := [3]float64{sm.mono, r2 * sm.mono, 1}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a.Set(i, j, a.At(i, j)+w*basis[i]*basis[j])
			}
			b.SetVec(i, b.AtVec(i)+w*basis[i]*sm.stereo)
		}
	}
	var coefs mat.VecDense
	if err := coefs.SolveVec(a, b); err != nil {
		c.logger.Debugw("radial normal equations singular, keeping linear fit")
		return linear
	}
	s := coefs.AtVec(0)
	res := &CalibrationResult{
		Method:      Radial,
		Scale:       s,
		Bias:        coefs.AtVec(2),
		Center:      image.Point{int(cx), int(cy)},
		NormR:       normR,
		InlierCount: linear.InlierCount,
		SampleCount: len(samples),
	}
	if s != 0 {
		res.RadialK = coefs.AtVec(1) / s
	}
	var sum float64
	for _, sm := range samples {
		r := res.ApplyValue(sm.mono, sm.x, sm.y) - sm.stereo
		sum += r * r
	}
	res.RMS = math.Sqrt(sum / float64(len(samples)))
	if res.RMS > 1.1*linear.RMS {
		return linear
	}
	return res
}

// fitGrid fits one regularized linear model per image cell, regularized
// toward the global fit so sparse cells degrade gracefully.
func (c *Calibrator) fitGrid(samples []sample, linear *CalibrationResult, width, height int) *CalibrationResult {
	rows, cols := c.conf.GridRows, c.conf.GridCols
	cells := make([][]sample, rows*cols)
	for _, sm := range samples {
		ci := utils.ClampInt(sm.x*cols/width, 0, cols-1)
		ri := utils.ClampInt(sm.y*rows/height, 0, rows-1)
		cells[ri*cols+ci] = append(cells[ri*cols+ci], sm)
	}
	res := &CalibrationResult{
		Method:      GridBased,
		Scale:       linear.Scale,
		Bias:        linear.Bias,
		Grid:        make([]GridCell, rows*cols),
		GridRows:    rows,
		GridCols:    cols,
		GridW:       width,
		GridH:       height,
		InlierCount: linear.InlierCount,
		SampleCount: len(samples),
	}
	minPerCell := utils.MaxInt(c.conf.MinSamples/4, 10)
	for i, cell := range cells {
		if len(cell) < minPerCell {
			continue
		}
		// shift targets so the regularizer pulls toward the global fit
		shifted := make([]sample, len(cell))
		for j, sm := range cell {
			shifted[j] = sm
			shifted[j].stereo = sm.stereo - (linear.Scale-1)*sm.mono - linear.Bias
		}
		s, b, err := tikhonovWLS(shifted, c.conf.LambdaScale, c.conf.LambdaBias)
		if err != nil {
			continue
		}
		res.Grid[i] = GridCell{
			Scale:   s + linear.Scale - 1,
			Bias:    b + linear.Bias,
			Samples: len(cell),
		}
	}
	var sum float64
	for _, sm := range samples {
		r := res.ApplyValue(sm.mono, sm.x, sm.y) - sm.stereo
		sum += r * r
	}
	res.RMS = math.Sqrt(sum / float64(len(samples)))
	return res
}
