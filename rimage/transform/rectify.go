package transform

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/edgescope/depthfusion/rimage"
)

// ResolutionMismatchError is returned when a frame's size differs from the
// size the rectification maps were built for.
func ResolutionMismatchError(gotWidth, gotHeight, wantWidth, wantHeight int) error {
	return errors.Errorf("resolution mismatch: got %dx%d frame, rectification built for %dx%d",
		gotWidth, gotHeight, wantWidth, wantHeight)
}

// Rectifier holds everything derived from a StereoCalibration for a fixed
// image size: the rectifying rotations R1/R2, the new projections P1/P2, the
// reprojection matrix Q, the valid-pixel regions and the remap lookup tables.
// It is immutable after construction.
type Rectifier struct {
	ImageSize image.Point
	R1, R2    *mat.Dense // 3x3
	P1, P2    *mat.Dense // 3x4
	Q         *mat.Dense // 4x4
	ROI1      image.Rectangle
	ROI2      image.Rectangle

	map1x, map1y *rimage.FloatMap
	map2x, map2y *rimage.FloatMap
}

// NewRectifier derives the rectification of the given calibration at the
// given image size, mirroring the zero-disparity stereo rectification used
// during factory calibration.
func NewRectifier(cal *StereoCalibration, width, height int) (*Rectifier, error) {
	if cal == nil {
		return nil, errors.Wrap(ErrCalibrationLoad, "calibration is nil")
	}
	if err := cal.CheckValid(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", width, height)
	}

	r := &Rectifier{ImageSize: image.Point{width, height}}
	r.deriveRectification(cal)
	r.map1x, r.map1y = buildRectifyMap(&cal.Left, r.R1, r.P1, width, height)
	r.map2x, r.map2y = buildRectifyMap(&cal.Right, r.R2, r.P2, width, height)
	r.ROI1 = validPixelROI(r.map1x, r.map1y, width, height)
	r.ROI2 = validPixelROI(r.map2x, r.map2y, width, height)
	return r, nil
}

// deriveRectification computes R1, R2, P1, P2 and Q following Bouguet's
// algorithm: split the inter-camera rotation evenly between the two views,
// then rotate both so the new x axis lies along the baseline.
func (r *Rectifier) deriveRectification(cal *StereoCalibration) {
	nx, ny := float64(r.ImageSize.X), float64(r.ImageSize.Y)

	// Half rotation each way.
	om := rotationToRodrigues(cal.Rotation)
	halfRot := rodriguesToRotation([3]float64{-om[0] / 2, -om[1] / 2, -om[2] / 2})

	t := matVec3(halfRot, [3]float64{cal.Translation.X, cal.Translation.Y, cal.Translation.Z})
	nt := math.Sqrt(t[0]*t[0] + t[1]*t[1] + t[2]*t[2])

	// The dominant translation axis becomes the new x axis.
	idx := 0
	if math.Abs(t[1]) > math.Abs(t[0]) {
		idx = 1
	}
	c := t[idx]
	var uu [3]float64
	if c > 0 {
		uu[idx] = 1
	} else {
		uu[idx] = -1
	}

	// Global rotation aligning the baseline with the image rows.
	ww := cross3(t, uu)
	nw := math.Sqrt(ww[0]*ww[0] + ww[1]*ww[1] + ww[2]*ww[2])
	if nw > 0 {
		scale := math.Acos(math.Abs(c)/nt) / nw
		ww[0] *= scale
		ww[1] *= scale
		ww[2] *= scale
	}
	wR := rodriguesToRotation(ww)

	r1 := mat.NewDense(3, 3, nil)
	r1.Mul(wR, halfRot.T())
	r2 := mat.NewDense(3, 3, nil)
	r2.Mul(wR, halfRot)
	r.R1, r.R2 = r1, r2

	tNew := matVec3(r2, [3]float64{cal.Translation.X, cal.Translation.Y, cal.Translation.Z})

	// Common focal: the smaller of the two fy values, shrunk a little for
	// barrel distortion the same way the reference rectification does.
	fcNew := math.MaxFloat64
	for _, cam := range []*CameraModel{&cal.Left, &cal.Right} {
		fc := cam.Intrinsics.Fy
		if idx == 1 {
			fc = cam.Intrinsics.Fx
		}
		if cam.Distortion != nil && cam.Distortion.RadialK1 < 0 {
			fc *= 1 + cam.Distortion.RadialK1*(nx*nx+ny*ny)/(4*fc*fc)
		}
		fcNew = math.Min(fcNew, fc)
	}

	// New principal points: center each view's undistorted, rotated corners.
	var ccx, ccy [2]float64
	for k, cam := range []*CameraModel{&cal.Left, &cal.Right} {
		rot := r.R1
		if k == 1 {
			rot = r.R2
		}
		var sumX, sumY float64
		corners := [4][2]float64{{0, 0}, {nx - 1, 0}, {0, ny - 1}, {nx - 1, ny - 1}}
		for _, corner := range corners {
			xn := (corner[0] - cam.Intrinsics.Ppx) / cam.Intrinsics.Fx
			yn := (corner[1] - cam.Intrinsics.Ppy) / cam.Intrinsics.Fy
			xn, yn = cam.Distortion.Undistort(xn, yn)
			v := matVec3(rot, [3]float64{xn, yn, 1})
			sumX += v[0] / v[2] * fcNew
			sumY += v[1] / v[2] * fcNew
		}
		ccx[k] = (nx-1)/2 - sumX/4
		ccy[k] = (ny-1)/2 - sumY/4
	}
	// Zero disparity: both principal points coincide.
	ccxAvg := (ccx[0] + ccx[1]) / 2
	ccyAvg := (ccy[0] + ccy[1]) / 2

	p1 := mat.NewDense(3, 4, nil)
	p1.Set(0, 0, fcNew)
	p1.Set(0, 2, ccxAvg)
	p1.Set(1, 1, fcNew)
	p1.Set(1, 2, ccyAvg)
	p1.Set(2, 2, 1)
	p2 := mat.NewDense(3, 4, nil)
	p2.CloneFrom(p1)
	p2.Set(idx, 3, tNew[idx]*fcNew)
	r.P1, r.P2 = p1, p2

	q := mat.NewDense(4, 4, nil)
	q.Set(0, 0, 1)
	q.Set(0, 3, -ccxAvg)
	q.Set(1, 1, 1)
	q.Set(1, 3, -ccyAvg)
	q.Set(2, 3, fcNew)
	q.Set(3, 2, -1/tNew[idx])
	r.Q = q
}

// buildRectifyMap fills the inverse lookup tables: for every rectified pixel,
// the source pixel in the original image.
func buildRectifyMap(cam *CameraModel, rot, p *mat.Dense, width, height int) (*rimage.FloatMap, *rimage.FloatMap) {
	mapX := rimage.NewFloatMap(width, height)
	mapY := rimage.NewFloatMap(width, height)

	fxNew := p.At(0, 0)
	fyNew := p.At(1, 1)
	cxNew := p.At(0, 2)
	cyNew := p.At(1, 2)
	rotInv := mat.NewDense(3, 3, nil)
	rotInv.CloneFrom(rot.T())

	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			x := (float64(u) - cxNew) / fxNew
			y := (float64(v) - cyNew) / fyNew
			w := matVec3(rotInv, [3]float64{x, y, 1})
			xs := w[0] / w[2]
			ys := w[1] / w[2]
			xs, ys = cam.Distortion.Transform(xs, ys)
			mapX.SetXY(u, v, float32(xs*cam.Intrinsics.Fx+cam.Intrinsics.Ppx))
			mapY.SetXY(u, v, float32(ys*cam.Intrinsics.Fy+cam.Intrinsics.Ppy))
		}
	}
	return mapX, mapY
}

// validPixelROI finds the inner rectangle of rectified pixels whose source
// lookup is entirely inside the original image.
func validPixelROI(mapX, mapY *rimage.FloatMap, width, height int) image.Rectangle {
	inBounds := func(u, v int) bool {
		x := float64(mapX.GetXY(u, v))
		y := float64(mapY.GetXY(u, v))
		return x >= 0 && y >= 0 && x <= float64(width-1) && y <= float64(height-1)
	}
	left, top := 0, 0
	right, bottom := width, height
	anyValid := false
	for v := 0; v < height; v++ {
		l, r := -1, -1
		for u := 0; u < width; u++ {
			if inBounds(u, v) {
				if l < 0 {
					l = u
				}
				r = u + 1
			}
		}
		if l < 0 {
			continue
		}
		if !anyValid {
			anyValid = true
			top = v
			left, right = l, r
		} else {
			if l > left {
				left = l
			}
			if r < right {
				right = r
			}
		}
		bottom = v + 1
	}
	if !anyValid {
		return image.Rectangle{}
	}
	return image.Rect(left, top, right, bottom)
}

// RectifyLeft remaps a left frame into the rectified view.
func (r *Rectifier) RectifyLeft(img *rimage.Image) (*rimage.Image, error) {
	return r.remap(img, r.map1x, r.map1y)
}

// RectifyRight remaps a right frame into the rectified view.
func (r *Rectifier) RectifyRight(img *rimage.Image) (*rimage.Image, error) {
	return r.remap(img, r.map2x, r.map2y)
}

// RectifyPair rectifies both frames of a stereo pair.
func (r *Rectifier) RectifyPair(left, right *rimage.Image) (*rimage.Image, *rimage.Image, error) {
	leftRect, err := r.RectifyLeft(left)
	if err != nil {
		return nil, nil, err
	}
	rightRect, err := r.RectifyRight(right)
	if err != nil {
		return nil, nil, err
	}
	return leftRect, rightRect, nil
}

func (r *Rectifier) remap(img *rimage.Image, mapX, mapY *rimage.FloatMap) (*rimage.Image, error) {
	if img.Width() != r.ImageSize.X || img.Height() != r.ImageSize.Y {
		return nil, ResolutionMismatchError(img.Width(), img.Height(), r.ImageSize.X, r.ImageSize.Y)
	}
	out := rimage.NewImage(img.Width(), img.Height())
	for v := 0; v < img.Height(); v++ {
		for u := 0; u < img.Width(); u++ {
			xs := float64(mapX.GetXY(u, v))
			ys := float64(mapY.GetXY(u, v))
			c, ok := bilinearSample(img, xs, ys)
			if ok {
				out.SetXY(u, v, c)
			}
		}
	}
	return out, nil
}

// bilinearSample interpolates the image at a fractional position. Returns
// false when the position is outside the image.
func bilinearSample(img *rimage.Image, x, y float64) (rimage.Color, bool) {
	if x < 0 || y < 0 || x > float64(img.Width()-1) || y > float64(img.Height()-1) {
		return rimage.Color{}, false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 >= img.Width() {
		x1 = x0
	}
	if y1 >= img.Height() {
		y1 = y0
	}
	fx, fy := x-float64(x0), y-float64(y0)
	blend := func(a, b, c, d uint8) uint8 {
		top := float64(a)*(1-fx) + float64(b)*fx
		bot := float64(c)*(1-fx) + float64(d)*fx
		return uint8(top*(1-fy) + bot*fy + 0.5)
	}
	c00 := img.GetXY(x0, y0)
	c10 := img.GetXY(x1, y0)
	c01 := img.GetXY(x0, y1)
	c11 := img.GetXY(x1, y1)
	return rimage.Color{
		R: blend(c00.R, c10.R, c01.R, c11.R),
		G: blend(c00.G, c10.G, c01.G, c11.G),
		B: blend(c00.B, c10.B, c01.B, c11.B),
	}, true
}

// RectifiedIntrinsics returns the pinhole intrinsics of the rectified left
// view, the model every downstream 2D to 3D conversion uses.
func (r *Rectifier) RectifiedIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  r.ImageSize.X,
		Height: r.ImageSize.Y,
		Fx:     r.P1.At(0, 0),
		Fy:     r.P1.At(1, 1),
		Ppx:    r.P1.At(0, 2),
		Ppy:    r.P1.At(1, 2),
	}
}

// rotationToRodrigues converts a rotation matrix to its axis-angle vector.
func rotationToRodrigues(r *mat.Dense) [3]float64 {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := (trace - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	}
	if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-10 {
		return [3]float64{}
	}
	scale := theta / (2 * math.Sin(theta))
	return [3]float64{
		scale * (r.At(2, 1) - r.At(1, 2)),
		scale * (r.At(0, 2) - r.At(2, 0)),
		scale * (r.At(1, 0) - r.At(0, 1)),
	}
}

// rodriguesToRotation converts an axis-angle vector to a rotation matrix.
func rodriguesToRotation(om [3]float64) *mat.Dense {
	theta := math.Sqrt(om[0]*om[0] + om[1]*om[1] + om[2]*om[2])
	out := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta < 1e-10 {
		return out
	}
	x, y, z := om[0]/theta, om[1]/theta, om[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	c1 := 1 - c
	out.Set(0, 0, c+x*x*c1)
	out.Set(0, 1, x*y*c1-z*s)
	out.Set(0, 2, x*z*c1+y*s)
	out.Set(1, 0, y*x*c1+z*s)
	out.Set(1, 1, c+y*y*c1)
	out.Set(1, 2, y*z*c1-x*s)
	out.Set(2, 0, z*x*c1-y*s)
	out.Set(2, 1, z*y*c1+x*s)
	out.Set(2, 2, c+z*z*c1)
	return out
}

func matVec3(m mat.Matrix, v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m.At(i, 0)*v[0] + m.At(i, 1)*v[1] + m.At(i, 2)*v[2]
	}
	return out
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
