package rimage

import (
	"image"
	"math"

	"github.com/edgescope/depthfusion/utils"
)

// Kernel is a 2D convolution kernel.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// NewKernel returns a kernel of the given content. The content must be
// rectangular and non-empty.
func NewKernel(content [][]float64) Kernel {
	return Kernel{content, len(content[0]), len(content)}
}

// At returns the kernel entry at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the kernel's dimensions.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return NewKernel([][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	})
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return NewKernel([][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	})
}

// GetLaplacian returns the 8-neighbor Laplacian kernel.
func GetLaplacian() Kernel {
	return NewKernel([][]float64{
		{1, 1, 1},
		{1, -8, 1},
		{1, 1, 1},
	})
}

// ConvolveFloatMap convolves the map with the kernel using border
// replication. Values are not clamped.
func ConvolveFloatMap(fm *FloatMap, kernel *Kernel) *FloatMap {
	result := NewFloatMap(fm.Width(), fm.Height())
	half := kernel.Size().Div(2)
	utils.ParallelForEachPixel(image.Point{fm.Width(), fm.Height()}, func(x, y int) {
		sum := 0.0
		for ky := 0; ky < kernel.Height; ky++ {
			for kx := 0; kx < kernel.Width; kx++ {
				px := utils.ClampInt(x+kx-half.X, 0, fm.Width()-1)
				py := utils.ClampInt(y+ky-half.Y, 0, fm.Height()-1)
				sum += float64(fm.GetXY(px, py)) * kernel.At(kx, ky)
			}
		}
		result.SetXY(x, y, float32(sum))
	})
	return result
}

// SobelGradientMagnitude returns a map of gradient magnitudes
// sqrt(gx^2 + gy^2) computed from the Sobel operators. Invalid pixels
// contribute zero to the derivative.
func SobelGradientMagnitude(fm *FloatMap) *FloatMap {
	sobelX := GetSobelX()
	sobelY := GetSobelY()
	gx := ConvolveFloatMap(fm, &sobelX)
	gy := ConvolveFloatMap(fm, &sobelY)
	result := NewFloatMap(fm.Width(), fm.Height())
	utils.ParallelForEachPixel(image.Point{fm.Width(), fm.Height()}, func(x, y int) {
		dx := float64(gx.GetXY(x, y))
		dy := float64(gy.GetXY(x, y))
		result.SetXY(x, y, float32(math.Hypot(dx, dy)))
	})
	return result
}

// LaplacianStdDev estimates surface curvature as the standard deviation of
// the Laplacian over pixels that are valid in the source map.
func LaplacianStdDev(fm *FloatMap) float64 {
	lap := GetLaplacian()
	conv := ConvolveFloatMap(fm, &lap)
	vals := make([]float32, 0, fm.Width()*fm.Height())
	for y := 0; y < fm.Height(); y++ {
		for x := 0; x < fm.Width(); x++ {
			if fm.IsValidXY(x, y) {
				vals = append(vals, conv.GetXY(x, y))
			}
		}
	}
	return float64(utils.StdDevF32(vals))
}

// SobelRowGradient returns the horizontal derivative of an 8-bit gray image
// clamped to [-cap, cap]. This is the prefilter the block matcher runs on
// its inputs.
func SobelRowGradient(g *GrayImage, gradCap int) *FloatMap {
	sobelX := GetSobelX()
	out := NewFloatMap(g.Width(), g.Height())
	utils.ParallelForEachPixel(image.Point{g.Width(), g.Height()}, func(x, y int) {
		sum := 0.0
		for ky := 0; ky < 3; ky++ {
			for kx := 0; kx < 3; kx++ {
				px := utils.ClampInt(x+kx-1, 0, g.Width()-1)
				py := utils.ClampInt(y+ky-1, 0, g.Height()-1)
				sum += float64(g.GetXY(px, py)) * sobelX.At(kx, ky)
			}
		}
		out.SetXY(x, y, utils.ClampF32(float32(sum), float32(-gradCap), float32(gradCap)))
	})
	return out
}
