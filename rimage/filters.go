package rimage

import (
	"image"
	"math"

	"github.com/edgescope/depthfusion/utils"
)

// GaussianFunction1D takes in a sigma and returns a gaussian function useful
// for weighing averages or blurring.
func GaussianFunction1D(sigma float64) func(p float64) float64 {
	if sigma <= 0. {
		return func(p float64) float64 {
			return 1.
		}
	}
	return func(p float64) float64 {
		return math.Exp(-0.5*utils.Square(p)/utils.Square(sigma)) / (sigma * math.Sqrt(2.*math.Pi))
	}
}

// BilateralFloatMap smooths the map with an edge preserving bilateral
// filter of window diameter d, spatial sigma sigmaSpace and range sigma
// sigmaRange (in the map's value unit). Invalid pixels neither contribute
// nor get filled in.
func BilateralFloatMap(fm *FloatMap, d int, sigmaSpace, sigmaRange float64) *FloatMap {
	if d < 1 {
		d = 5
	}
	radius := d / 2
	spatial := GaussianFunction1D(sigmaSpace)
	ranged := GaussianFunction1D(sigmaRange)

	// precomputed spatial weights for the window
	spatialWeights := make([][]float64, d)
	for dy := -radius; dy <= radius; dy++ {
		row := make([]float64, d)
		for dx := -radius; dx <= radius; dx++ {
			row[dx+radius] = spatial(math.Hypot(float64(dx), float64(dy)))
		}
		spatialWeights[dy+radius] = row
	}

	result := NewFloatMap(fm.Width(), fm.Height())
	utils.ParallelForEachPixel(image.Point{fm.Width(), fm.Height()}, func(x, y int) {
		if !fm.IsValidXY(x, y) {
			return
		}
		center := float64(fm.GetXY(x, y))
		var wSum, vSum float64
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				px, py := x+dx, y+dy
				if !fm.In(px, py) || !fm.IsValidXY(px, py) {
					continue
				}
				v := float64(fm.GetXY(px, py))
				w := spatialWeights[dy+radius][dx+radius] * ranged(v-center)
				wSum += w
				vSum += w * v
			}
		}
		if wSum > 0 {
			result.SetXY(x, y, float32(vSum/wSum))
		} else {
			result.SetXY(x, y, float32(center))
		}
	})
	return result
}

// BoxFilterFloatMap returns the local mean over a (2*radius+1) square
// window, counting only valid pixels.
func BoxFilterFloatMap(fm *FloatMap, radius int) *FloatMap {
	result := NewFloatMap(fm.Width(), fm.Height())
	utils.ParallelForEachPixel(image.Point{fm.Width(), fm.Height()}, func(x, y int) {
		var sum float64
		var n int
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				px, py := x+dx, y+dy
				if fm.In(px, py) && fm.IsValidXY(px, py) {
					sum += float64(fm.GetXY(px, py))
					n++
				}
			}
		}
		if n > 0 {
			result.SetXY(x, y, float32(sum/float64(n)))
		}
	})
	return result
}

// MedianFilterFloatMap returns the local median over a (2*radius+1) square
// window, counting only valid pixels. Invalid pixels stay invalid.
func MedianFilterFloatMap(fm *FloatMap, radius int) *FloatMap {
	result := NewFloatMap(fm.Width(), fm.Height())
	utils.ParallelForEachPixel(image.Point{fm.Width(), fm.Height()}, func(x, y int) {
		if !fm.IsValidXY(x, y) {
			return
		}
		window := make([]float32, 0, (2*radius+1)*(2*radius+1))
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				px, py := x+dx, y+dy
				if fm.In(px, py) && fm.IsValidXY(px, py) {
					window = append(window, fm.GetXY(px, py))
				}
			}
		}
		result.SetXY(x, y, utils.MedianF32(window))
	})
	return result
}
