package rimage

import (
	"image"
	"math"
)

// FloatMap is a dense single precision 2D plane stored row-major. It carries
// disparities (pixels), depths (mm) and confidences through the pipeline.
// By convention values <= 0 (and non-finite values) are invalid.
type FloatMap struct {
	data          []float32
	width, height int
}

// NewFloatMap returns a zeroed map of the given dimensions.
func NewFloatMap(width, height int) *FloatMap {
	return &FloatMap{
		data:   make([]float32, width*height),
		width:  width,
		height: height,
	}
}

func (fm *FloatMap) kxy(x, y int) int {
	return (y * fm.width) + x
}

// In returns whether the point is in the map's bounds.
func (fm *FloatMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < fm.width && y < fm.height
}

// Width returns the horizontal dimension of the map.
func (fm *FloatMap) Width() int {
	return fm.width
}

// Height returns the vertical dimension of the map.
func (fm *FloatMap) Height() int {
	return fm.height
}

// Bounds returns the map's extent as a rectangle anchored at the origin.
func (fm *FloatMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, fm.width, fm.height)
}

// GetXY returns the value at (x, y).
func (fm *FloatMap) GetXY(x, y int) float32 {
	return fm.data[fm.kxy(x, y)]
}

// SetXY sets the value at (x, y).
func (fm *FloatMap) SetXY(x, y int, v float32) {
	fm.data[fm.kxy(x, y)] = v
}

// IsValidXY reports whether the value at (x, y) is finite and positive.
func (fm *FloatMap) IsValidXY(x, y int) bool {
	v := float64(fm.data[fm.kxy(x, y)])
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Clone returns a deep copy of the map.
func (fm *FloatMap) Clone() *FloatMap {
	out := NewFloatMap(fm.width, fm.height)
	copy(out.data, fm.data)
	return out
}

// SubMap copies out the part of the map within the given rectangle,
// clamped to the map bounds.
func (fm *FloatMap) SubMap(r image.Rectangle) *FloatMap {
	r = r.Intersect(fm.Bounds())
	out := NewFloatMap(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(
			out.data[out.kxy(0, y-r.Min.Y):out.kxy(0, y-r.Min.Y)+r.Dx()],
			fm.data[fm.kxy(r.Min.X, y):fm.kxy(r.Min.X, y)+r.Dx()],
		)
	}
	return out
}

// MinMax returns the lowest and highest valid values in the map.
// Returns (0, 0) when nothing is valid.
func (fm *FloatMap) MinMax() (float32, float32) {
	min := float32(math.MaxFloat32)
	max := float32(-math.MaxFloat32)
	any := false
	for _, v := range fm.data {
		if v <= 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			continue
		}
		any = true
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if !any {
		return 0, 0
	}
	return min, max
}

// ValidCount returns how many pixels hold a valid value.
func (fm *FloatMap) ValidCount() int {
	n := 0
	for y := 0; y < fm.height; y++ {
		for x := 0; x < fm.width; x++ {
			if fm.IsValidXY(x, y) {
				n++
			}
		}
	}
	return n
}

// ValidValues collects all valid values into a fresh slice.
func (fm *FloatMap) ValidValues() []float32 {
	out := make([]float32, 0, len(fm.data))
	for y := 0; y < fm.height; y++ {
		for x := 0; x < fm.width; x++ {
			if fm.IsValidXY(x, y) {
				out = append(out, fm.GetXY(x, y))
			}
		}
	}
	return out
}
