package rimage

import (
	"image"
	"image/color"
)

// GrayImage is a dense 8-bit single channel image stored as a flat
// row-major slice.
type GrayImage struct {
	data          []uint8
	width, height int
}

// NewGrayImage returns a blank gray image of the given dimensions.
func NewGrayImage(width, height int) *GrayImage {
	return &GrayImage{
		data:   make([]uint8, width*height),
		width:  width,
		height: height,
	}
}

func (g *GrayImage) kxy(x, y int) int {
	return (y * g.width) + x
}

// In returns whether the point is in the image's bounds.
func (g *GrayImage) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// Width returns the horizontal dimension of the image.
func (g *GrayImage) Width() int {
	return g.width
}

// Height returns the vertical dimension of the image.
func (g *GrayImage) Height() int {
	return g.height
}

// GetXY returns the intensity at (x, y).
func (g *GrayImage) GetXY(x, y int) uint8 {
	return g.data[g.kxy(x, y)]
}

// SetXY sets the intensity at (x, y).
func (g *GrayImage) SetXY(x, y int, v uint8) {
	g.data[g.kxy(x, y)] = v
}

// Bounds implements image.Image.
func (g *GrayImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.width, g.height)
}

// ColorModel implements image.Image.
func (g *GrayImage) ColorModel() color.Model {
	return color.GrayModel
}

// At implements image.Image.
func (g *GrayImage) At(x, y int) color.Color {
	return color.Gray{g.data[g.kxy(x, y)]}
}

// Clone returns a deep copy of the image.
func (g *GrayImage) Clone() *GrayImage {
	out := NewGrayImage(g.width, g.height)
	copy(out.data, g.data)
	return out
}
