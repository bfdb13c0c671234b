// Package rimage defines fundamental image and 2D plane types used throughout
// the depth pipeline, along with basic image processing on them.
package rimage

import (
	"image"
	"image/color"
)

// Color is an 8-bit RGB triplet. The zero value is black.
type Color struct {
	R, G, B uint8
}

// NewColorFromColor converts any color.Color into a Color.
func NewColorFromColor(c color.Color) Color {
	r, g, b, _ := c.RGBA()
	return Color{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// RGBA implements color.Color.
func (c Color) RGBA() (uint32, uint32, uint32, uint32) {
	return color.NRGBA{c.R, c.G, c.B, 255}.RGBA()
}

// Image is a dense 8-bit RGB image stored as a flat row-major slice.
type Image struct {
	data          []Color
	width, height int
}

// NewImage returns a blank image of the given dimensions.
func NewImage(width, height int) *Image {
	return &Image{
		data:   make([]Color, width*height),
		width:  width,
		height: height,
	}
}

// NewImageFromStdImage copies a standard library image into an Image.
func NewImageFromStdImage(img image.Image) *Image {
	bounds := img.Bounds()
	out := NewImage(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.SetXY(x-bounds.Min.X, y-bounds.Min.Y, NewColorFromColor(img.At(x, y)))
		}
	}
	return out
}

func (i *Image) kxy(x, y int) int {
	return (y * i.width) + x
}

// In returns whether the point is in the image's bounds.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

// Width returns the horizontal dimension of the image.
func (i *Image) Width() int {
	return i.width
}

// Height returns the vertical dimension of the image.
func (i *Image) Height() int {
	return i.height
}

// Bounds implements image.Image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// ColorModel implements image.Image.
func (i *Image) ColorModel() color.Model {
	return color.NRGBAModel
}

// At implements image.Image.
func (i *Image) At(x, y int) color.Color {
	c := i.data[i.kxy(x, y)]
	return color.NRGBA{c.R, c.G, c.B, 255}
}

// GetXY returns the color at (x, y).
func (i *Image) GetXY(x, y int) Color {
	return i.data[i.kxy(x, y)]
}

// SetXY sets the color at (x, y).
func (i *Image) SetXY(x, y int, c Color) {
	i.data[i.kxy(x, y)] = c
}

// Clone returns a deep copy of the image.
func (i *Image) Clone() *Image {
	out := NewImage(i.width, i.height)
	copy(out.data, i.data)
	return out
}

// SubImage copies out the part of the image within the given rectangle,
// clamped to the image bounds.
func (i *Image) SubImage(r image.Rectangle) *Image {
	r = r.Intersect(i.Bounds())
	out := NewImage(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.SetXY(x-r.Min.X, y-r.Min.Y, i.GetXY(x, y))
		}
	}
	return out
}

// ToGray converts the image to a grayscale plane using the standard
// luminance weights.
func (i *Image) ToGray() *GrayImage {
	out := NewGrayImage(i.width, i.height)
	for k, c := range i.data {
		v := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		out.data[k] = uint8(v + 0.5)
	}
	return out
}
