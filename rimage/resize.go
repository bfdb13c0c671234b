package rimage

import (
	"image"

	"golang.org/x/image/draw"
)

// ResizeImage scales the image to the given dimensions. Bilinear when
// growing; the approximate scaler when shrinking, which averages enough
// neighbors for downsampling.
func ResizeImage(img *Image, width, height int) *Image {
	if width == img.Width() && height == img.Height() {
		return img.Clone()
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if width < img.Width() || height < img.Height() {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	}
	return NewImageFromStdImage(dst)
}

// ResizeFloatMap scales the map to the given dimensions with bilinear
// interpolation of the raw values. Useful for model outputs and for
// upsampling coarse correction grids; it does not treat zeros specially.
func ResizeFloatMap(fm *FloatMap, width, height int) *FloatMap {
	if width == fm.Width() && height == fm.Height() {
		return fm.Clone()
	}
	out := NewFloatMap(width, height)
	scaleX := float64(fm.Width()) / float64(width)
	scaleY := float64(fm.Height()) / float64(height)
	for y := 0; y < height; y++ {
		srcY := (float64(y)+0.5)*scaleY - 0.5
		y0 := int(srcY)
		if y0 < 0 {
			y0 = 0
		}
		y1 := y0 + 1
		if y1 >= fm.Height() {
			y1 = fm.Height() - 1
		}
		fy := srcY - float64(y0)
		if fy < 0 {
			fy = 0
		}
		for x := 0; x < width; x++ {
			srcX := (float64(x)+0.5)*scaleX - 0.5
			x0 := int(srcX)
			if x0 < 0 {
				x0 = 0
			}
			x1 := x0 + 1
			if x1 >= fm.Width() {
				x1 = fm.Width() - 1
			}
			fx := srcX - float64(x0)
			if fx < 0 {
				fx = 0
			}
			top := float64(fm.GetXY(x0, y0))*(1-fx) + float64(fm.GetXY(x1, y0))*fx
			bot := float64(fm.GetXY(x0, y1))*(1-fx) + float64(fm.GetXY(x1, y1))*fx
			out.SetXY(x, y, float32(top*(1-fy)+bot*fy))
		}
	}
	return out
}
