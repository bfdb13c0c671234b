package rimage

import (
	"image"
	"image/color"
	_ "image/jpeg" // decoder
	"image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// ToPrettyPicture renders a depth-like map as a grayscale ramp between
// hardMin and hardMax (map units). When both are zero the observed valid
// range is used. Invalid pixels come out black.
func (fm *FloatMap) ToPrettyPicture(hardMin, hardMax float32) image.Image {
	min, max := hardMin, hardMax
	if min == 0 && max == 0 {
		min, max = fm.MinMax()
	}
	img := image.NewGray(image.Rect(0, 0, fm.Width(), fm.Height()))
	span := float64(max - min)
	for y := 0; y < fm.Height(); y++ {
		for x := 0; x < fm.Width(); x++ {
			if !fm.IsValidXY(x, y) {
				continue
			}
			v := float64(fm.GetXY(x, y))
			if v < float64(min) {
				v = float64(min)
			}
			if v > float64(max) {
				v = float64(max)
			}
			scale := 1.0
			if span > 0 {
				scale = (v - float64(min)) / span
			}
			img.SetGray(x, y, color.Gray{uint8(55 + 200*scale)})
		}
	}
	return img
}

// Thumbnail returns the image shrunk to at most the given width, preserving
// aspect ratio.
func Thumbnail(img image.Image, maxWidth uint) image.Image {
	return resize.Thumbnail(maxWidth, maxWidth, img, resize.Bilinear)
}

// ReadImageFromFile decodes a PNG or JPEG file.
func ReadImageFromFile(path string) (*Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open image file %q", path)
	}
	defer func() {
		goutils.UncheckedErrorFunc(f.Close)
	}()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image file %q", path)
	}
	return NewImageFromStdImage(img), nil
}

// WriteImageToFile encodes the image to the given path as PNG.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create image file %q", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}

// ToGray16 converts a depth-like map into a 16-bit image with one unit per
// map unit, the common interchange format for metric depth.
func (fm *FloatMap) ToGray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, fm.Width(), fm.Height()))
	for y := 0; y < fm.Height(); y++ {
		for x := 0; x < fm.Width(); x++ {
			v := fm.GetXY(x, y)
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			img.SetGray16(x, y, color.Gray16{uint16(v + 0.5)})
		}
	}
	return img
}
