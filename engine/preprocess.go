package engine

import (
	"image"

	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/utils"
)

// preprocess applies the configured uniform resize. Gray conversion happens
// later, right before stereo matching; no denoising is applied so the
// matcher sees raw edges.
func (e *Engine) preprocess(img *rimage.Image) *rimage.Image {
	if e.conf.Scale <= 0 || e.conf.Scale == 1.0 {
		return img
	}
	w := int(float64(img.Width())*e.conf.Scale + 0.5)
	h := int(float64(img.Height())*e.conf.Scale + 0.5)
	return rimage.ResizeImage(img, w, h)
}

// crop43ROI returns the largest centered region with a 3:4 width-to-height
// aspect that fits in a w x h frame.
func crop43ROI(w, h int) image.Rectangle {
	cw := utils.MinInt(w, h*3/4)
	ch := utils.MinInt(h, w*4/3)
	x0 := (w - cw) / 2
	y0 := (h - ch) / 2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func cropMap(fm *rimage.FloatMap, roi image.Rectangle) *rimage.FloatMap {
	if fm == nil {
		return nil
	}
	return fm.SubMap(roi)
}
