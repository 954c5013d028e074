// Package testdata builds synthetic frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame returns a w x h BGR frame with a filled rectangle so encoders and
// detectors see non-uniform content. The caller owns the Mat.
func Frame(w, h int, shade uint8) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(shade), float64(shade), float64(shade), 0), h, w, gocv.MatTypeCV8UC3)
	rect := image.Rect(w/4, h/4, w*3/4, h*3/4)
	gocv.Rectangle(&mat, rect, color.RGBA{R: 200, G: 120, B: 40}, -1)
	return &mat
}

// Sequence returns n frames of the given size with varying shades.
func Sequence(n, w, h int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = Frame(w, h, uint8(20*i%255))
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
