// Package annotate draws detections onto frames and rescales them.
package annotate

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/detector"
)

// Green is the box and label color.
var Green = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// ErrInvalidScale is returned for a scale percent outside (0, 100].
var ErrInvalidScale = errors.New("scale percent must be within (0, 100]")

// Annotator draws labelled boxes.
type Annotator struct {
	Color     color.RGBA
	Thickness int
	FontScale float64
	// LabelOffset is how far above the box the label baseline sits.
	LabelOffset int
}

// New returns an Annotator with a 2px green box and a 0.9 scale label
// drawn 10px above the box.
func New() *Annotator {
	return &Annotator{
		Color:       Green,
		Thickness:   2,
		FontScale:   0.9,
		LabelOffset: 10,
	}
}

// Draw renders d's box and label onto frame in place.
func (a *Annotator) Draw(frame *gocv.Mat, d detector.Detection) {
	gocv.Rectangle(frame, d.Box, a.Color, a.Thickness)
	org := image.Pt(d.Box.Min.X, d.Box.Min.Y-a.LabelOffset)
	gocv.PutText(frame, d.Label, org, gocv.FontHersheySimplex, a.FontScale, a.Color, a.Thickness)
}

// ScaledSize returns the dimensions after scaling w x h by percent, truncating
// each dimension to an integer.
func ScaledSize(w, h, percent int) (int, int) {
	return w * percent / 100, h * percent / 100
}

// Shrink resizes frame in place to percent of its current size using area
// interpolation. Sizes that would collapse to zero are left untouched.
func Shrink(frame *gocv.Mat, percent int) error {
	if percent <= 0 || percent > 100 {
		return ErrInvalidScale
	}
	if percent == 100 {
		return nil
	}

	w, h := ScaledSize(frame.Cols(), frame.Rows(), percent)
	if w == 0 || h == 0 {
		return nil
	}

	gocv.Resize(*frame, frame, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return nil
}
