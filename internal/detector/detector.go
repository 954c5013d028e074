// Package detector runs pretrained emotion detection models over video frames.
package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// Detection is one labelled bounding box reported by a detector.
type Detection struct {
	ClassID    int             `json:"class_id"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Known reports whether the detection carries a label from the emotion set.
func (d Detection) Known() bool {
	return d.Label != ""
}

// Detector defines the interface for frame detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detections in the model's
	// native order. Returns an empty slice if nothing is detected.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for detection backends.
type Config struct {
	// ModelPath is the ONNX model file or the weights handed to the sidecar.
	ModelPath string

	// LibraryPath points at the onnxruntime shared library.
	LibraryPath string

	// InputSize is the square model input in pixels (default: 640).
	InputSize int

	// ScoreThreshold drops candidates before suppression. Kept low so the
	// stream threshold stays authoritative.
	ScoreThreshold float64

	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float64

	// Labels maps class indices to names.
	Labels []string

	// ScriptPath and Python configure the sidecar backend.
	ScriptPath string
	Python     string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputSize:      640,
		ScoreThreshold: 0.1,
		NMSThreshold:   0.45,
		Labels:         EmotionLabels(),
		Python:         "python3",
	}
}
