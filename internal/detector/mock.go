package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// ScriptedDetector is a test implementation of the Detector interface.
// Each call to Detect returns the next scripted frame result; once the script
// is exhausted it returns the fallback (empty by default).
type ScriptedDetector struct {
	mu       sync.Mutex
	frames   [][]Detection
	fallback []Detection
	err      error
	errAt    int
	calls    int
	closed   bool
}

// NewScriptedDetector creates a detector returning frames in order.
func NewScriptedDetector(frames ...[]Detection) *ScriptedDetector {
	return &ScriptedDetector{frames: frames, errAt: -1}
}

// SetFallback sets the detections returned after the script runs out.
func (m *ScriptedDetector) SetFallback(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = dets
}

// SetError makes the call with zero-based index at fail with err.
func (m *ScriptedDetector) SetError(at int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errAt = at
	m.err = err
}

// Detect returns the scripted detections for this call.
func (m *ScriptedDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++

	if m.err != nil && call == m.errAt {
		return nil, m.err
	}
	if call < len(m.frames) {
		return m.frames[call], nil
	}
	return m.fallback, nil
}

// Calls returns how many times Detect ran.
func (m *ScriptedDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *ScriptedDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *ScriptedDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Emotion builds a detection for an emotion label. Labels outside the
// emotion set produce an unknown detection with class id -1.
func Emotion(label string, confidence float64) Detection {
	d := Detection{ClassID: -1, Confidence: confidence}
	for i, l := range emotionLabels {
		if l == label {
			d.ClassID = i
			d.Label = l
			break
		}
	}
	d.Box.Min.X, d.Box.Min.Y = 40, 40
	d.Box.Max.X, d.Box.Max.Y = 140, 160
	return d
}
