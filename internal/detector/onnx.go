package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// ErrModelNotFound is returned when the detector weights are missing.
var ErrModelNotFound = errors.New("detector model not found")

// ONNXDetector runs a YOLOv8 detection model exported to ONNX.
// Sessions are not safe for concurrent runs, so Detect is serialized.
type ONNXDetector struct {
	config  Config
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	anchors int
	classes int
}

// NewONNXDetector loads the model and preallocates its tensors.
func NewONNXDetector(config Config) (*ONNXDetector, error) {
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}
	if len(config.Labels) == 0 {
		config.Labels = EmotionLabels()
	}

	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, config.ModelPath)
	}
	absPath, err := filepath.Abs(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for model: %w", err)
	}

	if config.LibraryPath != "" {
		ort.SetSharedLibraryPath(config.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	size := int64(config.InputSize)
	classes := len(config.Labels)
	anchors := anchorCount(config.InputSize)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+classes), int64(anchors)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	// CUDA is optional; fall back to CPU when unavailable
	if cuda, err := ort.NewCUDAProviderOptions(); err == nil {
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": "0"}); err == nil {
			_ = options.AppendExecutionProviderCUDA(cuda)
		}
	}

	session, err := ort.NewAdvancedSession(
		absPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXDetector{
		config:  config,
		session: session,
		input:   input,
		output:  output,
		anchors: anchors,
		classes: classes,
	}, nil
}

// Detect runs the model over frame.
func (d *ONNXDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector closed")
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	copy(d.input.GetData(), data)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("failed to run ONNX inference: %w", err)
	}

	scaleX := float64(frame.Cols()) / float64(size)
	scaleY := float64(frame.Rows()) / float64(size)
	cands := decodeYOLO(d.output.GetData(), d.classes, d.anchors, scaleX, scaleY, d.config.ScoreThreshold, d.config.Labels)

	return suppress(cands, d.config.NMSThreshold), nil
}

// Close releases ONNX resources. The shared runtime environment stays up.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}

	err := d.session.Destroy()
	d.input.Destroy()
	d.output.Destroy()
	d.session = nil

	return err
}
