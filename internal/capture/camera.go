// Package capture provides frame acquisition from camera devices and video
// files using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("failed to read frame")
)

// Camera defines the interface for frame sources.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller owns the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

// Factory creates an independent, unopened camera handle. Every stream gets
// its own handle from the factory.
type Factory func() Camera

// Config selects and tunes a capture device.
type Config struct {
	DeviceID int
	// File, when set, replays a video file instead of a live device.
	File   string
	Width  int
	Height int
	FPS    int
}

// cameraImpl manages video capture from a device or file using GoCV.
type cameraImpl struct {
	cfg     Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a new Camera for the given configuration.
func NewCamera(cfg Config) Camera {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	return &cameraImpl{cfg: cfg}
}

// NewFactory returns a Factory producing cameras for cfg.
func NewFactory(cfg Config) Factory {
	return func() Camera {
		return NewCamera(cfg)
	}
}

// Open opens the device. A failed open leaves nothing to release.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var source any = c.cfg.DeviceID
	if c.cfg.File != "" {
		source = c.cfg.File
	}

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		// gocv hands back an allocated capture even when opening fails
		if capture != nil {
			capture.Close()
		}
		return fmt.Errorf("open video source %v: %w", source, err)
	}

	if c.cfg.File == "" {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
		capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources. Safe to call repeatedly.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the device.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, ErrReadFailed
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: empty frame", ErrReadFailed)
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
