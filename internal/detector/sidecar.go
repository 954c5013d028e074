package detector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gocv.io/x/gocv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sidecarIdleTimeout is how long the worker may sit unused before it exits.
const sidecarIdleTimeout = 30 * time.Second

// SidecarDetector implements Detector using a long-lived Python worker that
// runs the ultralytics model. Frames go over stdin as a 4-byte big-endian
// length followed by JPEG bytes; the worker answers with one JSON line.
type SidecarDetector struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewSidecarDetector creates a sidecar detector.
// The Python process is started lazily on first detection.
func NewSidecarDetector(config Config) (*SidecarDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = findSidecarScript()
	}
	if script == "" {
		return nil, fmt.Errorf("emotion_detector.py not found")
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("sidecar script: %w", err)
	}
	if len(config.Labels) == 0 {
		config.Labels = EmotionLabels()
	}

	return &SidecarDetector{
		config: config,
		script: script,
	}, nil
}

// Detect sends frame to the worker and returns its detections.
func (d *SidecarDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result, err := parseSidecarResponse([]byte(line), d.config.Labels)
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()

	return result, nil
}

// Close shuts down the Python process.
func (d *SidecarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *SidecarDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	python := d.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	args := []string{d.script}
	if d.config.ModelPath != "" {
		args = append(args, "--weights", d.config.ModelPath)
	}
	d.cmd = exec.Command(python, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detector sidecar: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *SidecarDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *SidecarDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(sidecarIdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

// sidecarResponse is one line written by the worker.
type sidecarResponse struct {
	Detections []sidecarBox `json:"detections"`
	Error      string       `json:"error,omitempty"`
}

type sidecarBox struct {
	Class      int       `json:"cls"`
	Confidence float64   `json:"conf"`
	XYXY       []float64 `json:"xyxy"`
}

func parseSidecarResponse(line []byte, labels []string) ([]Detection, error) {
	var resp sidecarResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detector sidecar: %s", resp.Error)
	}

	result := make([]Detection, 0, len(resp.Detections))
	for _, b := range resp.Detections {
		if len(b.XYXY) != 4 {
			return nil, fmt.Errorf("parse response: box has %d coordinates", len(b.XYXY))
		}
		label, _ := LabelFor(labels, b.Class)
		result = append(result, Detection{
			ClassID:    b.Class,
			Label:      label,
			Confidence: b.Confidence,
			Box:        image.Rect(int(b.XYXY[0]), int(b.XYXY[1]), int(b.XYXY[2]), int(b.XYXY[3])),
		})
	}
	return result, nil
}

func findSidecarScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/emotion_detector.py",
		"../scripts/emotion_detector.py",
		filepath.Join(execDir, "scripts/emotion_detector.py"),
		filepath.Join(os.Getenv("HOME"), ".moodlens/scripts/emotion_detector.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".moodlens/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
