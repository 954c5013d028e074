package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/moodlens/internal/annotate"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/encode"
	"github.com/ayusman/moodlens/internal/logging"
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// Status values reported by Start and Stop.
const (
	StatusStarted = "started"
	StatusStopped = "stopped"
)

// State is the controller's lifecycle position.
type State int

const (
	// Idle means no session is armed: never started or stop requested.
	Idle State = iota
	// Armed means a session is started and no stream is open.
	Armed
	// Streaming means at least one stream is running.
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Streaming:
		return "streaming"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config tunes the annotation loop.
type Config struct {
	// Threshold is the inclusive minimum confidence a detection needs to be
	// counted and drawn.
	Threshold float64
	// ScalePercent is applied to the frame once per qualifying detection.
	ScalePercent int
	// JPEGQuality of emitted frames.
	JPEGQuality int
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.4,
		ScalePercent: 80,
		JPEGQuality:  encode.DefaultQuality,
	}
}

// StartResult is returned by Start.
type StartResult struct {
	Status    string    `json:"status"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// Summary describes a session's counts.
type Summary struct {
	Status    string         `json:"status"`
	SessionID string         `json:"session_id"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt *time.Time     `json:"stopped_at,omitempty"`
	Counts    map[string]int `json:"summary"`
	Total     int            `json:"total"`
	// Recorded is false for the placeholder session that exists before the
	// first Start and never had a stream.
	Recorded bool `json:"-"`
}

// FrameEvent is published for every emitted frame.
type FrameEvent struct {
	SessionID  string               `json:"session_id"`
	Frame      int                  `json:"frame"`
	Detections []detector.Detection `json:"detections"`
	Counts     map[string]int       `json:"summary"`
	Total      int                  `json:"total"`
	Timestamp  time.Time            `json:"timestamp"`
}

// FrameObserver receives frame events. It runs on the stream goroutine and
// must not block.
type FrameObserver func(FrameEvent)

// state is the mutable session owned by the controller.
type state struct {
	id            string
	startedAt     time.Time
	stoppedAt     *time.Time
	started       bool
	streamed      bool
	stopRequested bool
	agg           *Aggregator
}

func newState() *state {
	return &state{
		id:        uuid.New().String(),
		startedAt: time.Now(),
		agg:       NewAggregator(),
	}
}

// Controller runs the start/stop state machine and hands out streams.
// All session state is guarded by mu.
type Controller struct {
	mu       sync.Mutex
	current  *state
	active   int
	cameras  capture.Factory
	detector detector.Detector
	annot    *annotate.Annotator
	encoder  *encode.Encoder
	config   Config
	logger   logrus.FieldLogger
	observer FrameObserver
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig overrides the loop settings.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithObserver registers a frame observer.
func WithObserver(fn FrameObserver) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// NewController creates a controller that opens a fresh camera from cameras
// for every stream and runs det over each frame.
func NewController(cameras capture.Factory, det detector.Detector, opts ...Option) *Controller {
	c := &Controller{
		current:  newState(),
		cameras:  cameras,
		detector: det,
		annot:    annotate.New(),
		config:   DefaultConfig(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.encoder = encode.New(c.config.JPEGQuality)
	return c
}

// Start begins a new session: counts are cleared and the stop flag reset.
// A stream that is already running keeps going and counts into the new
// session.
func (c *Controller) Start() StartResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active > 0 {
		c.logger.WithFields(logging.Fields{
			"previous_session": c.current.id,
			"active_streams":   c.active,
		}).Warn("session restarted while a stream is running")
	}

	c.current = newState()
	c.current.started = true

	c.logger.WithField("session_id", c.current.id).Info("session started")

	return StartResult{
		Status:    StatusStarted,
		SessionID: c.current.id,
		StartedAt: c.current.startedAt,
	}
}

// Stop requests that running streams end and returns the counts so far.
// It does not wait for streams to observe the request and does not clear
// the counts. Calling Stop while idle is harmless.
func (c *Controller) Stop() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if !cur.stopRequested {
		now := time.Now()
		cur.stoppedAt = &now
	}
	cur.stopRequested = true

	sum := c.summaryLocked(StatusStopped)
	c.logger.WithFields(logging.Fields{
		"session_id": cur.id,
		"total":      sum.Total,
	}).Info("session stop requested")

	return sum
}

// Snapshot returns the live counts without changing state.
func (c *Controller) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked(c.stateLocked().String())
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// ActiveStreams returns the number of open streams.
func (c *Controller) ActiveStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// OpenStream acquires a new camera and returns a stream over it. When the
// device cannot be opened it returns ErrDeviceUnavailable and no handle
// remains open.
func (c *Controller) OpenStream() (*Stream, error) {
	cam := c.cameras()
	if err := cam.Open(); err != nil {
		cam.Close()
		c.logger.WithError(err).Warn("capture device unavailable")
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	c.active++
	c.current.streamed = true
	id := c.current.id
	c.mu.Unlock()

	c.logger.WithField("session_id", id).Info("stream opened")

	return &Stream{c: c, cam: cam}, nil
}

func (c *Controller) stateLocked() State {
	switch {
	case c.active > 0:
		return Streaming
	case c.current.started && !c.current.stopRequested:
		return Armed
	default:
		return Idle
	}
}

func (c *Controller) summaryLocked(status string) Summary {
	snap := c.current.agg.Snapshot()
	return Summary{
		Status:    status,
		SessionID: c.current.id,
		StartedAt: c.current.startedAt,
		StoppedAt: c.current.stoppedAt,
		Counts:    snap.Counts,
		Total:     snap.Total,
		Recorded:  c.current.started || c.current.streamed,
	}
}

// stopRequested reports whether the current session asked streams to end.
func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.stopRequested
}

// record counts dets into the current session and returns the event data.
func (c *Controller) record(dets []detector.Detection) (string, Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dets {
		c.current.agg.Increment(d.Label)
	}
	return c.current.id, c.current.agg.Snapshot()
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
}
