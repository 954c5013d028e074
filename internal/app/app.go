// Package app wires the moodlens components into a runnable gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/config"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/emitter"
	"github.com/ayusman/moodlens/internal/logging"
	"github.com/ayusman/moodlens/internal/model"
	"github.com/ayusman/moodlens/internal/server"
	"github.com/ayusman/moodlens/internal/session"
	"github.com/ayusman/moodlens/internal/store"
)

// App owns every long-lived component of the gateway.
type App struct {
	config     *config.Config
	logger     *logrus.Logger
	store      *store.Store
	models     *model.Manager
	detector   detector.Detector
	controller *session.Controller
	hub        *server.Hub
	mqtt       *emitter.MQTTEmitter
	server     *server.Server

	cameras      capture.Factory
	mentalHealth classifier.TextClassifier
	textEmotion  classifier.TextClassifier
	voice        classifier.VoiceClassifier
	device       string

	closeOnce sync.Once
}

// Option customizes App construction.
type Option func(*App)

// WithCameraFactory replaces the configured capture device.
func WithCameraFactory(f capture.Factory) Option {
	return func(a *App) {
		a.cameras = f
	}
}

// WithDetector replaces the configured detection backend.
func WithDetector(d detector.Detector) Option {
	return func(a *App) {
		a.detector = d
	}
}

// New builds the gateway from cfg. Missing classifier bundles or a missing
// detector model disable the corresponding endpoints instead of failing.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{config: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}
	a.loadModels()

	if a.detector == nil {
		det, err := newDetector(cfg.Detector)
		if err != nil {
			logger.WithError(err).Warn("emotion detector unavailable, video endpoints disabled")
		} else {
			a.detector = det
			logger.WithField("backend", cfg.Detector.Backend).Info("emotion detector ready")
		}
	}
	if a.cameras == nil {
		a.cameras = capture.NewFactory(capture.Config{
			DeviceID: cfg.Camera.DeviceID,
			File:     cfg.Camera.File,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		})
	}

	a.hub = server.NewHub(logger)
	if a.detector != nil {
		a.controller = session.NewController(a.cameras, a.detector,
			session.WithConfig(session.Config{
				Threshold:    cfg.Stream.ConfidenceThreshold,
				ScalePercent: cfg.Stream.ScalePercent,
				JPEGQuality:  cfg.Stream.JPEGQuality,
			}),
			session.WithLogger(logger),
			session.WithObserver(a.hub.Publish),
		)
	}

	if cfg.MQTT.Broker != "" {
		a.mqtt = emitter.NewMQTTEmitter(cfg.MQTT, logger)
	}

	a.server = server.New(a.serverConfig())
	return a, nil
}

func (a *App) openStore() error {
	path := a.config.Store.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := store.New(path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	a.store = st
	return nil
}

// loadModels discovers classifier bundles and binds the ones present.
func (a *App) loadModels() {
	a.models = model.NewManager(a.config.Models.Dir)
	if err := a.models.Discover(); err != nil {
		a.logger.WithError(err).WithField("dir", a.config.Models.Dir).Warn("model discovery failed")
	}
	exec := model.NewExecutor(time.Duration(a.config.Models.TimeoutMS) * time.Millisecond)

	if m, err := classifier.NewTextModel(a.models, exec, model.KindMentalHealth); err == nil {
		a.mentalHealth = m
		a.device = m.Device()
	} else {
		a.logger.WithError(err).Warn("mental health model unavailable")
	}
	if m, err := classifier.NewTextModel(a.models, exec, model.KindTextEmotion); err == nil {
		a.textEmotion = m
		if a.device == "" {
			a.device = m.Device()
		}
	} else {
		a.logger.WithError(err).Warn("text emotion model unavailable")
	}
	if m, err := classifier.NewVoiceModel(a.models, exec); err == nil {
		a.voice = m
	} else {
		a.logger.WithError(err).Warn("voice emotion model unavailable")
	}

	if a.config.Detector.Device != "" {
		a.device = a.config.Detector.Device
	}

	a.logger.WithField("count", len(a.models.List())).Info("model bundles loaded")
}

func newDetector(cfg config.DetectorConfig) (detector.Detector, error) {
	dc := detector.DefaultConfig()
	dc.ModelPath = cfg.ModelPath
	dc.LibraryPath = cfg.ONNXLibraryPath
	if cfg.InputSize > 0 {
		dc.InputSize = cfg.InputSize
	}
	if cfg.NMSThreshold > 0 {
		dc.NMSThreshold = cfg.NMSThreshold
	}
	dc.ScriptPath = cfg.ScriptPath
	if cfg.Python != "" {
		dc.Python = cfg.Python
	}

	switch cfg.Backend {
	case "sidecar":
		return detector.NewSidecarDetector(dc)
	default:
		return detector.NewONNXDetector(dc)
	}
}

func (a *App) serverConfig() server.Config {
	sc := server.Config{
		Controller:     a.controller,
		Store:          a.store,
		MentalHealth:   a.mentalHealth,
		TextEmotion:    a.textEmotion,
		Voice:          a.voice,
		Hub:            a.hub,
		Logger:         a.logger,
		StaticDir:      a.config.Server.StaticDir,
		ModelDevice:    a.device,
		RateLimitRPS:   a.config.Server.RateLimitRPS,
		RateLimitBurst: a.config.Server.RateLimitBurst,
		CORSOrigins:    a.config.Server.CORSOrigins,
		MaxUploadBytes: int64(a.config.Server.MaxUploadMB) << 20,
	}
	// A nil *MQTTEmitter must not become a non-nil interface.
	if a.mqtt != nil {
		sc.Publisher = a.mqtt
	}
	return sc
}

// Handler returns the HTTP handler, mainly for tests.
func (a *App) Handler() *server.Server {
	return a.server
}

// Controller returns the video session controller, or nil when no detector
// is available.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Store returns the history store.
func (a *App) Store() *store.Store {
	return a.store
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)

	if a.mqtt != nil {
		if err := a.mqtt.Connect(ctx); err != nil {
			a.logger.WithError(err).Warn("mqtt unavailable, summaries will not be published")
		}
	}

	err := a.server.Run(ctx, a.config.Server.Addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the detector, the broker connection and the store.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.controller != nil {
			a.controller.Stop()
		}
		if a.detector != nil {
			if err := a.detector.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close detector: %w", err))
			}
		}
		if a.mqtt != nil {
			a.mqtt.Disconnect()
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		a.logger.Info("application stopped")
	})
	return errors.Join(errs...)
}
