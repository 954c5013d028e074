// Package server provides the HTTP gateway for the moodlens inference service.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/logging"
	"github.com/ayusman/moodlens/internal/server/api"
	"github.com/ayusman/moodlens/internal/session"
	"github.com/ayusman/moodlens/internal/store"
)

// SummaryPublisher forwards stop summaries to an external sink.
type SummaryPublisher interface {
	Publish(ctx context.Context, sum session.Summary) error
}

// Config holds the server configuration.
type Config struct {
	Controller   *session.Controller
	Store        *store.Store
	MentalHealth classifier.TextClassifier
	TextEmotion  classifier.TextClassifier
	Voice        classifier.VoiceClassifier
	Hub          *Hub
	Publisher    SummaryPublisher
	Logger       logrus.FieldLogger

	StaticDir      string
	ModelDevice    string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server represents the HTTP server for the moodlens gateway.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	logger  logrus.FieldLogger
	limiter *rateLimiter
	start   time.Time
}

type stopResponse struct {
	Status  string         `json:"status"`
	Summary map[string]int `json:"summary"`
	Total   int            `json:"total"`
}

type healthResponse struct {
	Status        string `json:"status"`
	ModelDevice   string `json:"model_device"`
	Uptime        string `json:"uptime"`
	ActiveStreams int    `json:"active_streams"`
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.ModelDevice == "" {
		config.ModelDevice = "cpu"
	}
	if config.RateLimitRPS <= 0 {
		config.RateLimitRPS = 5
	}
	if config.RateLimitBurst <= 0 {
		config.RateLimitBurst = 10
	}

	s := &Server{
		config:  config,
		mux:     http.NewServeMux(),
		logger:  config.Logger,
		limiter: newRateLimiter(rate.Limit(config.RateLimitRPS), config.RateLimitBurst),
		start:   time.Now(),
	}
	s.setupRoutes()
	s.handler = withRequestID(withLogging(s.logger, withCORS(config.CORSOrigins, s.mux)))
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	if s.config.Controller != nil {
		s.mux.HandleFunc("/start", s.handleStart)
		s.mux.HandleFunc("/stop", s.handleStop)
		s.mux.Handle("/video-emotion-detection", NewVideoHandler(s.config.Controller, s.logger))
	}

	predictions := api.NewPredictionHandler(api.PredictionConfig{
		MentalHealth:   s.config.MentalHealth,
		TextEmotion:    s.config.TextEmotion,
		Voice:          s.config.Voice,
		Store:          s.config.Store,
		Logger:         s.logger,
		MaxUploadBytes: s.config.MaxUploadBytes,
	})
	s.mux.HandleFunc("/predict-mental-health", s.limiter.limit(s.logger, predictions.MentalHealth))
	s.mux.HandleFunc("/predict-emotion-text-new", s.limiter.limit(s.logger, predictions.TextEmotion))
	s.mux.HandleFunc("/predict-emotion-voice/", s.limiter.limit(s.logger, predictions.Voice))

	if s.config.Store != nil {
		var live api.Snapshotter
		if s.config.Controller != nil {
			live = s.config.Controller
		}
		sessions := api.NewSessionsHandler(s.config.Store, live)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
		s.mux.Handle("/api/predictions", api.NewPredictionsHandler(s.config.Store))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/ws/detections", s.config.Hub)
	}

	var static http.Handler
	if s.config.StaticDir != "" {
		static = http.FileServer(http.Dir(s.config.StaticDir))
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			api.WriteJSON(w, http.StatusOK, map[string]string{
				"message": "moodlens inference gateway is running",
			})
			return
		}
		if static == nil {
			api.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		static.ServeHTTP(w, r)
	})
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	active := 0
	if s.config.Controller != nil {
		active = s.config.Controller.ActiveStreams()
	}

	api.WriteJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		ModelDevice:   s.config.ModelDevice,
		Uptime:        time.Since(s.start).Round(time.Second).String(),
		ActiveStreams: active,
	})
}

// handleStart arms a fresh session.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	api.WriteJSON(w, http.StatusOK, s.config.Controller.Start())
}

// handleStop requests running streams to end and reports the counts. The
// summary of a session that was started or streamed is persisted and
// published on a best-effort basis.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sum := s.config.Controller.Stop()
	entry := s.logger.WithFields(logging.Fields{
		logging.RequestIDKey: RequestID(r.Context()),
		"session_id":         sum.SessionID,
	})

	if !sum.Recorded {
		entry.Debug("stop without a session, nothing to record")
	}
	if sum.Recorded && s.config.Store != nil {
		err := s.config.Store.Sessions().Save(&store.Session{
			ID:        sum.SessionID,
			StartedAt: sum.StartedAt,
			StoppedAt: sum.StoppedAt,
			Counts:    sum.Counts,
			Total:     sum.Total,
		})
		if err != nil {
			entry.WithError(err).Error("failed to persist session summary")
		}
	}
	if sum.Recorded && s.config.Publisher != nil {
		if err := s.config.Publisher.Publish(r.Context(), sum); err != nil {
			entry.WithError(err).Warn("failed to publish session summary")
		}
	}

	counts := sum.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	api.WriteJSON(w, http.StatusOK, stopResponse{
		Status:  sum.Status,
		Summary: counts,
		Total:   sum.Total,
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Requests still in
// flight at that point, open video streams included, have their contexts
// cancelled before the server drains.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	cancelRequests()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
