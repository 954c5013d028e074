// Package config loads moodlens configuration from YAML, .env files and
// MOODLENS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Stream   StreamConfig   `yaml:"stream"`
	Models   ModelsConfig   `yaml:"models"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	StaticDir      string   `yaml:"static_dir"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

type CameraConfig struct {
	DeviceID int    `yaml:"device_id"`
	File     string `yaml:"file"` // replay a video file instead of a device
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FPS      int    `yaml:"fps"`
}

type DetectorConfig struct {
	Backend         string  `yaml:"backend"` // onnx or sidecar
	ModelPath       string  `yaml:"model_path"`
	ONNXLibraryPath string  `yaml:"onnx_library_path"`
	InputSize       int     `yaml:"input_size"`
	NMSThreshold    float64 `yaml:"nms_threshold"`
	ScriptPath      string  `yaml:"script_path"`
	Python          string  `yaml:"python"`
	Device          string  `yaml:"device"` // reported by /health; empty uses the model bundles' device
}

type StreamConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ScalePercent        int     `yaml:"scale_percent"`
	JPEGQuality         int     `yaml:"jpeg_quality"`
}

type ModelsConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. An empty path or a missing file
// yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = 5
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 10
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 25
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = 640
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 480
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 30
	}
	if c.Detector.Backend == "" {
		c.Detector.Backend = "onnx"
	}
	if c.Detector.ModelPath == "" {
		c.Detector.ModelPath = "models/emotion-detector/best.onnx"
	}
	if c.Detector.InputSize == 0 {
		c.Detector.InputSize = 640
	}
	if c.Detector.NMSThreshold == 0 {
		c.Detector.NMSThreshold = 0.45
	}
	if c.Detector.Python == "" {
		c.Detector.Python = "python3"
	}
	if c.Stream.ConfidenceThreshold == 0 {
		c.Stream.ConfidenceThreshold = 0.4
	}
	if c.Stream.ScalePercent == 0 {
		c.Stream.ScalePercent = 80
	}
	if c.Stream.JPEGQuality == 0 {
		c.Stream.JPEGQuality = 95
	}
	if c.Models.Dir == "" {
		c.Models.Dir = "models"
	}
	if c.Models.TimeoutMS == 0 {
		c.Models.TimeoutMS = 30000
	}
	if c.Store.Path == "" {
		c.Store.Path = "moodlens.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "moodlens/sessions"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "moodlens"
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MOODLENS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MOODLENS_CAMERA"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MOODLENS_CAMERA %q: %w", v, err)
		}
		c.Camera.DeviceID = id
	}
	if v := os.Getenv("MOODLENS_DETECTOR_BACKEND"); v != "" {
		c.Detector.Backend = v
	}
	if v := os.Getenv("MOODLENS_DETECTOR_MODEL"); v != "" {
		c.Detector.ModelPath = v
	}
	if v := os.Getenv("ONNXRUNTIME_LIB"); v != "" {
		c.Detector.ONNXLibraryPath = v
	}
	if v := os.Getenv("MOODLENS_MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("MOODLENS_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("MOODLENS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MOODLENS_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	return nil
}

// Validate checks ranges that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Stream.ConfidenceThreshold < 0 || c.Stream.ConfidenceThreshold > 1 {
		return fmt.Errorf("stream.confidence_threshold must be within [0,1], got %v", c.Stream.ConfidenceThreshold)
	}
	if c.Stream.ScalePercent < 1 || c.Stream.ScalePercent > 100 {
		return fmt.Errorf("stream.scale_percent must be within [1,100], got %d", c.Stream.ScalePercent)
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be within [1,100], got %d", c.Stream.JPEGQuality)
	}
	switch c.Detector.Backend {
	case "onnx", "sidecar":
	default:
		return fmt.Errorf("unknown detector backend %q", c.Detector.Backend)
	}
	return nil
}
