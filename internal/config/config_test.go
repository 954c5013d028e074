package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moodlens.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if cfg.Server.Addr != ":8000" {
		t.Errorf("expected addr :8000, got %s", cfg.Server.Addr)
	}
	if cfg.Stream.ConfidenceThreshold != 0.4 {
		t.Errorf("expected threshold 0.4, got %v", cfg.Stream.ConfidenceThreshold)
	}
	if cfg.Stream.ScalePercent != 80 {
		t.Errorf("expected scale 80, got %d", cfg.Stream.ScalePercent)
	}
	if cfg.Camera.DeviceID != 0 {
		t.Errorf("expected camera 0, got %d", cfg.Camera.DeviceID)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("expected CORS [*], got %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Detector.Backend != "onnx" {
		t.Errorf("expected onnx backend, got %s", cfg.Detector.Backend)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
camera:
  device_id: 2
stream:
  confidence_threshold: 0.6
  scale_percent: 50
detector:
  backend: sidecar
  script_path: scripts/detect.py
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Camera.DeviceID != 2 {
		t.Errorf("expected camera 2, got %d", cfg.Camera.DeviceID)
	}
	if cfg.Stream.ConfidenceThreshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", cfg.Stream.ConfidenceThreshold)
	}
	if cfg.Detector.Backend != "sidecar" {
		t.Errorf("expected sidecar backend, got %s", cfg.Detector.Backend)
	}
	// untouched fields still get defaults
	if cfg.Stream.JPEGQuality != 95 {
		t.Errorf("expected jpeg quality 95, got %d", cfg.Stream.JPEGQuality)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MOODLENS_ADDR", ":7000")
	t.Setenv("MOODLENS_CAMERA", "3")
	t.Setenv("MOODLENS_DB", "/tmp/x.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("expected addr :7000, got %s", cfg.Server.Addr)
	}
	if cfg.Camera.DeviceID != 3 {
		t.Errorf("expected camera 3, got %d", cfg.Camera.DeviceID)
	}
	if cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("expected db /tmp/x.db, got %s", cfg.Store.Path)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "server: [unclosed"},
		{"threshold out of range", "stream:\n  confidence_threshold: 1.5\n"},
		{"scale out of range", "stream:\n  scale_percent: 150\n"},
		{"unknown backend", "detector:\n  backend: tflite\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_InvalidCameraEnv(t *testing.T) {
	t.Setenv("MOODLENS_CAMERA", "front")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric camera, got nil")
	}
}
