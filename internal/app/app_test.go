package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/config"
	"github.com/ayusman/moodlens/internal/detector"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "data", "moodlens.db")
	cfg.Models.Dir = filepath.Join(dir, "models")
	cfg.Detector.ModelPath = filepath.Join(dir, "missing.onnx")
	return cfg
}

func TestNew_WithoutDetectorModel(t *testing.T) {
	a, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Controller() != nil {
		t.Error("expected no controller without a detector model")
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /start status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestNew_WithInjectedDetector(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	det := detector.NewScriptedDetector()

	a, err := New(testConfig(t), nil, WithCameraFactory(cam.Factory()), WithDetector(det))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.Controller() == nil {
		t.Fatal("expected a controller")
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /start status = %d, want %d", rec.Code, http.StatusOK)
	}

	// No bundles were discovered, so classifiers answer 503.
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict-emotion-text-new", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST /predict-emotion-text-new status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !det.Closed() {
		t.Error("expected detector to be closed")
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
