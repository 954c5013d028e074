package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/config"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/model"
	"github.com/ayusman/moodlens/testdata"
)

func writeBundle(t *testing.T, root string, manifest model.Manifest, output string) {
	t.Helper()

	dir := filepath.Join(root, manifest.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create bundle dir: %v", err)
	}
	data, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, "model.json"), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	script := "#!/bin/sh\ncat >/dev/null\necho '" + output + "'\n"
	if err := os.WriteFile(filepath.Join(dir, manifest.Executable), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
}

func writeWAV(t *testing.T, sampleRate, channels, seconds int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	data := make([]int, sampleRate*channels*seconds)
	for i := range data {
		data[i] = (i % 200) * 100
	}
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to close encoder: %v", err)
	}
	f.Close()

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read wav: %v", err)
	}
	return out
}

func newApp(t *testing.T) (*httptest.Server, *capture.MockCamera) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	modelsDir := filepath.Join(tmpDir, "models")
	writeBundle(t, modelsDir, model.Manifest{
		Name:       "mental-roberta",
		Kind:       model.KindMentalHealth,
		Executable: "run.sh",
		Labels:     []string{"Normal", "Anxiety"},
		Device:     "cpu",
	}, `{"success":true,"probabilities":{"Normal":0.25,"Anxiety":0.75}}`)
	writeBundle(t, modelsDir, model.Manifest{
		Name:       "text-emotion",
		Kind:       model.KindTextEmotion,
		Executable: "run.sh",
		Labels:     []string{"joy", "sadness"},
	}, `{"success":true,"probabilities":{"joy":0.9,"sadness":0.1}}`)
	writeBundle(t, modelsDir, model.Manifest{
		Name:       "voice-emotion",
		Kind:       model.KindVoiceEmotion,
		Executable: "run.sh",
	}, `{"success":true,"label":"calm","confidence":0.66}`)

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(tmpDir, "moodlens.db")
	cfg.Models.Dir = modelsDir

	frames := testdata.Sequence(3, 320, 240)
	t.Cleanup(func() { testdata.CloseAll(frames) })
	cam := capture.NewMockCamera(frames, true)

	det := detector.NewScriptedDetector(
		[]detector.Detection{detector.Emotion("happy", 0.9)},
		[]detector.Detection{detector.Emotion("sad", 0.5), detector.Emotion("happy", 0.3)},
		[]detector.Detection{detector.Emotion("neutral", 0.4), detector.Emotion("ghost", 0.99)},
	)

	application, err := app.New(cfg, nil, app.WithCameraFactory(cam.Factory()), app.WithDetector(det))
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { application.Close() })

	ts := httptest.NewServer(application.Handler())
	t.Cleanup(ts.Close)
	return ts, cam
}

func TestE2E_VideoSessionWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	ts, cam := newApp(t)
	client := ts.Client()

	t.Run("Start", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/start")
		if err != nil {
			t.Fatalf("start error = %v", err)
		}
		defer resp.Body.Close()

		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		if body["status"] != "started" {
			t.Errorf("status = %v, want started", body["status"])
		}
	})

	t.Run("StreamThenStop", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/video-emotion-detection")
		if err != nil {
			t.Fatalf("stream error = %v", err)
		}
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		frames := 0
		for frames < 4 {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				t.Fatalf("stream ended after %d frames: %v", frames, err)
			}
			if bytes.Equal(line, []byte("--frame\r\n")) {
				frames++
			}
		}

		stop, err := client.Get(ts.URL + "/stop")
		if err != nil {
			t.Fatalf("stop error = %v", err)
		}
		var summary struct {
			Status  string         `json:"status"`
			Summary map[string]int `json:"summary"`
			Total   int            `json:"total"`
		}
		json.NewDecoder(stop.Body).Decode(&summary)
		stop.Body.Close()

		want := map[string]int{"happy": 1, "sad": 1, "neutral": 1}
		if summary.Status != "stopped" || summary.Total != 3 {
			t.Errorf("summary = %+v, want total 3", summary)
		}
		for label, n := range want {
			if summary.Summary[label] != n {
				t.Errorf("summary[%s] = %d, want %d", label, summary.Summary[label], n)
			}
		}

		done := make(chan struct{})
		go func() {
			io.Copy(io.Discard, reader)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not end after stop")
		}
	})

	t.Run("StreamAfterStopIsEmpty", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/video-emotion-detection")
		if err != nil {
			t.Fatalf("stream error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if len(body) != 0 {
			t.Errorf("expected empty stream after stop, got %d bytes", len(body))
		}
	})

	t.Run("SessionPersisted", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		defer resp.Body.Close()

		var list struct {
			Sessions []struct {
				ID      string         `json:"id"`
				Summary map[string]int `json:"summary"`
				Total   int            `json:"total"`
			} `json:"sessions"`
		}
		json.NewDecoder(resp.Body).Decode(&list)
		if len(list.Sessions) != 1 || list.Sessions[0].Total != 3 {
			t.Errorf("sessions = %+v, want one with total 3", list.Sessions)
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for cam.Opens() != cam.Closes() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if cam.Opens() != cam.Closes() {
		t.Errorf("camera opens = %d, closes = %d", cam.Opens(), cam.Closes())
	}
}

func TestE2E_Predictions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	ts, _ := newApp(t)
	client := ts.Client()

	t.Run("Health", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("health error = %v", err)
		}
		defer resp.Body.Close()

		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		if body["status"] != "healthy" || body["model_device"] != "cpu" {
			t.Errorf("health = %v", body)
		}
	})

	t.Run("MentalHealth", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/predict-mental-health", "application/json", strings.NewReader(`{"text":"I feel on edge"}`))
		if err != nil {
			t.Fatalf("predict error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Result []map[string]interface{} `json:"result"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Result) != 1 || body.Result[0]["predicted_status"] != "Anxiety" {
			t.Errorf("result = %+v", body.Result)
		}
		if body.Result[0]["probability_Anxiety"] != 0.75 {
			t.Errorf("probability_Anxiety = %v, want 0.75", body.Result[0]["probability_Anxiety"])
		}
	})

	t.Run("TextEmotion", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/predict-emotion-text-new", "application/json", strings.NewReader(`{"text":"sunny day"}`))
		if err != nil {
			t.Fatalf("predict error = %v", err)
		}
		defer resp.Body.Close()

		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		if body["predicted_emotion"] != "joy" || body["text"] != "sunny day" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("TextEmotionRequiresText", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/predict-emotion-text-new", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("predict error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("Voice", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", "clip.wav")
		part.Write(writeWAV(t, 44100, 2, 1))
		mw.Close()

		resp, err := client.Post(ts.URL+"/predict-emotion-voice/", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("predict error = %v", err)
		}
		defer resp.Body.Close()

		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		if body["emotion"] != "calm" || body["confidence"] != 0.66 {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("VoiceGarbage", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", "clip.wav")
		part.Write([]byte("not a wav file"))
		mw.Close()

		resp, err := client.Post(ts.URL+"/predict-emotion-voice/", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("predict error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		if body["error"] != "Failed to process audio file" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("History", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/predictions")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Predictions []map[string]interface{} `json:"predictions"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Predictions) != 3 {
			t.Errorf("len(predictions) = %d, want 3", len(body.Predictions))
		}
	})
}
