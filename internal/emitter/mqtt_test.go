package emitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayusman/moodlens/internal/config"
	"github.com/ayusman/moodlens/internal/session"
)

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:1883", "tcp://localhost:1883"},
		{"tcp://broker:1883", "tcp://broker:1883"},
		{"ssl://broker:8883", "ssl://broker:8883"},
	}
	for _, tt := range tests {
		if got := BrokerURL(tt.in); got != tt.want {
			t.Errorf("BrokerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPayload(t *testing.T) {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	stopped := started.Add(90 * time.Second)
	now := stopped.Add(time.Second)

	payload, err := BuildPayload(session.Summary{
		Status:    session.StatusStopped,
		SessionID: "abc",
		StartedAt: started,
		StoppedAt: &stopped,
		Counts:    map[string]int{"happy": 2, "fear": 1},
		Total:     3,
	}, now)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}

	var msg SummaryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.SessionID != "abc" || msg.Total != 3 {
		t.Errorf("message = %+v", msg)
	}
	if msg.Summary["happy"] != 2 || msg.Summary["fear"] != 1 {
		t.Errorf("summary = %v", msg.Summary)
	}
	if msg.StoppedAt == nil || !msg.StoppedAt.Equal(stopped) {
		t.Errorf("stopped_at = %v, want %v", msg.StoppedAt, stopped)
	}
	if !msg.PublishedAt.Equal(now) {
		t.Errorf("published_at = %v, want %v", msg.PublishedAt, now)
	}
}

func TestBuildPayload_EmptyCounts(t *testing.T) {
	payload, err := BuildPayload(session.Summary{SessionID: "x"}, time.Now())
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}

	var raw map[string]interface{}
	json.Unmarshal(payload, &raw)
	summary, ok := raw["summary"].(map[string]interface{})
	if !ok || len(summary) != 0 {
		t.Errorf("summary = %v, want empty object", raw["summary"])
	}
	if _, ok := raw["stopped_at"]; ok {
		t.Error("stopped_at should be omitted when unset")
	}
}

func TestMQTTEmitter_PublishWithoutConnect(t *testing.T) {
	e := NewMQTTEmitter(config.MQTTConfig{Broker: "localhost:1883", Topic: "t", ClientID: "c"}, nil)

	err := e.Publish(context.Background(), session.Summary{SessionID: "x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish() error = %v, want ErrNotConnected", err)
	}

	published, failed := e.Stats()
	if published != 0 || failed != 1 {
		t.Errorf("Stats() = %d, %d, want 0, 1", published, failed)
	}
}
