// Package emitter publishes stopped session summaries to an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/moodlens/internal/config"
	"github.com/ayusman/moodlens/internal/logging"
	"github.com/ayusman/moodlens/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// SummaryMessage is the payload published for each stopped session.
type SummaryMessage struct {
	SessionID   string         `json:"session_id"`
	StartedAt   time.Time      `json:"started_at"`
	StoppedAt   *time.Time     `json:"stopped_at,omitempty"`
	Summary     map[string]int `json:"summary"`
	Total       int            `json:"total"`
	PublishedAt time.Time      `json:"published_at"`
}

// MQTTEmitter publishes session summaries on a single topic.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger logrus.FieldLogger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter. Call Connect before publishing.
func NewMQTTEmitter(cfg config.MQTTConfig, logger logrus.FieldLogger) *MQTTEmitter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MQTTEmitter{cfg: cfg, logger: logger}
}

// BrokerURL adds the tcp scheme when the broker is given as host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection. The client reconnects on its own
// after a loss.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.WithFields(logging.Fields{
			"broker":    e.cfg.Broker,
			"client_id": e.cfg.ClientID,
		}).Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.WithError(err).WithField("broker", e.cfg.Broker).Warn("mqtt connection lost, will auto-reconnect")
	}

	e.client = mqtt.NewClient(opts)

	e.logger.WithField("broker", e.cfg.Broker).Info("connecting to mqtt broker")

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish sends the summary of a stopped session.
func (e *MQTTEmitter) Publish(ctx context.Context, sum session.Summary) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := BuildPayload(sum, time.Now())
	if err != nil {
		e.countError()
		return err
	}

	token := e.client.Publish(e.cfg.Topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		e.countError()
		return fmt.Errorf("publish timeout")
	case <-ctx.Done():
		e.countError()
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.logger.WithFields(logging.Fields{
		"topic":      e.cfg.Topic,
		"session_id": sum.SessionID,
		"size":       len(payload),
	}).Debug("session summary published")

	return nil
}

// Stats returns the published and failed message counts.
func (e *MQTTEmitter) Stats() (published, failed uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// BuildPayload encodes sum as a SummaryMessage.
func BuildPayload(sum session.Summary, now time.Time) ([]byte, error) {
	counts := sum.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	payload, err := json.Marshal(SummaryMessage{
		SessionID:   sum.SessionID,
		StartedAt:   sum.StartedAt,
		StoppedAt:   sum.StoppedAt,
		Summary:     counts,
		Total:       sum.Total,
		PublishedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return payload, nil
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
