package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/moodlens/internal/logging"
	"github.com/ayusman/moodlens/internal/session"
)

const (
	writeWait    = 5 * time.Second
	hubBuffer    = 64
	clientBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the middleware
	},
}

// Hub fans frame events out to websocket clients. Publish never blocks the
// stream goroutine: events are dropped when the hub or a client lags.
type Hub struct {
	events  chan session.FrameEvent
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  logrus.FieldLogger
}

type wsClient struct {
	conn *websocket.Conn
	send chan session.FrameEvent
}

// NewHub creates a Hub. Call Run to start delivery.
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		events:  make(chan session.FrameEvent, hubBuffer),
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

// Publish queues ev for delivery. It is a session.FrameObserver.
func (h *Hub) Publish(ev session.FrameEvent) {
	if h.ClientCount() == 0 {
		return
	}
	select {
	case h.events <- ev:
	default:
		h.logger.Debug("hub buffer full, dropping frame event")
	}
}

// Run delivers queued events until ctx is done, then disconnects clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.events:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan session.FrameEvent, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("clients", h.ClientCount()).Info("websocket client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reads only detect disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer h.remove(c)
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.WithError(err).Debug("websocket write failed")
				return
			}
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
		h.logger.Info("websocket client disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}
