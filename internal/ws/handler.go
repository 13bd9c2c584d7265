package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// DefaultPongWait is the time allowed to read the next pong from the peer.
	DefaultPongWait = 60 * time.Second

	// DefaultMaxMessageSize is the largest inbound frame accepted from a peer.
	DefaultMaxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Relay clients are not authenticated; any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandlerConfig tunes the per-connection pumps.
type HandlerConfig struct {
	// PongWait bounds how long a silent peer is kept. Zero disables
	// transport pings and read deadlines.
	PongWait       time.Duration
	MaxMessageSize int64
}

// Handler drives the lifecycle of each WebSocket connection.
type Handler struct {
	service *Service
	config  HandlerConfig
	log     log.FieldLogger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(service *Service, config HandlerConfig) *Handler {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.PongWait < 0 {
		config.PongWait = 0
	}
	return &Handler{
		service: service,
		config:  config,
		log:     service.log,
	}
}

// HandleConnection upgrades the request to a WebSocket connection, joins the
// client to the relay and starts its pumps. The client stays registered until
// its read pump observes the connection closing.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	client := NewClient(conn, r.RemoteAddr, h.service.sendBuffer)
	h.service.Join(client)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump pumps inbound frames from the connection into the relay.
func (h *Handler) readPump(client *Client) {
	logger := h.log.WithFields(log.Fields{
		"client_id":   client.ID(),
		"remote_addr": client.Addr(),
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered from panic in read pump: %v", r)
		}
		h.service.Leave(client)
		client.Conn().Close()
	}()

	conn := client.Conn()
	conn.SetReadLimit(h.config.MaxMessageSize)
	if h.config.PongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
			return nil
		})
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.WithError(err).Warn("WebSocket transport error")
			} else {
				logger.WithError(err).Info("WebSocket closed")
			}
			return
		}

		result := h.service.HandleInbound(client, message)
		logger.WithFields(log.Fields{
			"bytes":     len(message),
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		}).Debug("Relayed message")
	}
}

// writePump drains the client's queue onto the connection and, when enabled,
// keeps the transport alive with pings.
func (h *Handler) writePump(client *Client) {
	var pings <-chan time.Time
	if h.config.PongWait > 0 {
		ticker := time.NewTicker((h.config.PongWait * 9) / 10)
		defer ticker.Stop()
		pings = ticker.C
	}

	conn := client.Conn()
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("client_id", client.ID()).Errorf("Recovered from panic in write pump: %v", r)
		}
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each frame goes out as its own WebSocket message so clients can
			// JSON-decode frames independently.
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.WithField("client_id", client.ID()).WithError(err).Warn("WebSocket write failed")
				return
			}
		case <-pings:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// IsUpgradeRequest reports whether r asks for a WebSocket upgrade.
func IsUpgradeRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
