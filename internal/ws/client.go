package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskrelay/relay/internal/model"
)

// DefaultSendBuffer is the outbound queue length of a client.
const DefaultSendBuffer = 256

// MinSendBuffer fits the history replay and welcome frames queued on join.
const MinSendBuffer = 2

// Client represents a WebSocket client connection.
type Client struct {
	id          string
	addr        string
	conn        *websocket.Conn
	connectedAt time.Time
	send        chan []byte
	received    atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with a fresh id for conn.
func NewClient(conn *websocket.Conn, addr string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Client{
		id:          uuid.NewString(),
		addr:        addr,
		conn:        conn,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBuffer),
	}
}

// Send queues data for delivery. It never blocks: a client whose queue is
// full is closed and ErrSendBufferFull is returned.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return model.ErrSendBufferFull
	}
}

// Close closes the client's outbound queue. The write pump then sends a
// close frame and tears the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// Received returns the number of payloads accepted from this client.
func (c *Client) Received() int64 {
	return c.received.Load()
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
