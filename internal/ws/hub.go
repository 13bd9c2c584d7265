package ws

import (
	"sync"

	log "github.com/sirupsen/logrus"

	relaylog "github.com/taskrelay/relay/internal/logger"
	"github.com/taskrelay/relay/internal/metrics"
)

// BroadcastResult counts per-client delivery outcomes of one broadcast.
// The counts are advisory: failures never roll back successful deliveries.
type BroadcastResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Hub is the connection registry and broadcast engine.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	log     log.FieldLogger
	metrics *metrics.Metrics
}

// NewHub creates an empty Hub.
func NewHub(logger log.FieldLogger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = relaylog.Discard()
	}
	return &Hub{
		clients: make(map[string]*Client),
		log:     logger,
		metrics: m,
	}
}

// Register adds a client to the hub. A client whose id is already
// registered is ignored.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if _, exists := h.clients[client.ID()]; exists {
		h.mu.Unlock()
		h.log.WithField("client_id", client.ID()).Warn("Duplicate client id, registration ignored")
		return
	}
	h.clients[client.ID()] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.log.WithFields(log.Fields{
		"client_id":   client.ID(),
		"remote_addr": client.Addr(),
		"clients":     count,
	}).Info("Client registered")
}

// Unregister removes a client from the hub and closes it. Removing an
// unknown id is a no-op.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	client.Close()
	h.metrics.ClientDisconnected()
	h.log.WithFields(log.Fields{
		"client_id":   clientID,
		"remote_addr": client.Addr(),
		"clients":     count,
	}).Info("Client unregistered")
}

// Get returns the registered client with id, if any.
func (h *Hub) Get(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	return client, ok
}

// List returns a snapshot of the registered clients in no particular order.
func (h *Hub) List() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers payload verbatim to every open client except the one
// with excludeID (pass "" to exclude nobody). A failing client is counted
// and logged and does not stop delivery to the rest.
func (h *Hub) Broadcast(payload []byte, excludeID string) BroadcastResult {
	var result BroadcastResult

	for _, client := range h.List() {
		if client.ID() == excludeID || client.IsClosed() {
			continue
		}
		if err := client.Send(payload); err != nil {
			result.Failed++
			h.log.WithFields(log.Fields{
				"client_id":   client.ID(),
				"remote_addr": client.Addr(),
			}).WithError(err).Warn("Broadcast delivery failed")
			continue
		}
		result.Succeeded++
	}

	h.metrics.Delivered(result.Succeeded, result.Failed)
	h.log.WithFields(log.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Debug("Broadcast complete")

	return result
}

// Close closes every client and empties the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
		h.metrics.ClientDisconnected()
	}
}
