package ws

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/taskrelay/relay/internal/model"
)

// DefaultHeartbeatInterval is the period between keepalive frames.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat periodically broadcasts a keepalive frame to every open client.
// It does not track acknowledgements or close silent peers.
type Heartbeat struct {
	service  *Service
	interval time.Duration
	log      log.FieldLogger
}

// NewHeartbeat creates a heartbeat for service. A non-positive interval
// falls back to DefaultHeartbeatInterval.
func NewHeartbeat(service *Service, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{
		service:  service,
		interval: interval,
		log:      service.log,
	}
}

// Run starts the periodic loop. It blocks until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := h.service.Clock().NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			h.Beat()
		}
	}
}

// Beat broadcasts one keepalive frame.
func (h *Heartbeat) Beat() BroadcastResult {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("Recovered from panic in heartbeat: %v", r)
		}
	}()

	result, err := h.service.Announce(model.NewHeartbeatFrame(h.service.Clock().Now()))
	if err != nil {
		h.log.WithError(err).Error("Failed to build heartbeat frame")
		return result
	}

	h.service.metrics.HeartbeatSent()
	h.log.WithFields(log.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Debug("Heartbeat sent")
	return result
}
