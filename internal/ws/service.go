package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/taskrelay/relay/internal/history"
	relaylog "github.com/taskrelay/relay/internal/logger"
	"github.com/taskrelay/relay/internal/metrics"
	"github.com/taskrelay/relay/internal/model"
)

// Journal records connection metadata. Implementations must be safe for
// concurrent use.
type Journal interface {
	RecordConnect(ctx context.Context, rec model.ConnectionRecord) error
	RecordDisconnect(ctx context.Context, clientID string, at time.Time, received int64) error
}

// Options configures a Service.
type Options struct {
	HistoryCapacity int
	SendBuffer      int
	Clock           clockwork.Clock
	Logger          log.FieldLogger
	Metrics         *metrics.Metrics
	Journal         Journal
}

// Status is a point-in-time view of the relay.
type Status struct {
	Running       bool      `json:"running"`
	ClientCount   int       `json:"clientCount"`
	Uptime        float64   `json:"uptime"`
	HistoryLength int       `json:"historyLength"`
	StartTime     time.Time `json:"startTime"`
}

// Service is the relay's process-wide state: the connection registry, the
// history log and the start time. Compound steps that touch both the hub
// and the history (joining, publishing) are serialized by one mutex, so a
// joining client never sees live traffic ahead of its replay.
type Service struct {
	hub        *Hub
	history    *history.Log
	clock      clockwork.Clock
	startedAt  time.Time
	sendBuffer int

	log     log.FieldLogger
	metrics *metrics.Metrics
	journal Journal

	mu sync.Mutex
}

// NewService creates the relay state. Zero options fall back to defaults.
func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = relaylog.Discard()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	} else if opts.SendBuffer < MinSendBuffer {
		opts.SendBuffer = MinSendBuffer
	}

	return &Service{
		hub:        NewHub(opts.Logger, opts.Metrics),
		history:    history.NewLog(opts.HistoryCapacity, opts.Clock),
		clock:      opts.Clock,
		startedAt:  opts.Clock.Now(),
		sendBuffer: opts.SendBuffer,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		journal:    opts.Journal,
	}
}

// Hub returns the connection registry.
func (s *Service) Hub() *Hub {
	return s.hub
}

// History returns the history log.
func (s *Service) History() *history.Log {
	return s.history
}

// Clock returns the service clock.
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// Uptime returns the time elapsed since the service was created.
func (s *Service) Uptime() time.Duration {
	return s.clock.Since(s.startedAt)
}

// Status reports the relay's current state.
func (s *Service) Status() Status {
	return Status{
		Running:       true,
		ClientCount:   s.hub.Count(),
		Uptime:        s.Uptime().Seconds(),
		HistoryLength: s.history.Len(),
		StartTime:     s.startedAt.UTC(),
	}
}

// Join registers client and queues its history replay (when the log is
// not empty) followed by the welcome frame.
func (s *Service) Join(client *Client) {
	s.mu.Lock()
	s.hub.Register(client)
	entries := s.history.Snapshot()
	if len(entries) > 0 {
		s.sendFrame(client, model.NewHistoryFrame(entries), "history replay")
	}
	s.sendFrame(client, model.NewWelcomeFrame(client.ID(), s.clock.Now()), "welcome")
	s.mu.Unlock()

	if s.journal != nil {
		rec := model.ConnectionRecord{
			ClientID:    client.ID(),
			RemoteAddr:  client.Addr(),
			ConnectedAt: client.ConnectedAt(),
		}
		if err := s.journal.RecordConnect(context.Background(), rec); err != nil {
			s.log.WithField("client_id", client.ID()).WithError(err).Warn("Failed to journal connection")
		}
	}
}

// Leave unregisters client. It is safe to call more than once.
func (s *Service) Leave(client *Client) {
	if _, ok := s.hub.Get(client.ID()); !ok {
		return
	}
	s.hub.Unregister(client.ID())

	if s.journal != nil {
		err := s.journal.RecordDisconnect(context.Background(), client.ID(), s.clock.Now(), client.Received())
		if err != nil {
			s.log.WithField("client_id", client.ID()).WithError(err).Warn("Failed to journal disconnect")
		}
	}
}

// HandleInbound processes one payload received from client: it is recorded
// in the history, acknowledged to the sender if it is a saveTask message,
// and relayed verbatim to every other open client. Payloads from clients
// that are no longer open are dropped.
func (s *Service) HandleInbound(client *Client, payload []byte) BroadcastResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if registered, ok := s.hub.Get(client.ID()); !ok || registered != client || client.IsClosed() {
		s.log.WithField("client_id", client.ID()).Debug("Dropping payload from closed client")
		return BroadcastResult{}
	}

	client.received.Add(1)
	s.metrics.MessageReceived(metrics.SourceSocket)
	s.record(string(payload), model.SocketOrigin(client.ID()))

	if taskID, ok := model.ParseTaskRequest(payload); ok {
		s.sendFrame(client, model.NewTaskAck(taskID, s.clock.Now()), "task ack")
	}

	return s.hub.Broadcast(payload, client.ID())
}

// Publish records payload with origin and relays it to every open client.
// It returns the number of registered clients at the time of the call.
func (s *Service) Publish(payload []byte, origin string) (int, BroadcastResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientCount := s.hub.Count()
	s.metrics.MessageReceived(metrics.SourceHTTP)
	s.record(string(payload), origin)

	return clientCount, s.hub.Broadcast(payload, "")
}

// Announce relays a server-generated frame to every open client without
// recording it in the history.
func (s *Service) Announce(frame any) (BroadcastResult, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return BroadcastResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.Broadcast(data, ""), nil
}

// Close disconnects every client.
func (s *Service) Close() {
	s.hub.Close()
}

// record appends to the history and updates its gauges. Callers hold s.mu.
func (s *Service) record(payload, origin string) {
	if _, evicted := s.history.Append(payload, origin); evicted {
		s.metrics.HistoryEvicted()
	}
	s.metrics.SetHistoryLength(s.history.Len())
}

func (s *Service) sendFrame(client *Client, frame any, kind string) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.WithError(err).Errorf("Failed to marshal %s frame", kind)
		return
	}
	if err := client.Send(data); err != nil {
		s.log.WithField("client_id", client.ID()).WithError(err).Warnf("Failed to send %s frame", kind)
	}
}
