package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/relay/internal/logger"
)

// newTestService builds a service on a fake clock.
func newTestService(t *testing.T, opts Options) (*Service, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	opts.Clock = clock
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	svc := NewService(opts)
	t.Cleanup(svc.Close)
	return svc, clock
}

// newMockClient returns a client without a real WebSocket connection.
func newMockClient(buffer int) *Client {
	return NewClient(nil, "127.0.0.1:0", buffer)
}

// receiveWithTimeout reads the next queued frame of client.
func receiveWithTimeout(t *testing.T, client *Client, timeout time.Duration) []byte {
	t.Helper()
	select {
	case msg, ok := <-client.SendChan():
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for frame on client %s", client.ID())
		return nil
	}
}

// assertNothingQueued fails if client has a pending frame.
func assertNothingQueued(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.SendChan():
		t.Fatalf("unexpected frame for client %s: %s", client.ID(), msg)
	default:
	}
}

// frameType extracts the type field of a JSON frame.
func frameType(t *testing.T, data []byte) string {
	t.Helper()
	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame.Type
}
