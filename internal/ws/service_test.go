package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/relay/internal/metrics"
	"github.com/taskrelay/relay/internal/model"
)

type fakeJournal struct {
	mu          sync.Mutex
	connects    []model.ConnectionRecord
	disconnects map[string]int64
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{disconnects: make(map[string]int64)}
}

func (j *fakeJournal) RecordConnect(_ context.Context, rec model.ConnectionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.connects = append(j.connects, rec)
	return nil
}

func (j *fakeJournal) RecordDisconnect(_ context.Context, clientID string, _ time.Time, received int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.disconnects[clientID] = received
	return nil
}

func TestService_JoinWithEmptyHistorySendsWelcomeOnly(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	client := newMockClient(8)

	svc.Join(client)

	frame := receiveWithTimeout(t, client, 100*time.Millisecond)
	var welcome model.SystemFrame
	require.NoError(t, json.Unmarshal(frame, &welcome))
	assert.Equal(t, model.FrameTypeSystem, welcome.Type)
	assert.Equal(t, client.ID(), welcome.Data.ClientID)
	assertNothingQueued(t, client)
	assert.Equal(t, 1, svc.Hub().Count())
}

func TestService_JoinReplaysHistoryBeforeWelcome(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	svc.Publish([]byte(`{"n":1}`), model.OriginHTTPAPI)
	svc.Publish([]byte("two"), model.OriginHTTPAPI)
	svc.Publish([]byte(`{"n":3}`), model.OriginHTTPAPI)

	client := newMockClient(8)
	svc.Join(client)

	first := receiveWithTimeout(t, client, 100*time.Millisecond)
	var replay model.HistoryFrame
	require.NoError(t, json.Unmarshal(first, &replay))
	assert.Equal(t, model.FrameTypeHistory, replay.Type)
	require.Len(t, replay.Data, 3)
	assert.Equal(t, `{"n":1}`, replay.Data[0].Content)
	assert.Equal(t, "two", replay.Data[1].Content)
	assert.Equal(t, `{"n":3}`, replay.Data[2].Content)

	second := receiveWithTimeout(t, client, 100*time.Millisecond)
	assert.Equal(t, "system", frameType(t, second))
	assertNothingQueued(t, client)
}

func TestService_SendBufferFitsJoinFrames(t *testing.T) {
	svc, _ := newTestService(t, Options{SendBuffer: 1})
	assert.Equal(t, MinSendBuffer, svc.sendBuffer)

	svc.Publish([]byte(`{"n":1}`), model.OriginHTTPAPI)

	client := NewClient(nil, "127.0.0.1:0", svc.sendBuffer)
	svc.Join(client)

	assert.False(t, client.IsClosed())
	assert.Equal(t, 1, svc.Hub().Count())
	assert.Equal(t, "history", frameType(t, receiveWithTimeout(t, client, 100*time.Millisecond)))
	assert.Equal(t, "system", frameType(t, receiveWithTimeout(t, client, 100*time.Millisecond)))
}

func TestService_HandleInboundRelaysToOthers(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	sender := newMockClient(8)
	receiver := newMockClient(8)
	svc.Join(sender)
	svc.Join(receiver)
	receiveWithTimeout(t, sender, 100*time.Millisecond)
	receiveWithTimeout(t, receiver, 100*time.Millisecond)

	result := svc.HandleInbound(sender, []byte("not json at all"))
	assert.Equal(t, BroadcastResult{Succeeded: 1}, result)

	assert.Equal(t, "not json at all", string(receiveWithTimeout(t, receiver, 100*time.Millisecond)))
	assertNothingQueued(t, sender)

	snap := svc.History().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, model.SocketOrigin(sender.ID()), snap[0].Origin)
	assert.Equal(t, int64(1), sender.Received())
}

func TestService_HandleInboundAcknowledgesSaveTask(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	sender := newMockClient(8)
	receiver := newMockClient(8)
	svc.Join(sender)
	svc.Join(receiver)
	receiveWithTimeout(t, sender, 100*time.Millisecond)
	receiveWithTimeout(t, receiver, 100*time.Millisecond)

	payload := `{"type":"saveTask","taskId":"task-7","data":{"x":1}}`
	svc.HandleInbound(sender, []byte(payload))

	ack := receiveWithTimeout(t, sender, 100*time.Millisecond)
	var resp model.ResponseFrame
	require.NoError(t, json.Unmarshal(ack, &resp))
	assert.Equal(t, model.FrameTypeResponse, resp.Type)
	assert.Equal(t, "success", resp.Status)
	assert.JSONEq(t, `"task-7"`, string(resp.TaskID))
	assertNothingQueued(t, sender)

	// The other client receives the raw payload, not the ack
	assert.Equal(t, payload, string(receiveWithTimeout(t, receiver, 100*time.Millisecond)))
	assertNothingQueued(t, receiver)
}

func TestService_HandleInboundDropsClosedClient(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	sender := newMockClient(8)
	receiver := newMockClient(8)
	svc.Join(sender)
	svc.Join(receiver)
	receiveWithTimeout(t, receiver, 100*time.Millisecond)

	svc.Leave(sender)
	result := svc.HandleInbound(sender, []byte("late"))

	assert.Equal(t, BroadcastResult{}, result)
	assert.Equal(t, 0, svc.History().Len())
	assertNothingQueued(t, receiver)
}

func TestService_PublishCountsEvictions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc, _ := newTestService(t, Options{HistoryCapacity: 2, Metrics: m})

	for i := 0; i < 5; i++ {
		svc.Publish([]byte(`{}`), model.OriginHTTPAPI)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HistoryEvictions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HistoryLength))
}

func TestService_PublishReachesEveryClient(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	clients := []*Client{newMockClient(8), newMockClient(8)}
	for _, c := range clients {
		svc.Join(c)
		receiveWithTimeout(t, c, 100*time.Millisecond)
	}

	count, result := svc.Publish([]byte(`{"type":"test","message":"x"}`), model.OriginHTTPAPI)
	assert.Equal(t, 2, count)
	assert.Equal(t, BroadcastResult{Succeeded: 2}, result)

	for _, c := range clients {
		assert.Equal(t, `{"type":"test","message":"x"}`, string(receiveWithTimeout(t, c, 100*time.Millisecond)))
	}

	snap := svc.History().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, model.OriginHTTPAPI, snap[0].Origin)
}

func TestService_StatusUptimeIsMonotonic(t *testing.T) {
	svc, clock := newTestService(t, Options{HistoryCapacity: 5})

	first := svc.Status()
	clock.Advance(3 * time.Second)
	second := svc.Status()

	assert.True(t, first.Running)
	assert.GreaterOrEqual(t, second.Uptime, first.Uptime)
	assert.InDelta(t, 3.0, second.Uptime-first.Uptime, 0.001)
	assert.Equal(t, first.StartTime, second.StartTime)
	assert.Equal(t, 0, second.ClientCount)
	assert.Equal(t, 0, second.HistoryLength)
}

func TestService_JournalsConnections(t *testing.T) {
	journal := newFakeJournal()
	svc, _ := newTestService(t, Options{Journal: journal})
	client := newMockClient(8)

	svc.Join(client)
	svc.HandleInbound(client, []byte("a"))
	svc.HandleInbound(client, []byte("b"))
	svc.Leave(client)
	svc.Leave(client)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	require.Len(t, journal.connects, 1)
	assert.Equal(t, client.ID(), journal.connects[0].ClientID)
	assert.Equal(t, int64(2), journal.disconnects[client.ID()])
	assert.Equal(t, 0, svc.Hub().Count())
}
