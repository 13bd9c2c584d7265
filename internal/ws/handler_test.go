package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/relay/internal/model"
)

func startRelay(t *testing.T) (*Service, string) {
	t.Helper()
	svc, _ := newTestService(t, Options{})
	handler := NewHandler(svc, HandlerConfig{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := handler.HandleConnection(w, r); err != nil {
			t.Logf("handle connection: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	return svc, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

// dialAndWelcome connects and consumes the welcome frame, returning the client id.
func dialAndWelcome(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()
	conn := dial(t, url)
	var welcome model.SystemFrame
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &welcome))
	require.Equal(t, model.FrameTypeSystem, welcome.Type)
	return conn, welcome.Data.ClientID
}

func TestHandler_ReplayArrivesBeforeWelcome(t *testing.T) {
	svc, url := startRelay(t)
	for _, msg := range []string{"first", `{"second":2}`, "third"} {
		svc.Publish([]byte(msg), model.OriginHTTPAPI)
	}

	conn := dial(t, url)

	var replay model.HistoryFrame
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &replay))
	require.Equal(t, model.FrameTypeHistory, replay.Type)
	require.Len(t, replay.Data, 3)
	assert.Equal(t, "first", replay.Data[0].Content)
	assert.Equal(t, `{"second":2}`, replay.Data[1].Content)
	assert.Equal(t, "third", replay.Data[2].Content)

	assert.Equal(t, "system", frameType(t, readFrame(t, conn)))
}

func TestHandler_FanoutExcludesSender(t *testing.T) {
	svc, url := startRelay(t)

	a, aID := dialAndWelcome(t, url)
	b, _ := dialAndWelcome(t, url)
	c, _ := dialAndWelcome(t, url)
	require.Equal(t, 3, svc.Hub().Count())

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("hello peers")))

	assert.Equal(t, "hello peers", string(readFrame(t, b)))
	assert.Equal(t, "hello peers", string(readFrame(t, c)))

	// The sender gets nothing back
	require.NoError(t, a.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := a.ReadMessage()
	assert.Error(t, err)

	snap := svc.History().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, model.SocketOrigin(aID), snap[0].Origin)
}

func TestHandler_SaveTaskAckGoesToSenderOnly(t *testing.T) {
	_, url := startRelay(t)

	a, _ := dialAndWelcome(t, url)
	b, _ := dialAndWelcome(t, url)

	payload := `{"type":"saveTask","id":"abc"}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(payload)))

	var ack model.ResponseFrame
	require.NoError(t, json.Unmarshal(readFrame(t, a), &ack))
	assert.Equal(t, model.FrameTypeResponse, ack.Type)
	assert.JSONEq(t, `"abc"`, string(ack.TaskID))

	assert.Equal(t, payload, string(readFrame(t, b)))
}

func TestHandler_CloseUnregistersClient(t *testing.T) {
	svc, url := startRelay(t)

	a, _ := dialAndWelcome(t, url)
	dialAndWelcome(t, url)
	require.Equal(t, 2, svc.Hub().Count())

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	a.Close()

	assert.Eventually(t, func() bool {
		return svc.Hub().Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIsUpgradeRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, IsUpgradeRequest(req))

	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	assert.True(t, IsUpgradeRequest(req))
}
