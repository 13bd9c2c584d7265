package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskrelay/relay/internal/logger"
	"github.com/taskrelay/relay/internal/metrics"
	"github.com/taskrelay/relay/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testRelay struct {
	service *ws.Service
	router  *gin.Engine
	clock   clockwork.Clock
}

type relayOptions struct {
	clock        clockwork.Clock
	connections  ConnectionLister
	maxBodyBytes int64
}

func newTestRelay(t *testing.T, opts relayOptions) *testRelay {
	t.Helper()
	if opts.clock == nil {
		opts.clock = clockwork.NewRealClock()
	}

	reg := prometheus.NewRegistry()
	svc := ws.NewService(ws.Options{
		Clock:   opts.clock,
		Logger:  logger.Discard(),
		Metrics: metrics.New(reg),
	})
	t.Cleanup(svc.Close)

	control := NewControlPlane(svc, opts.connections, opts.maxBodyBytes, logger.Discard())
	sockets := NewWebSocketHandler(ws.NewHandler(svc, ws.HandlerConfig{}), logger.Discard())

	return &testRelay{
		service: svc,
		router:  NewRouter(control, sockets, reg, logger.Discard()),
		clock:   opts.clock,
	}
}

// serve starts a real HTTP server and returns its base URL and WebSocket URL.
func (r *testRelay) serve(t *testing.T) (string, string) {
	t.Helper()
	server := httptest.NewServer(r.router)
	t.Cleanup(server.Close)
	return server.URL, "ws" + strings.TrimPrefix(server.URL, "http")
}
