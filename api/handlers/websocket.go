package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/taskrelay/relay/internal/ws"
)

// livenessMessage is the plain-text body served on unknown paths.
const livenessMessage = "relay server is running\n"

// WebSocketHandler accepts relay socket connections.
type WebSocketHandler struct {
	wsHandler *ws.Handler
	log       log.FieldLogger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler, logger log.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
		log:       logger,
	}
}

// Attach handles GET /ws - upgrades the request to a relay connection.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader has already written the HTTP error
		h.log.WithField("remote_addr", c.Request.RemoteAddr).WithError(err).Warn("WebSocket upgrade failed")
	}
}

// Fallback serves every unmatched path. Upgrade requests become relay
// connections; anything else gets a plain-text liveness acknowledgement.
func (h *WebSocketHandler) Fallback(c *gin.Context) {
	if ws.IsUpgradeRequest(c.Request) {
		h.Attach(c)
		return
	}
	c.String(http.StatusOK, livenessMessage)
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router.
func (h *WebSocketHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.Attach)
	r.NoRoute(h.Fallback)
}
