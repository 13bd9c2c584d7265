package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/taskrelay/relay/internal/model"
	"github.com/taskrelay/relay/internal/ws"
)

// DefaultMaxBodyBytes is the ceiling on POST /broadcast bodies.
const DefaultMaxBodyBytes = 1 << 20

// ConnectionLister reads the connection journal.
type ConnectionLister interface {
	List(ctx context.Context, limit int) ([]model.ConnectionRecord, error)
}

// BroadcastResponse is returned by POST /broadcast.
type BroadcastResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ClientCount int    `json:"clientCount"`
	Delivered   int    `json:"delivered"`
	Failed      int    `json:"failed"`
}

// ControlPlane serves the administrative HTTP endpoints. It is a trusted
// boundary: callers are not authenticated, and any access control belongs
// in front of these routes rather than in the relay core.
type ControlPlane struct {
	service      *ws.Service
	connections  ConnectionLister
	maxBodyBytes int64
	log          log.FieldLogger
}

// NewControlPlane creates a new ControlPlane. connections may be nil when
// the journal is disabled.
func NewControlPlane(service *ws.Service, connections ConnectionLister, maxBodyBytes int64, logger log.FieldLogger) *ControlPlane {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &ControlPlane{
		service:      service,
		connections:  connections,
		maxBodyBytes: maxBodyBytes,
		log:          logger,
	}
}

// Status handles GET /status.
func (p *ControlPlane) Status(c *gin.Context) {
	c.JSON(http.StatusOK, p.service.Status())
}

// History handles GET /history - the full history snapshot in arrival order.
func (p *ControlPlane) History(c *gin.Context) {
	c.JSON(http.StatusOK, p.service.History().Snapshot())
}

// Broadcast handles POST /broadcast - injects a JSON message into the relay.
func (p *ControlPlane) Broadcast(c *gin.Context) {
	if c.Request.ContentLength > p.maxBodyBytes {
		p.rejectTooLarge(c)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, p.maxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			p.rejectTooLarge(c)
			return
		}
		sendError(c, http.StatusBadRequest, "READ_ERROR", "Failed to read request body: "+err.Error())
		return
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		p.log.WithError(err).Info("Rejected malformed broadcast body")
		sendError(c, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("%s: %v", model.ErrInvalidJSON, err))
		return
	}
	// Only objects and arrays are relayed; bare scalars are rejected.
	switch decoded.(type) {
	case map[string]interface{}, []interface{}:
	default:
		sendError(c, http.StatusBadRequest, "INVALID_JSON", model.ErrInvalidJSON.Error()+": body must be a JSON object or array")
		return
	}

	clientCount, result := p.service.Publish(body, model.OriginHTTPAPI)
	p.log.WithFields(log.Fields{
		"origin":    model.OriginHTTPAPI,
		"clients":   clientCount,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Broadcast injected via control plane")

	c.JSON(http.StatusOK, BroadcastResponse{
		Success:     true,
		Message:     "message broadcast",
		ClientCount: clientCount,
		Delivered:   result.Succeeded,
		Failed:      result.Failed,
	})
}

// Connections handles GET /connections - recent journaled connections.
func (p *ControlPlane) Connections(c *gin.Context) {
	if p.connections == nil {
		sendError(c, http.StatusNotFound, "JOURNAL_DISABLED", model.ErrJournalDisabled.Error())
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := p.connections.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list connections: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, records)
}

func (p *ControlPlane) rejectTooLarge(c *gin.Context) {
	sendErrorWithDetails(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", model.ErrPayloadTooLarge.Error(),
		map[string]interface{}{"maxBytes": p.maxBodyBytes})
}

// RegisterRoutes registers the control plane routes.
func (p *ControlPlane) RegisterRoutes(r gin.IRoutes) {
	r.GET("/status", p.Status)
	r.GET("/history", p.History)
	r.POST("/broadcast", p.Broadcast)
	r.GET("/connections", p.Connections)
}
