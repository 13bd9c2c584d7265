package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// NewRouter assembles the relay's HTTP surface. gatherer may be nil, in
// which case /metrics is not served.
func NewRouter(control *ControlPlane, sockets *WebSocketHandler, gatherer prometheus.Gatherer, logger log.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(recovery(logger), requestLogger(logger), corsMiddleware())

	control.RegisterRoutes(r)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	sockets.RegisterRoutes(r)

	return r
}
