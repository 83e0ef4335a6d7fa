// Package admin exposes the operator surface: health, a presence snapshot
// and Prometheus metrics. It never touches hub state directly; the snapshot
// travels through the hub's own query channel.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/server"
)

// NewServer builds the admin HTTP server.
func NewServer(addr string, hub *server.Hub, gatherer prometheus.Gatherer, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/status", func(c *gin.Context) {
		snap, err := hub.Snapshot(c.Request.Context())
		if err != nil {
			logger.Warn().Err(err).Msg("status snapshot failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
