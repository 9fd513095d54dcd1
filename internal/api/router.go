// Package api exposes the reconciled job table over a read-mostly HTTP API,
// for dashboards and for poking at a running watcher.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/blockwatch/internal/countdown"
	"github.com/jonesrussell/blockwatch/internal/logger"
	"github.com/jonesrussell/blockwatch/internal/reconciler"
	"github.com/jonesrussell/blockwatch/internal/transport"
)

// Server timeouts.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	serviceVersion = "1.0.0"
)

// Router holds the API dependencies.
type Router struct {
	table     *reconciler.Table
	conn      *transport.Conn
	projector *countdown.Projector
	registry  *prometheus.Registry
	logger    logger.Logger
	debug     bool
}

// NewRouter creates an API router over the live watcher state. The registry
// may be nil to disable the /metrics endpoint.
func NewRouter(table *reconciler.Table, conn *transport.Conn, projector *countdown.Projector, registry *prometheus.Registry, log logger.Logger, debug bool) *Router {
	return &Router{
		table:     table,
		conn:      conn,
		projector: projector,
		registry:  registry,
		logger:    log,
		debug:     debug,
	}
}

// Engine builds the gin engine with all routes registered.
func (r *Router) Engine() *gin.Engine {
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(requestLogger(r.logger))

	engine.GET("/health", r.health)
	if r.registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/jobs", r.listJobs)
		v1.GET("/jobs/:id", r.getJob)
		v1.GET("/jobs/:id/sources", r.getJobSources)
		v1.GET("/jobs/:id/stages/:stage", r.getJobStage)
		v1.POST("/jobs/:id/read", r.markJobRead)
		v1.GET("/queue", r.getQueue)
	}

	return engine
}

// NewServer wraps the engine in an http.Server with sane timeouts.
func (r *Router) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}

// health reports the watcher's connection state. The endpoint stays 200 while
// reconnecting so orchestrators do not restart a watcher that is already
// recovering; only the failed terminal state turns it 503.
func (r *Router) health(c *gin.Context) {
	state := r.conn.State()

	status := "healthy"
	code := http.StatusOK
	switch state.Kind {
	case transport.StateReconnecting, transport.StateDegraded:
		status = "degraded"
	case transport.StateFailed, transport.StateDisconnected:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"version":      serviceVersion,
		"connection":   state.Kind.String(),
		"tracked_jobs": r.table.Len(),
	})
}
