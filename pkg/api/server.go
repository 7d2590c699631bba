// Package api exposes the HTTP surface: session lifecycle routes, event
// queries, the WebSocket upgrade, and health/version probes. Session and
// event routes answer with a uniform {success, data} / {success:false,
// error} envelope.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/session"
	"github.com/agentarium/worldengine/pkg/stream"
)

// BasePath prefixes every session and event route.
const BasePath = "/api/isolation"

// Server is the HTTP server fronting the session manager and event log.
type Server struct {
	mgr     *session.Manager
	store   eventlog.Store
	hub     *stream.ConnectionManager
	origins []string
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer builds the server and its router. hub may be nil; the /ws
// route then answers 503.
func NewServer(mgr *session.Manager, hub *stream.ConnectionManager, cfg *config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mgr:    mgr,
		store:  mgr.Store(),
		hub:    hub,
		logger: logger.With("component", "api"),
	}
	if cfg != nil {
		s.origins = cfg.AllowedWSOrigins
	}
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router assembles the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/version", s.versionHandler)
	r.GET("/ws", s.wsHandler)
	r.GET("/world-engine", s.wsHandler)

	g := r.Group(BasePath)
	g.GET("/sessions", s.listSessionsHandler)
	g.POST("/sessions", s.createSessionHandler)
	g.GET("/sessions/:id", s.getSessionHandler)
	g.POST("/sessions/:id/start", s.startSessionHandler)
	g.POST("/sessions/:id/pause", s.pauseSessionHandler)
	g.POST("/sessions/:id/resume", s.resumeSessionHandler)
	g.POST("/sessions/:id/end", s.endSessionHandler)
	g.DELETE("/sessions/:id", s.deleteSessionHandler)

	g.GET("/events/:sessionId", s.sessionEventsHandler)
	g.GET("/events/:sessionId/after/:sequence", s.eventsAfterHandler)
	g.GET("/events/:sessionId/agent-view", s.agentViewHandler)

	return r
}

// Start listens on addr and serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
