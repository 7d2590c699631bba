package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentarium/worldengine/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthProbeSession is the session id used for the event store probe. It
// never accumulates events; the probe only proves the backend answers.
const healthProbeSession = "health-probe"

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only in-process components and the event store are checked; LLM provider
// reachability is excluded so an upstream outage cannot fail liveness.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.store.Count(reqCtx, healthProbeSession); err != nil {
		status = healthStatusUnhealthy
		checks["event_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["event_store"] = HealthCheck{Status: healthStatusHealthy}
	}

	connections := 0
	if s.hub != nil {
		connections = s.hub.ActiveConnections()
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:      status,
		Version:     version.Full(),
		Sessions:    len(s.mgr.List()),
		Connections: connections,
		Checks:      checks,
	})
}

// versionHandler handles GET /version.
func (s *Server) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    version.AppName,
		"commit":  version.GitCommit,
		"version": version.Full(),
	})
}
