package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentarium/worldengine/pkg/session"
	"github.com/agentarium/worldengine/pkg/world"
)

// envelope wraps every session and event response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Success: false, Error: msg})
}

// SessionDetail is returned by GET /sessions/:id: the summary fields
// inline, the agent roster it was created with, plus the current world
// state and the most recent events.
type SessionDetail struct {
	session.Summary
	Agents     []session.AgentSpec `json:"agents"`
	State      *world.State        `json:"state"`
	Events     []world.Event       `json:"events"`
	EventCount int64               `json:"eventCount"`
}

// endRequest is the optional body of POST /sessions/:id/end.
type endRequest struct {
	Reason string `json:"reason"`
}

// HealthCheck is one component's probe result inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Sessions    int                    `json:"sessions"`
	Connections int                    `json:"connections"`
	Checks      map[string]HealthCheck `json:"checks"`
}
